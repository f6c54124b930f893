package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/store"
)

// Janitor periodically deletes expired rows and stale rate-limit entries.
type Janitor struct {
	sessions      *store.SessionStore
	invitations   *store.InvitationStore
	notifications *store.NotificationStore
	limiters      []*middleware.RateLimiter
	interval      time.Duration
	logger        *slog.Logger
}

func NewJanitor(ss *store.SessionStore, is *store.InvitationStore, ns *store.NotificationStore, interval time.Duration, logger *slog.Logger, limiters ...*middleware.RateLimiter) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		sessions:      ss,
		invitations:   is,
		notifications: ns,
		limiters:      limiters,
		interval:      interval,
		logger:        logger.With("component", "janitor"),
	}
}

// Run sweeps once at start and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	j.Sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Result counts what one sweep removed.
type Result struct {
	Sessions      int64
	Invitations   int64
	Notifications int64
	RateEntries   int
}

// Sweep runs every cleanup once. A failing step is logged and the others
// still run.
func (j *Janitor) Sweep() Result {
	var r Result
	var err error

	if r.Sessions, err = j.sessions.DeleteExpired(); err != nil {
		j.logger.Error("delete expired sessions", "error", err)
	}
	if r.Invitations, err = j.invitations.DeleteExpired(); err != nil {
		j.logger.Error("delete expired invitations", "error", err)
	}
	if r.Notifications, err = j.notifications.DeleteExpired(); err != nil {
		j.logger.Error("delete expired notifications", "error", err)
	}
	for _, rl := range j.limiters {
		r.RateEntries += rl.Cleanup()
	}

	if r.Sessions+r.Invitations+r.Notifications > 0 || r.RateEntries > 0 {
		j.logger.Info("sweep",
			"sessions", r.Sessions,
			"invitations", r.Invitations,
			"notifications", r.Notifications,
			"rate_entries", r.RateEntries,
		)
	}
	return r
}
