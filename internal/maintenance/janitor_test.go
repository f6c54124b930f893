package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

func TestSweep(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	us := store.NewUserStore(db)
	ss := store.NewSessionStore(db)
	is := store.NewInvitationStore(db)
	ns := store.NewNotificationStore(db)

	u, err := us.Create("admin@example.com", "Ada", "Admin", model.RoleAdmin, "hash")
	if err != nil {
		t.Fatal(err)
	}

	live, _ := ss.Create(u.ID)
	stale, _ := ss.Create(u.ID)
	past := time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05")
	if _, err := db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, past, stale.ID); err != nil {
		t.Fatal(err)
	}

	inv, _ := is.Create("new@example.com", model.RoleMember, u.ID)
	if _, err := db.Exec(`UPDATE invitations SET expires_at = ? WHERE id = ?`, past, inv.ID); err != nil {
		t.Fatal(err)
	}

	expired := time.Now().Add(-time.Minute)
	if _, err := ns.Create(&model.Notification{RecipientID: u.ID, Type: model.NotifSystemAlert, Title: "old", ExpiresAt: &expired}); err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Create(&model.Notification{RecipientID: u.ID, Type: model.NotifSystemAlert, Title: "fresh"}); err != nil {
		t.Fatal(err)
	}

	rl := middleware.NewRateLimiter()
	rl.Take("gone", 5, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	j := NewJanitor(ss, is, ns, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)), rl)
	got := j.Sweep()

	want := Result{Sessions: 1, Invitations: 1, Notifications: 1, RateEntries: 1}
	if got != want {
		t.Errorf("Sweep() = %+v, want %+v", got, want)
	}

	if s, _ := ss.GetByToken(live.Token); s == nil {
		t.Error("live session removed")
	}
	if n, _ := ns.UnreadCount(u.ID); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}

	if again := j.Sweep(); again != (Result{}) {
		t.Errorf("second sweep = %+v, want zero", again)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	j := NewJanitor(store.NewSessionStore(db), store.NewInvitationStore(db), store.NewNotificationStore(db),
		10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
