package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

// Entry describes one change. Changes is marshalled to JSON as-is.
type Entry struct {
	Action   model.AuditAction
	Model    string
	ObjectID int64
	Changes  any
	IP       string
}

// FieldChange is the payload shape for single-field updates.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Recorder appends audit rows. Failures are logged, never returned: an audit
// problem must not fail the request that triggered it.
type Recorder struct {
	store  *store.AuditStore
	logger *slog.Logger
}

func NewRecorder(s *store.AuditStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger.With("component", "audit")}
}

// Record writes e with the acting user taken from ctx.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	changes := json.RawMessage("{}")
	if e.Changes != nil {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			r.logger.Error("marshal audit changes", "model", e.Model, "object_id", e.ObjectID, "error", err)
		} else {
			changes = b
		}
	}

	entry := &model.AuditLog{
		Action:    e.Action,
		ModelName: e.Model,
		Changes:   changes,
		IPAddress: e.IP,
	}
	if uid := auth.UserID(ctx); uid != 0 {
		entry.UserID = &uid
	}
	if e.ObjectID != 0 {
		oid := e.ObjectID
		entry.ObjectID = &oid
	}

	if _, err := r.store.Append(entry); err != nil {
		r.logger.Error("append audit log", "action", e.Action, "model", e.Model, "object_id", e.ObjectID, "error", err)
	}
}
