package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

func setup(t *testing.T) (*Recorder, *store.AuditStore, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	as := store.NewAuditStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecorder(as, logger), as, store.NewUserStore(db)
}

func TestRecordWithActor(t *testing.T) {
	rec, as, us := setup(t)
	u, err := us.Create("admin@example.com", "Ada", "Admin", model.RoleAdmin, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ctx := auth.WithAuth(context.Background(), auth.FromUser(u, 1))

	rec.Record(ctx, Entry{
		Action:   model.AuditUpdate,
		Model:    "person",
		ObjectID: 7,
		Changes:  FieldChange{Field: "profession", Old: "", New: "Baker"},
		IP:       "10.0.0.5",
	})

	logs, err := as.List(store.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("len = %d, want 1", len(logs))
	}
	got := logs[0]
	if got.UserID == nil || *got.UserID != u.ID {
		t.Errorf("UserID = %v, want %d", got.UserID, u.ID)
	}
	if got.ObjectID == nil || *got.ObjectID != 7 {
		t.Errorf("ObjectID = %v, want 7", got.ObjectID)
	}
	if got.IPAddress != "10.0.0.5" {
		t.Errorf("IPAddress = %q, want 10.0.0.5", got.IPAddress)
	}
	var fc FieldChange
	if err := json.Unmarshal(got.Changes, &fc); err != nil {
		t.Fatalf("changes not JSON: %v", err)
	}
	if fc.New != "Baker" {
		t.Errorf("changes.new = %q, want Baker", fc.New)
	}
}

func TestRecordAnonymousWithoutPayload(t *testing.T) {
	rec, as, _ := setup(t)

	rec.Record(context.Background(), Entry{Action: model.AuditExport, Model: "gedcom"})

	logs, _ := as.List(store.AuditFilter{Action: model.AuditExport})
	if len(logs) != 1 {
		t.Fatalf("len = %d, want 1", len(logs))
	}
	if logs[0].UserID != nil {
		t.Errorf("UserID = %v, want nil", *logs[0].UserID)
	}
	if string(logs[0].Changes) != "{}" {
		t.Errorf("Changes = %s, want {}", logs[0].Changes)
	}
}

func TestRecordUnmarshallablePayloadStillAppends(t *testing.T) {
	rec, as, _ := setup(t)

	rec.Record(context.Background(), Entry{Action: model.AuditCreate, Model: "person", Changes: make(chan int)})

	logs, _ := as.List(store.AuditFilter{})
	if len(logs) != 1 {
		t.Fatalf("len = %d, want 1", len(logs))
	}
}
