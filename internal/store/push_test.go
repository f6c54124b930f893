package store

import (
	"testing"

	"github.com/dukerupert/kinship/internal/model"
)

func TestPushSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	u := mustUser(t, NewUserStore(db), "p@example.com", model.RoleMember)

	sub, err := ps.CreateSubscription(u.ID, "https://push.example.com/1", "key", "auth", "Phone")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := ps.CreateSubscription(u.ID, "https://push.example.com/1", "key2", "auth2", "Phone")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != sub.ID || again.P256dhKey != "key2" {
		t.Errorf("upsert = %+v, want same id with new key", again)
	}

	subs, _ := ps.ListByUser(u.ID)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}

	if err := ps.DeleteByEndpoint("https://push.example.com/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = ps.ListByUser(u.ID)
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d after delete, want 0", len(subs))
	}
}
