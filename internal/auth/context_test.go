package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/kinship/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:    1,
		Role:      model.RoleAdmin,
		SessionID: 3,
		CanExport: true,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
	if !got.CanExport {
		t.Error("CanExport = false, want true")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestFromUser(t *testing.T) {
	u := &model.User{ID: 5, Role: model.RoleMember, CanViewPrivate: true}
	ac := FromUser(u, 9)
	if ac.UserID != 5 || ac.SessionID != 9 || !ac.CanViewPrivate || ac.CanExport {
		t.Errorf("FromUser = %+v", ac)
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 1, Role: model.RoleAdmin})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin role")
	}
	ctx = WithAuth(context.Background(), AuthContext{UserID: 1, Role: model.RoleMember})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for member role")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
