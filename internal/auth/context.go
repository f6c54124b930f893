package auth

import (
	"context"

	"github.com/dukerupert/kinship/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID         int64
	Role           model.Role
	SessionID      int64
	CanExport      bool
	CanViewPrivate bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// FromUser builds the context for an authenticated user.
func FromUser(u *model.User, sessionID int64) AuthContext {
	return AuthContext{
		UserID:         u.ID,
		Role:           u.Role,
		SessionID:      sessionID,
		CanExport:      u.CanExport,
		CanViewPrivate: u.CanViewPrivate,
	}
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsAdmin()
}

func (ac AuthContext) Authenticated() bool { return ac.UserID != 0 }

func (ac AuthContext) IsAdmin() bool { return ac.Role == model.RoleAdmin }
