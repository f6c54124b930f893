package auth

import "github.com/dukerupert/kinship/internal/model"

func is(id *int64, userID int64) bool {
	return id != nil && *id == userID
}

// CanModify reports whether the viewer may edit p directly: admins, the
// owner, the creator and the linked account holder.
func CanModify(ac AuthContext, p *model.Person) bool {
	if !ac.Authenticated() {
		return false
	}
	if ac.IsAdmin() {
		return true
	}
	return is(p.OwnedBy, ac.UserID) || is(p.CreatedBy, ac.UserID) || is(p.UserAccount, ac.UserID)
}

// CanView applies the visibility tiers. The zero AuthContext is an
// anonymous visitor.
func CanView(ac AuthContext, p *model.Person) bool {
	if p.Visibility == model.VisibilityPublic {
		return true
	}
	if !ac.Authenticated() {
		return false
	}
	if ac.IsAdmin() {
		return true
	}
	switch p.Visibility {
	case model.VisibilityFamily:
		return true
	case model.VisibilityPrivate:
		return ac.CanViewPrivate || CanModify(ac, p)
	}
	return false
}

// CanCreate excludes visitors, who have read-only access.
func CanCreate(ac AuthContext) bool {
	return ac.Authenticated() && ac.Role != model.RoleVisitor
}

// CanDelete allows admins and the owner.
func CanDelete(ac AuthContext, p *model.Person) bool {
	if !ac.Authenticated() {
		return false
	}
	return ac.IsAdmin() || is(p.OwnedBy, ac.UserID)
}

func CanExport(ac AuthContext) bool {
	return ac.Authenticated() && (ac.IsAdmin() || ac.CanExport)
}

// CanReview covers proposal review, the audit log and the consistency report.
func CanReview(ac AuthContext) bool {
	return ac.IsAdmin()
}
