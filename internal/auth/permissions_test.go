package auth

import (
	"testing"

	"github.com/dukerupert/kinship/internal/model"
)

func ptr(id int64) *int64 { return &id }

func TestCanView(t *testing.T) {
	anon := AuthContext{}
	member := AuthContext{UserID: 2, Role: model.RoleMember}
	owner := AuthContext{UserID: 3, Role: model.RoleMember}
	admin := AuthContext{UserID: 1, Role: model.RoleAdmin}
	privileged := AuthContext{UserID: 4, Role: model.RoleVisitor, CanViewPrivate: true}

	public := &model.Person{Visibility: model.VisibilityPublic}
	fam := &model.Person{Visibility: model.VisibilityFamily}
	private := &model.Person{Visibility: model.VisibilityPrivate, OwnedBy: ptr(3)}

	tests := []struct {
		name string
		ac   AuthContext
		p    *model.Person
		want bool
	}{
		{"anon public", anon, public, true},
		{"anon family", anon, fam, false},
		{"anon private", anon, private, false},
		{"member family", member, fam, true},
		{"member private", member, private, false},
		{"owner private", owner, private, true},
		{"admin private", admin, private, true},
		{"can view private", privileged, private, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanView(tt.ac, tt.p); got != tt.want {
				t.Errorf("CanView = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanModify(t *testing.T) {
	p := &model.Person{CreatedBy: ptr(2), OwnedBy: ptr(3), UserAccount: ptr(4)}
	for _, id := range []int64{2, 3, 4} {
		if !CanModify(AuthContext{UserID: id, Role: model.RoleMember}, p) {
			t.Errorf("user %d cannot modify", id)
		}
	}
	if CanModify(AuthContext{UserID: 5, Role: model.RoleMember}, p) {
		t.Error("unrelated member can modify")
	}
	if !CanModify(AuthContext{UserID: 9, Role: model.RoleAdmin}, p) {
		t.Error("admin cannot modify")
	}
	if CanModify(AuthContext{}, p) {
		t.Error("anonymous can modify")
	}
}

func TestCanDelete(t *testing.T) {
	p := &model.Person{CreatedBy: ptr(2), OwnedBy: ptr(3)}
	if CanDelete(AuthContext{UserID: 2, Role: model.RoleMember}, p) {
		t.Error("creator can delete")
	}
	if !CanDelete(AuthContext{UserID: 3, Role: model.RoleMember}, p) {
		t.Error("owner cannot delete")
	}
	if !CanDelete(AuthContext{UserID: 1, Role: model.RoleAdmin}, p) {
		t.Error("admin cannot delete")
	}
}

func TestCanExport(t *testing.T) {
	if CanExport(AuthContext{UserID: 2, Role: model.RoleMember}) {
		t.Error("member without flag can export")
	}
	if !CanExport(AuthContext{UserID: 2, Role: model.RoleMember, CanExport: true}) {
		t.Error("member with flag cannot export")
	}
	if !CanExport(AuthContext{UserID: 1, Role: model.RoleAdmin}) {
		t.Error("admin cannot export")
	}
	if CanExport(AuthContext{CanExport: true}) {
		t.Error("anonymous can export")
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Errorf("err = %v, want %v", err, ErrPasswordTooShort)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("matching password rejected")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("wrong password accepted")
	}
	if CheckPassword("", "anything") {
		t.Error("empty hash accepted")
	}
}

func TestCanCreate(t *testing.T) {
	tests := []struct {
		ac   AuthContext
		want bool
	}{
		{AuthContext{}, false},
		{AuthContext{UserID: 1, Role: model.RoleVisitor}, false},
		{AuthContext{UserID: 2, Role: model.RoleMember}, true},
		{AuthContext{UserID: 3, Role: model.RoleAdmin}, true},
	}
	for _, tt := range tests {
		if got := CanCreate(tt.ac); got != tt.want {
			t.Errorf("CanCreate(%+v) = %v, want %v", tt.ac, got, tt.want)
		}
	}
}
