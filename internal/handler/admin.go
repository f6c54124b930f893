package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
)

// AdminHandler covers user management, invitations and the audit log. Every
// route is mounted behind RequireAdmin.
type AdminHandler struct {
	users       *store.UserStore
	sessions    *store.SessionStore
	invitations *store.InvitationStore
	auditLog    *store.AuditStore
	audit       *audit.Recorder
	notify      *notify.Service
	baseURL     string
	logger      *slog.Logger
}

func NewAdminHandler(us *store.UserStore, ss *store.SessionStore, is *store.InvitationStore, as *store.AuditStore, ar *audit.Recorder, ns *notify.Service, baseURL string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:       us,
		sessions:    ss,
		invitations: is,
		auditLog:    as,
		audit:       ar,
		notify:      ns,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger.With("component", "admin"),
	}
}

// ListUsers handles GET /api/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List()
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type updateUserRequest struct {
	FirstName      *string `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string `json:"last_name" validate:"omitempty,max=100"`
	Role           *string `json:"role" validate:"omitempty,oneof=admin member visitor"`
	IsActive       *bool   `json:"is_active"`
	CanExport      *bool   `json:"can_export"`
	CanViewPrivate *bool   `json:"can_view_private"`
}

// UpdateUser handles PATCH /api/users/{id}. Admins cannot demote or
// deactivate themselves.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateUserRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.users.GetByID(id)
	if err != nil {
		h.logger.Error("get user", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if id == ac.UserID {
		if req.IsActive != nil && !*req.IsActive {
			writeError(w, http.StatusBadRequest, "you cannot deactivate your own account")
			return
		}
		if req.Role != nil && model.Role(*req.Role) != model.RoleAdmin {
			writeError(w, http.StatusBadRequest, "you cannot remove your own admin role")
			return
		}
	}

	before := *u
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Role != nil {
		u.Role = model.Role(*req.Role)
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.CanExport != nil {
		u.CanExport = *req.CanExport
	}
	if req.CanViewPrivate != nil {
		u.CanViewPrivate = *req.CanViewPrivate
	}

	updated, err := h.users.Update(u)
	if err != nil {
		h.logger.Error("update user", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	changes := userChanges(&before, updated)
	if len(changes) > 0 {
		h.audit.Record(r.Context(), audit.Entry{
			Action:   model.AuditUpdate,
			Model:    "user",
			ObjectID: updated.ID,
			Changes:  changes,
			IP:       middleware.RealIP(r),
		})
	}

	if before.IsActive && !updated.IsActive {
		if err := h.sessions.DeleteByUser(updated.ID); err != nil {
			h.logger.Error("delete sessions for deactivated user", "id", updated.ID, "error", err)
		}
		h.notify.NotifyAdmins(r.Context(), notify.Event{
			Type:     model.NotifUserDeactivated,
			Title:    "User deactivated",
			Message:  fmt.Sprintf("%s can no longer sign in.", updated.FullName()),
			Priority: model.PriorityHigh,
			ActorID:  ac.UserID,
		})
	}

	writeJSON(w, http.StatusOK, updated)
}

func userChanges(before, after *model.User) []audit.FieldChange {
	var out []audit.FieldChange
	add := func(field, old, cur string) {
		if old != cur {
			out = append(out, audit.FieldChange{Field: field, Old: old, New: cur})
		}
	}
	add("first_name", before.FirstName, after.FirstName)
	add("last_name", before.LastName, after.LastName)
	add("role", string(before.Role), string(after.Role))
	add("is_active", fmt.Sprint(before.IsActive), fmt.Sprint(after.IsActive))
	add("can_export", fmt.Sprint(before.CanExport), fmt.Sprint(after.CanExport))
	add("can_view_private", fmt.Sprint(before.CanViewPrivate), fmt.Sprint(after.CanViewPrivate))
	return out
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=admin member visitor"`
}

type inviteResponse struct {
	Invitation *model.Invitation `json:"invitation"`
	AcceptURL  string            `json:"accept_url"`
}

// Invite handles POST /api/invitations. The response carries the accept
// link for the admin to pass on.
func (h *AdminHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	var req inviteRequest
	if !decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(email)
	if err != nil {
		h.logger.Error("invite lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invitation")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "a user with this email already exists")
		return
	}

	role := model.Role(req.Role)
	if role == "" {
		role = model.RoleMember
	}
	inv, err := h.invitations.Create(email, role, ac.UserID)
	if err != nil {
		h.logger.Error("create invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invitation")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditCreate,
		Model:    "invitation",
		ObjectID: inv.ID,
		Changes:  map[string]string{"email": inv.Email, "role": string(inv.Role)},
		IP:       middleware.RealIP(r),
	})

	writeJSON(w, http.StatusCreated, inviteResponse{
		Invitation: inv,
		AcceptURL:  h.baseURL + "/invite/accept?token=" + url.QueryEscape(inv.Token),
	})
}

// ListInvitations handles GET /api/invitations
func (h *AdminHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	list, err := h.invitations.ListPending()
	if err != nil {
		h.logger.Error("list invitations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}
	if list == nil {
		list = []model.Invitation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CancelInvitation handles DELETE /api/invitations/{id}
func (h *AdminHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.invitations.Cancel(id); err != nil {
		h.logger.Error("cancel invitation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel invitation")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditDelete,
		Model:    "invitation",
		ObjectID: id,
		IP:       middleware.RealIP(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

// AuditLog handles GET /api/audit?user_id=&action=&model=&page=
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	const pageSize = 50
	q := r.URL.Query()
	page := max(queryInt(r, "page"), 1)
	entries, err := h.auditLog.List(store.AuditFilter{
		UserID:    int64(queryInt(r, "user_id")),
		Action:    model.AuditAction(q.Get("action")),
		ModelName: q.Get("model"),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("list audit log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []model.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "entries": entries})
}
