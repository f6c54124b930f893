package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
)

type AuthHandler struct {
	userStore       *store.UserStore
	sessionStore    *store.SessionStore
	invitationStore *store.InvitationStore
	audit           *audit.Recorder
	notify          *notify.Service
	templates       *Templates
	secureCookies   bool
	logger          *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	is *store.InvitationStore,
	ar *audit.Recorder,
	ns *notify.Service,
	t *Templates,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:       us,
		sessionStore:    ss,
		invitationStore: is,
		audit:           ar,
		notify:          ns,
		templates:       t,
		secureCookies:   secureCookies,
		logger:          logger.With("component", "auth"),
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/dashboard"
	}
	return next
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if viewer(r).Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.templates.render(w, http.StatusOK, "login.html", pageData{
		Title: "Sign in",
		Data:  map[string]any{"Next": r.URL.Query().Get("next")},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")
	next := r.FormValue("next")

	fail := func(status int, msg string) {
		h.templates.render(w, status, "login.html", pageData{
			Title: "Sign in",
			Data:  map[string]any{"Email": email, "Next": next, "Error": msg},
		})
	}

	if email == "" || password == "" {
		fail(http.StatusBadRequest, "Email and password are required.")
		return
	}

	user, hash, err := h.userStore.GetCredentials(email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		fail(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	// Same message for unknown email, wrong password and inactive account.
	if user == nil || !auth.CheckPassword(hash, password) || !user.IsActive {
		h.logger.Info("login failed", "email", email, "ip", middleware.RealIP(r))
		fail(http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		fail(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	h.setSessionCookie(w, sess)
	h.logger.Info("login", "user_id", user.ID)

	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessionStore.Delete(cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) InviteAcceptPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	inv, err := h.invitationStore.GetPendingByToken(token)
	if err != nil {
		h.logger.Error("invite lookup", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if inv == nil {
		h.templates.render(w, http.StatusGone, "invite.html", pageData{
			Title: "Invitation",
			Data:  map[string]any{"Error": "This invitation has expired or was already used."},
		})
		return
	}
	h.templates.render(w, http.StatusOK, "invite.html", pageData{
		Title: "Accept invitation",
		Data:  map[string]any{"Token": token, "Email": inv.Email},
	})
}

type acceptInviteForm struct {
	Token     string `validate:"required"`
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"max=100"`
	Password  string `validate:"required,min=8"`
	Confirm   string `validate:"eqfield=Password"`
}

func (h *AuthHandler) InviteAccept(w http.ResponseWriter, r *http.Request) {
	form := acceptInviteForm{
		Token:     r.FormValue("token"),
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
		Password:  r.FormValue("password"),
		Confirm:   r.FormValue("confirm"),
	}

	inv, err := h.invitationStore.GetPendingByToken(form.Token)
	if err != nil {
		h.logger.Error("invite lookup", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if inv == nil {
		h.templates.render(w, http.StatusGone, "invite.html", pageData{
			Title: "Invitation",
			Data:  map[string]any{"Error": "This invitation has expired or was already used."},
		})
		return
	}

	fail := func(status int, msg string) {
		h.templates.render(w, status, "invite.html", pageData{
			Title: "Accept invitation",
			Data: map[string]any{
				"Token": form.Token, "Email": inv.Email,
				"FirstName": form.FirstName, "LastName": form.LastName, "Error": msg,
			},
		})
	}

	if err := validate.Struct(form); err != nil {
		fail(http.StatusBadRequest, inviteFormMessage(err))
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("hash password", "error", err)
		fail(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	existing, err := h.userStore.GetByEmail(inv.Email)
	if err != nil {
		h.logger.Error("invite user lookup", "error", err)
		fail(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	if existing != nil {
		fail(http.StatusConflict, "An account with this email already exists. Sign in instead.")
		return
	}

	user, err := h.userStore.Create(inv.Email, form.FirstName, form.LastName, inv.Role, hash)
	if err != nil {
		h.logger.Error("create invited user", "error", err)
		fail(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	if err := h.invitationStore.MarkAccepted(inv.ID); err != nil {
		h.logger.Error("mark invitation accepted", "id", inv.ID, "error", err)
	}

	ctx := auth.WithAuth(r.Context(), auth.FromUser(user, 0))
	h.audit.Record(ctx, audit.Entry{
		Action:   model.AuditCreate,
		Model:    "user",
		ObjectID: user.ID,
		Changes:  map[string]string{"email": user.Email, "role": string(user.Role)},
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(ctx, notify.Event{
		Type:     model.NotifUserCreated,
		Title:    "New user joined",
		Message:  fmt.Sprintf("%s accepted an invitation as %s.", user.FullName(), user.Role),
		Priority: model.PriorityNormal,
		ActorID:  user.ID,
	})

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create invite session", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.setSessionCookie(w, sess)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func inviteFormMessage(err error) string {
	switch msg := validationMessage(err); {
	case strings.HasPrefix(msg, "Confirm"):
		return "Passwords do not match."
	case strings.HasPrefix(msg, "Password"):
		return msg + "."
	case strings.HasPrefix(msg, "FirstName"):
		return "First name is required."
	default:
		return "Please check the form and try again."
	}
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	u, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		h.logger.Error("get current user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": u,
		"permissions": map[string]bool{
			"create": auth.CanCreate(ac),
			"export": auth.CanExport(ac),
			"review": auth.CanReview(ac),
		},
	})
}
