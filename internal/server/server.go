package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kinship/internal/archive"
	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/config"
	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/handler"
	"github.com/dukerupert/kinship/internal/maintenance"
	"github.com/dukerupert/kinship/internal/metrics"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/push"
	"github.com/dukerupert/kinship/internal/store"
	ws "github.com/dukerupert/kinship/internal/websocket"
)

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

type Server struct {
	db      *sql.DB
	hub     *ws.Hub
	metrics *metrics.Metrics

	personH       *handler.PersonHandler
	relationshipH *handler.RelationshipHandler
	proposalH     *handler.ProposalHandler
	familyH       *handler.FamilyHandler
	notificationH *handler.NotificationHandler
	pushH         *handler.PushHandler
	adminH        *handler.AdminHandler
	authH         *handler.AuthHandler
	pageH         *handler.PageHandler

	userStore    *store.UserStore
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	notifier     *notify.Service
	archives     *archive.Manager
	janitor      *maintenance.Janitor
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	personStore := store.NewPersonStore(db)
	parentChildStore := store.NewParentChildStore(db)
	partnershipStore := store.NewPartnershipStore(db)
	graphStore := store.NewGraphStore(db)
	proposalStore := store.NewProposalStore(db)
	notificationStore := store.NewNotificationStore(db)
	auditStore := store.NewAuditStore(db)
	archiveStore := store.NewArchiveStore(db)
	pushStore := store.NewPushStore(db)

	// Auth stores
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	invitationStore := store.NewInvitationStore(db)

	// Push is optional; without VAPID keys notifications still reach the
	// inbox and open WebSocket connections.
	var pushSvc *push.Service
	var pusher notify.Pusher
	if cfg.PushEnabled() {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		pusher = pushSvc
	}

	notifier := notify.NewService(notificationStore, userStore, pushStore, hub, pusher, m, logger)
	recorder := audit.NewRecorder(auditStore, logger)
	exporter := family.NewExporter("KINSHIP", "Kinship")

	archiveMgr := archive.NewManager(archive.Config{
		S3:            cfg.S3,
		Passphrase:    cfg.ArchivePassphrase,
		Interval:      cfg.ArchiveInterval,
		RetentionDays: cfg.ArchiveRetentionDays,
	}, graphStore, archiveStore, exporter, m, logger)
	archiveMgr.OnStatus(func(s archive.Status) {
		hub.Broadcast(ws.NewMessage("archive", string(s.State), 0, map[string]any{
			"in_progress": s.InProgress,
			"error":       s.Error,
		}))
		if s.State == archive.StateError {
			notifier.NotifyAdmins(context.Background(), notify.Event{
				Type:     model.NotifSystemAlert,
				Title:    "Archive failed",
				Message:  s.Error,
				Priority: model.PriorityUrgent,
			})
		}
	})

	checkCfg := family.DefaultCheckConfig()
	checkCfg.MinParentAge = cfg.MinParentAge
	checkCfg.DeathGraceYears = cfg.DeathGraceYears
	checkCfg.MatchBirthDate = cfg.DuplicateMatchBirthDate

	rateLimiter := middleware.NewRateLimiter()
	templates := handler.NewTemplates(logger)

	return &Server{
		db:      db,
		hub:     hub,
		metrics: m,

		personH:       handler.NewPersonHandler(personStore, graphStore, recorder, notifier, logger),
		relationshipH: handler.NewRelationshipHandler(personStore, parentChildStore, partnershipStore, graphStore, recorder, notifier, logger),
		proposalH:     handler.NewProposalHandler(proposalStore, personStore, recorder, notifier, logger),
		familyH:       handler.NewFamilyHandler(graphStore, exporter, checkCfg, archiveMgr, archiveStore, recorder, m, logger),
		notificationH: handler.NewNotificationHandler(notificationStore, logger),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger),
		adminH:        handler.NewAdminHandler(userStore, sessionStore, invitationStore, auditStore, recorder, notifier, cfg.BaseURL, logger),
		authH:         handler.NewAuthHandler(userStore, sessionStore, invitationStore, recorder, notifier, templates, cfg.SecureCookies, logger),
		pageH:         handler.NewPageHandler(personStore, graphStore, proposalStore, notificationStore, templates, logger),

		userStore:    userStore,
		sessionStore: sessionStore,
		rateLimiter:  rateLimiter,
		notifier:     notifier,
		archives:     archiveMgr,
		janitor:      maintenance.NewJanitor(sessionStore, invitationStore, notificationStore, cfg.JanitorInterval, logger, rateLimiter),
		logger:       logger,
	}
}

// Archives returns the archive manager so the caller can run its schedule.
func (s *Server) Archives() *archive.Manager {
	return s.archives
}

// Janitor returns the background cleanup task.
func (s *Server) Janitor() *maintenance.Janitor {
	return s.janitor
}

// Shutdown waits for in-flight push deliveries.
func (s *Server) Shutdown() {
	s.notifier.Wait()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	optional := middleware.OptionalAuth(s.sessionStore, s.userStore)
	mux.Handle("GET /{$}", optional(http.HandlerFunc(s.pageH.Home)))
	mux.Handle("GET /login", optional(http.HandlerFunc(s.authH.LoginPage)))
	mux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.HandleFunc("GET /invite/accept", s.authH.InviteAcceptPage)
	mux.HandleFunc("POST /invite/accept", s.rateLimitedHandler(s.authH.InviteAccept))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Anonymous visitors see public people only.
	mux.Handle("GET /api/people/search", optional(http.HandlerFunc(s.personH.Autocomplete)))
	mux.Handle("GET /people/{id}", optional(http.HandlerFunc(s.pageH.Person)))
	mux.Handle("GET /search", optional(http.HandlerFunc(s.pageH.Search)))

	s.registerProtectedRoutes(mux)
	s.registerAdminRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if v, err := database.Version(s.db); err == nil {
		status["schema_version"] = v
	}
	status["websocket_clients"] = s.hub.ClientCount()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, loginAttempts, loginWindow)
	return rl(h).ServeHTTP
}

// Routes are registered one by one on the outer mux so the matched pattern
// reaches the request metrics.
func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	authed := middleware.RequireAuth(s.sessionStore, s.userStore)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	// Pages
	handle("GET /dashboard", s.pageH.Dashboard)
	handle("GET /notifications", s.pageH.Notifications)

	// People
	handle("GET /api/people", s.personH.List)
	handle("POST /api/people", s.personH.Create)
	handle("GET /api/people/{id}", s.personH.Get)
	handle("PUT /api/people/{id}", s.personH.Update)
	handle("DELETE /api/people/{id}", s.personH.Delete)
	handle("GET /api/people/{id}/proposals", s.proposalH.ListForPerson)
	handle("POST /api/people/{id}/proposals", s.proposalH.Create)

	// Relationships
	handle("POST /api/people/{id}/children", s.relationshipH.AddChild)
	handle("POST /api/people/{id}/parents", s.relationshipH.AddParent)
	handle("GET /api/people/{id}/relationship/{other}", s.relationshipH.Relationship)
	handle("GET /api/people/{id}/generation", s.relationshipH.Generation)
	handle("GET /api/people/{id}/descendants", s.relationshipH.Descendants)
	handle("POST /api/partnerships", s.relationshipH.AddPartnership)
	handle("DELETE /api/parent-child/{id}", s.relationshipH.DeleteParentChild)
	handle("DELETE /api/partnerships/{id}", s.relationshipH.DeletePartnership)

	handle("GET /api/proposals/mine", s.proposalH.ListMine)

	// Family views
	handle("GET /api/tree", s.familyH.Tree)
	handle("GET /api/stats", s.familyH.Stats)
	handle("GET /export/gedcom", s.familyH.ExportGEDCOM)

	// Notifications
	handle("GET /api/notifications", s.notificationH.List)
	handle("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	handle("POST /api/notifications/read-all", s.notificationH.MarkAllRead)
	handle("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	handle("DELETE /api/notifications/{id}", s.notificationH.Delete)

	// Push notification API routes
	handle("POST /api/push/subscribe", s.pushH.Subscribe)
	handle("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	handle("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	handle("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	handle("POST /api/push/test", s.pushH.TestNotification)

	handle("GET /api/me", s.authH.Me)
	handle("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), nil))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	authed := middleware.RequireAuth(s.sessionStore, s.userStore)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(middleware.RequireAdmin(h)))
	}

	// Proposal review
	handle("GET /api/proposals", s.proposalH.ListPending)
	handle("POST /api/proposals/{id}/approve", s.proposalH.Approve)
	handle("POST /api/proposals/{id}/reject", s.proposalH.Reject)

	// Relationship status
	handle("PATCH /api/parent-child/{id}", s.relationshipH.SetParentChildStatus)
	handle("PATCH /api/partnerships/{id}", s.relationshipH.SetPartnershipStatus)

	handle("GET /api/consistency", s.familyH.Consistency)
	handle("GET /api/audit", s.adminH.AuditLog)

	// Users and invitations
	handle("GET /api/users", s.adminH.ListUsers)
	handle("PATCH /api/users/{id}", s.adminH.UpdateUser)
	handle("GET /api/invitations", s.adminH.ListInvitations)
	handle("POST /api/invitations", s.adminH.Invite)
	handle("DELETE /api/invitations/{id}", s.adminH.CancelInvitation)

	// Archives
	handle("GET /api/archives", s.familyH.ListArchives)
	handle("POST /api/archives/run", s.familyH.RunArchive)
	handle("GET /api/archives/{id}/download", s.familyH.DownloadArchive)
}
