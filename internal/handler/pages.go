package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2 Jan 2006")
	},
	"timestamp": func(t time.Time) string {
		return t.Format("2 Jan 2006 15:04")
	},
	// dict builds a map from alternating keys and values for sub-templates.
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}

// Templates holds every embedded page. Each file renders a complete
// document using the shared "header" and "footer" blocks.
type Templates struct {
	tmpl   *template.Template
	logger *slog.Logger
}

func NewTemplates(logger *slog.Logger) *Templates {
	tmpl := template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html"))
	return &Templates{tmpl: tmpl, logger: logger.With("component", "templates")}
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (t *Templates) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		t.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type PageHandler struct {
	people        *store.PersonStore
	graph         *store.GraphStore
	proposals     *store.ProposalStore
	notifications *store.NotificationStore
	templates     *Templates
	logger        *slog.Logger
	now           func() time.Time
}

func NewPageHandler(ps *store.PersonStore, gs *store.GraphStore, prs *store.ProposalStore, ns *store.NotificationStore, t *Templates, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		people:        ps,
		graph:         gs,
		proposals:     prs,
		notifications: ns,
		templates:     t,
		logger:        logger.With("component", "pages"),
		now:           time.Now,
	}
}

type pageData struct {
	Title  string
	Viewer auth.AuthContext
	Data   any
}

// Home handles GET /{$}. Signed-in users go straight to the dashboard.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	if ac.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	result, err := h.people.Search(store.SearchParams{Scope: scopeFor(ac)})
	if err != nil {
		h.logger.Error("count public people", "error", err)
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}
	h.templates.render(w, http.StatusOK, "home.html", pageData{
		Title:  "Kinship",
		Viewer: ac,
		Data:   map[string]any{"PublicCount": result.Total},
	})
}

type dashboardData struct {
	Stats            family.Statistics
	Recent           []personRef
	Unread           int
	PendingProposals int
}

// Dashboard handles GET /dashboard.
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	g, err := h.graph.Load()
	if err != nil {
		h.logger.Error("load graph", "error", err)
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}
	recent, err := h.people.Recent(10)
	if err != nil {
		h.logger.Error("recent people", "error", err)
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}
	data := dashboardData{Stats: family.Stats(g)}
	for i := range recent {
		if auth.CanView(ac, &recent[i]) {
			data.Recent = append(data.Recent, refFor(ac, &recent[i]))
		}
	}
	if data.Unread, err = h.notifications.UnreadCount(ac.UserID); err != nil {
		h.logger.Error("count unread", "error", err)
	}
	if ac.IsAdmin() {
		if data.PendingProposals, err = h.proposals.CountPending(); err != nil {
			h.logger.Error("count pending proposals", "error", err)
		}
	}
	h.templates.render(w, http.StatusOK, "dashboard.html", pageData{Title: "Dashboard", Viewer: ac, Data: data})
}

// Person handles GET /people/{id}. Anonymous visitors reach it through
// OptionalAuth and only see public people.
func (h *PageHandler) Person(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	id, err := parseIDParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	g, err := h.graph.Load()
	if err != nil {
		h.logger.Error("load graph", "error", err)
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}
	p, ok := g.Lookup(id)
	if !ok || !auth.CanView(ac, p) {
		h.templates.render(w, http.StatusNotFound, "not_found.html", pageData{Title: "Not found", Viewer: ac})
		return
	}
	d := newPersonDetail(ac, g, p, h.now())
	h.templates.render(w, http.StatusOK, "person.html", pageData{Title: p.FullName(), Viewer: ac, Data: d})
}

// Search handles GET /search?q=&page=.
func (h *PageHandler) Search(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	q := r.URL.Query().Get("q")
	result, err := h.people.Search(store.SearchParams{
		Query: q,
		Page:  queryInt(r, "page"),
		Scope: scopeFor(ac),
	})
	if err != nil {
		h.logger.Error("search people", "error", err)
		http.Error(w, "failed to search", http.StatusInternalServerError)
		return
	}
	refs := make([]personRef, 0, len(result.People))
	for i := range result.People {
		refs = append(refs, refFor(ac, &result.People[i]))
	}
	h.templates.render(w, http.StatusOK, "search.html", pageData{
		Title:  "Search",
		Viewer: ac,
		Data: map[string]any{
			"Query":      q,
			"Results":    refs,
			"Total":      result.Total,
			"Page":       result.Page,
			"TotalPages": result.TotalPages,
			"HasPrev":    result.Page > 1,
			"HasNext":    result.Page < result.TotalPages,
			"PrevPage":   result.Page - 1,
			"NextPage":   result.Page + 1,
		},
	})
}

// Notifications handles GET /notifications.
func (h *PageHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	list, err := h.notifications.ListForUser(ac.UserID, false, defaultInboxLimit)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		http.Error(w, "failed to load notifications", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	h.templates.render(w, http.StatusOK, "notifications.html", pageData{Title: "Notifications", Viewer: ac, Data: list})
}
