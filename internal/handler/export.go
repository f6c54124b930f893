package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/kinship/internal/archive"
	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/metrics"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

// FamilyHandler serves whole-graph views: GEDCOM export, the consistency
// report, statistics, tree data and encrypted archives.
type FamilyHandler struct {
	graph    *store.GraphStore
	exporter *family.Exporter
	checkCfg family.CheckConfig
	archives *archive.Manager
	records  *store.ArchiveStore
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewFamilyHandler(gs *store.GraphStore, exporter *family.Exporter, cfg family.CheckConfig, am *archive.Manager, as *store.ArchiveStore, ar *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{
		graph:    gs,
		exporter: exporter,
		checkCfg: cfg,
		archives: am,
		records:  as,
		audit:    ar,
		metrics:  m,
		logger:   logger.With("component", "family"),
		now:      time.Now,
	}
}

func (h *FamilyHandler) load(w http.ResponseWriter) *family.Graph {
	g, err := h.graph.Load()
	if err != nil {
		h.logger.Error("load graph", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load family data")
		return nil
	}
	return g
}

// ExportGEDCOM handles GET /export/gedcom. A degraded export still returns
// the header and trailer skeleton so the file is importable.
func (h *FamilyHandler) ExportGEDCOM(w http.ResponseWriter, r *http.Request) {
	if !auth.CanExport(viewer(r)) {
		writeError(w, http.StatusForbidden, "export permission required")
		return
	}
	g := h.load(w)
	if g == nil {
		return
	}

	var buf bytes.Buffer
	err := h.exporter.Write(&buf, g)
	h.metrics.ObserveExport("download", err)
	if err != nil && !errors.Is(err, family.ErrDegraded) {
		h.logger.Error("export gedcom", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	if err != nil {
		h.logger.Warn("gedcom export degraded", "error", err)
		w.Header().Set("X-Export-Degraded", "true")
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:  model.AuditExport,
		Model:   "gedcom",
		Changes: map[string]int{"people": g.Len()},
		IP:      middleware.RealIP(r),
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="family.ged"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type consistencyResponse struct {
	Issues    []family.Issue           `json:"issues"`
	Counts    map[family.IssueKind]int `json:"counts"`
	HasErrors bool                     `json:"has_errors"`
	CheckedAt time.Time                `json:"checked_at"`
}

// Consistency handles GET /api/consistency. Admin only.
func (h *FamilyHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	g := h.load(w)
	if g == nil {
		return
	}
	report := family.Check(g, h.checkCfg)
	counts := report.CountByKind()

	gauge := make(map[string]int, len(counts))
	for k, n := range counts {
		gauge[string(k)] = n
	}
	h.metrics.SetConsistencyIssues(gauge)

	issues := report.Issues
	if issues == nil {
		issues = []family.Issue{}
	}
	writeJSON(w, http.StatusOK, consistencyResponse{
		Issues:    issues,
		Counts:    counts,
		HasErrors: report.HasErrors(),
		CheckedAt: h.now().UTC(),
	})
}

// Stats handles GET /api/stats. Only people the viewer can see are counted.
func (h *FamilyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	g := h.load(w)
	if g == nil {
		return
	}
	ac := viewer(r)
	visible := g.Subgraph(func(p *model.Person) bool { return auth.CanView(ac, p) })
	writeJSON(w, http.StatusOK, family.Stats(visible))
}

// Tree handles GET /api/tree?root=. Without a root the first person with no
// recorded parents is used.
func (h *FamilyHandler) Tree(w http.ResponseWriter, r *http.Request) {
	var root int64
	if s := r.URL.Query().Get("root"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid root")
			return
		}
		root = id
	}
	g := h.load(w)
	if g == nil {
		return
	}
	ac := viewer(r)
	if root != 0 {
		p, ok := g.Lookup(root)
		if !ok || !auth.CanView(ac, p) {
			writeError(w, http.StatusNotFound, "person not found")
			return
		}
	} else if roots := g.Roots(); len(roots) > 0 {
		root = roots[0]
	}
	visible := func(p *model.Person) bool { return auth.CanView(ac, p) }
	writeJSON(w, http.StatusOK, family.Tree(g, root, visible, h.now()))
}

type archiveList struct {
	Enabled  bool            `json:"enabled"`
	Status   archive.Status  `json:"status"`
	Archives []model.Archive `json:"archives"`
}

// ListArchives handles GET /api/archives. Admin only.
func (h *FamilyHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := h.records.List(limit)
	if err != nil {
		h.logger.Error("list archives", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if list == nil {
		list = []model.Archive{}
	}
	writeJSON(w, http.StatusOK, archiveList{
		Enabled:  h.archives.Enabled(),
		Status:   h.archives.Status(),
		Archives: list,
	})
}

// RunArchive handles POST /api/archives. Admin only.
func (h *FamilyHandler) RunArchive(w http.ResponseWriter, r *http.Request) {
	uid := viewer(r).UserID
	rec, err := h.archives.RunNow(r.Context(), &uid)
	switch {
	case errors.Is(err, archive.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, archive.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("run archive", "error", err)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditExport,
		Model:    "archive",
		ObjectID: rec.ID,
		Changes:  map[string]any{"key": rec.ObjectKey, "people": rec.PeopleCount},
		IP:       middleware.RealIP(r),
	})
	writeJSON(w, http.StatusCreated, rec)
}

// DownloadArchive handles GET /api/archives/{id}/download and returns the
// decrypted GEDCOM document. Admin only.
func (h *FamilyHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	doc, rec, err := h.archives.Open(r.Context(), id)
	switch {
	case errors.Is(err, archive.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("open archive", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open archive")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditExport,
		Model:    "archive",
		ObjectID: rec.ID,
		Changes:  map[string]string{"download": rec.Filename},
		IP:       middleware.RealIP(r),
	})

	name := strings.TrimSuffix(rec.Filename, ".enc")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
