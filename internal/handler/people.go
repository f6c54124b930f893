package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
)

const autocompleteLimit = 10

type PersonHandler struct {
	people *store.PersonStore
	graph  *store.GraphStore
	audit  *audit.Recorder
	notify *notify.Service
	logger *slog.Logger
	now    func() time.Time
}

func NewPersonHandler(ps *store.PersonStore, gs *store.GraphStore, ar *audit.Recorder, ns *notify.Service, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{
		people: ps,
		graph:  gs,
		audit:  ar,
		notify: ns,
		logger: logger.With("component", "people"),
		now:    time.Now,
	}
}

type personRequest struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	MaidenName string `json:"maiden_name" validate:"max=100"`
	Gender     string `json:"gender" validate:"required,oneof=M F O"`
	Tribe      string `json:"tribe" validate:"max=100"`
	Clan       string `json:"clan" validate:"max=100"`
	BirthDate  string `json:"birth_date" validate:"isodate"`
	DeathDate  string `json:"death_date" validate:"isodate"`
	BirthPlace string `json:"birth_place" validate:"max=200"`
	DeathPlace string `json:"death_place" validate:"max=200"`
	Biography  string `json:"biography" validate:"max=10000"`
	Profession string `json:"profession" validate:"max=200"`
	Education  string `json:"education" validate:"max=200"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public family private"`
}

var errDeathBeforeBirth = errors.New("death_date cannot be before birth_date")

// apply copies the request onto p. Dates have already passed validation.
func (req *personRequest) apply(p *model.Person) error {
	birth, _ := model.ParseDate(req.BirthDate)
	death, _ := model.ParseDate(req.DeathDate)
	if birth != nil && death != nil && death.Before(*birth) {
		return errDeathBeforeBirth
	}
	p.FirstName = strings.TrimSpace(req.FirstName)
	p.LastName = strings.TrimSpace(req.LastName)
	p.MaidenName = strings.TrimSpace(req.MaidenName)
	p.Gender = model.Gender(req.Gender)
	p.Tribe = strings.TrimSpace(req.Tribe)
	p.Clan = strings.TrimSpace(req.Clan)
	p.BirthDate = birth
	p.DeathDate = death
	p.BirthPlace = strings.TrimSpace(req.BirthPlace)
	p.DeathPlace = strings.TrimSpace(req.DeathPlace)
	p.Biography = strings.TrimSpace(req.Biography)
	p.Profession = strings.TrimSpace(req.Profession)
	p.Education = strings.TrimSpace(req.Education)
	if req.Visibility != "" {
		p.Visibility = model.Visibility(req.Visibility)
	}
	if p.Visibility == "" {
		p.Visibility = model.VisibilityFamily
	}
	p.IsDeceased = death != nil
	return nil
}

// personRef is how a relative appears in a detail response. People the
// viewer may not see are reduced to their id.
type personRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Lifespan string `json:"lifespan,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Private  bool   `json:"private,omitempty"`
}

func refFor(ac auth.AuthContext, p *model.Person) personRef {
	if !auth.CanView(ac, p) {
		return personRef{ID: p.ID, Name: "Private", Private: true}
	}
	return personRef{ID: p.ID, Name: p.FullName(), Lifespan: p.Lifespan(), Gender: string(p.Gender)}
}

func refsFor(ac auth.AuthContext, people []*model.Person) []personRef {
	out := make([]personRef, 0, len(people))
	for _, p := range people {
		out = append(out, refFor(ac, p))
	}
	return out
}

type personDetail struct {
	*model.Person
	FullName   string      `json:"full_name"`
	Lifespan   string      `json:"lifespan"`
	Age        *int        `json:"age,omitempty"`
	CanEdit    bool        `json:"can_edit"`
	CanDelete  bool        `json:"can_delete"`
	Parents    []personRef `json:"parents"`
	Children   []personRef `json:"children"`
	Partners   []personRef `json:"partners"`
	Siblings   []personRef `json:"siblings"`
	Generation *int        `json:"generation,omitempty"`
}

func newPersonDetail(ac auth.AuthContext, g *family.Graph, p *model.Person, now time.Time) personDetail {
	d := personDetail{
		Person:    p,
		FullName:  p.FullName(),
		Lifespan:  p.Lifespan(),
		CanEdit:   auth.CanModify(ac, p),
		CanDelete: auth.CanDelete(ac, p),
		Parents:   refsFor(ac, g.Resolve(g.Parents(p.ID))),
		Children:  refsFor(ac, g.Resolve(g.Children(p.ID))),
		Partners:  refsFor(ac, g.Resolve(g.Partners(p.ID))),
		Siblings:  refsFor(ac, g.Resolve(g.Siblings(p.ID))),
	}
	if age, ok := p.Age(now); ok {
		d.Age = &age
	}
	if level, ok := g.GenerationLevel(p.ID, g.DefaultRoot(p.ID)); ok {
		d.Generation = &level
	}
	return d
}

// visible loads a person and hides it behind a 404 when the viewer may not
// see it. It writes the response itself and returns nil on any failure.
func (h *PersonHandler) visible(w http.ResponseWriter, r *http.Request) *model.Person {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	p, err := h.people.GetByID(id)
	if err != nil {
		h.logger.Error("get person", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return nil
	}
	if p == nil || !auth.CanView(viewer(r), p) {
		writeError(w, http.StatusNotFound, "person not found")
		return nil
	}
	return p
}

// List handles GET /api/people with the search filters as query parameters.
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.SearchParams{
		Query:         q.Get("q"),
		BirthYearFrom: queryInt(r, "birth_year_from"),
		BirthYearTo:   queryInt(r, "birth_year_to"),
		Page:          queryInt(r, "page"),
		Scope:         scopeFor(viewer(r)),
	}
	if g := model.Gender(q.Get("gender")); g != "" {
		if !model.ValidGender(g) {
			writeError(w, http.StatusBadRequest, "gender must be one of: M F O")
			return
		}
		params.Gender = g
	}
	if v := model.Visibility(q.Get("visibility")); v != "" {
		if !model.ValidVisibility(v) {
			writeError(w, http.StatusBadRequest, "visibility must be one of: public family private")
			return
		}
		params.Visibility = v
	}
	switch q.Get("deceased") {
	case "true", "1":
		t := true
		params.Deceased = &t
	case "false", "0":
		f := false
		params.Deceased = &f
	}

	result, err := h.people.Search(params)
	if err != nil {
		h.logger.Error("search people", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search people")
		return
	}
	if result.People == nil {
		result.People = []model.Person{}
	}
	writeJSON(w, http.StatusOK, result)
}

// Autocomplete handles GET /api/people/search?q=. Anonymous callers only
// match public people.
func (h *PersonHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	people, err := h.people.Autocomplete(r.URL.Query().Get("q"), scopeFor(viewer(r)), autocompleteLimit)
	if err != nil {
		h.logger.Error("autocomplete people", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search people")
		return
	}
	out := make([]personRef, 0, len(people))
	for i := range people {
		p := &people[i]
		out = append(out, personRef{ID: p.ID, Name: p.FullName(), Lifespan: p.Lifespan(), Gender: string(p.Gender)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := h.visible(w, r)
	if p == nil {
		return
	}
	g, err := h.graph.Load()
	if err != nil {
		h.logger.Error("load graph", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load relationships")
		return
	}
	writeJSON(w, http.StatusOK, newPersonDetail(viewer(r), g, p, h.now()))
}

func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	if !auth.CanCreate(ac) {
		writeError(w, http.StatusForbidden, "visitors cannot add people")
		return
	}
	var req personRequest
	if !decode(w, r, &req) {
		return
	}
	p := &model.Person{}
	if err := req.apply(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := ac.UserID
	p.CreatedBy = &uid
	p.OwnedBy = &uid

	created, err := h.people.Create(p)
	if err != nil {
		h.logger.Error("create person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create person")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditCreate,
		Model:    "person",
		ObjectID: created.ID,
		Changes:  map[string]string{"name": created.FullName()},
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(r.Context(), notify.Event{
		Type:      model.NotifPersonCreated,
		Title:     "New person added",
		Message:   fmt.Sprintf("%s was added to the family tree.", created.FullName()),
		PersonID:  created.ID,
		Priority:  model.PriorityNormal,
		ActionURL: personURL(created.ID),
		ActorID:   ac.UserID,
	})
	h.notify.Broadcast("person", "created", created.ID)

	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/people/{id}. Users who can see but not modify the
// person get a 403 and must submit a proposal instead.
func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	existing := h.visible(w, r)
	if existing == nil {
		return
	}
	if !auth.CanModify(ac, existing) {
		writeError(w, http.StatusForbidden, "you cannot edit this person; submit a proposal instead")
		return
	}
	var req personRequest
	if !decode(w, r, &req) {
		return
	}
	updated := *existing
	if err := req.apply(&updated); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changes := diffPerson(existing, &updated)
	if len(changes) == 0 {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	saved, err := h.people.Update(&updated)
	if err != nil {
		h.logger.Error("update person", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update person")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditUpdate,
		Model:    "person",
		ObjectID: saved.ID,
		Changes:  changes,
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(r.Context(), notify.Event{
		Type:      model.NotifPersonEdited,
		Title:     "Person updated",
		Message:   fmt.Sprintf("%s was edited (%d field(s) changed).", saved.FullName(), len(changes)),
		PersonID:  saved.ID,
		Priority:  model.PriorityLow,
		ActionURL: personURL(saved.ID),
		ActorID:   ac.UserID,
	})
	h.notify.Broadcast("person", "updated", saved.ID)

	writeJSON(w, http.StatusOK, saved)
}

func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	p := h.visible(w, r)
	if p == nil {
		return
	}
	if !auth.CanDelete(ac, p) {
		writeError(w, http.StatusForbidden, "only admins and the owner can delete a person")
		return
	}
	if err := h.people.Delete(p.ID); err != nil {
		h.logger.Error("delete person", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete person")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditDelete,
		Model:    "person",
		ObjectID: p.ID,
		Changes:  map[string]string{"name": p.FullName()},
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(r.Context(), notify.Event{
		Type:     model.NotifPersonDeleted,
		Title:    "Person deleted",
		Message:  fmt.Sprintf("%s was removed from the family tree.", p.FullName()),
		Priority: model.PriorityHigh,
		ActorID:  ac.UserID,
	})
	h.notify.Broadcast("person", "deleted", p.ID)

	w.WriteHeader(http.StatusNoContent)
}

// diffPerson lists changed proposable fields plus visibility.
func diffPerson(before, after *model.Person) []audit.FieldChange {
	var out []audit.FieldChange
	for _, f := range model.ProposableFields {
		old, _ := before.FieldValue(f)
		cur, _ := after.FieldValue(f)
		if old != cur {
			out = append(out, audit.FieldChange{Field: f, Old: old, New: cur})
		}
	}
	if before.Visibility != after.Visibility {
		out = append(out, audit.FieldChange{Field: "visibility", Old: string(before.Visibility), New: string(after.Visibility)})
	}
	return out
}

func personURL(id int64) string {
	return fmt.Sprintf("/people/%d", id)
}
