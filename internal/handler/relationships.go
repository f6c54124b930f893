package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
)

type RelationshipHandler struct {
	people       *store.PersonStore
	parentChild  *store.ParentChildStore
	partnerships *store.PartnershipStore
	graph        *store.GraphStore
	audit        *audit.Recorder
	notify       *notify.Service
	logger       *slog.Logger
}

func NewRelationshipHandler(ps *store.PersonStore, pcs *store.ParentChildStore, pts *store.PartnershipStore, gs *store.GraphStore, ar *audit.Recorder, ns *notify.Service, logger *slog.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		people:       ps,
		parentChild:  pcs,
		partnerships: pts,
		graph:        gs,
		audit:        ar,
		notify:       ns,
		logger:       logger.With("component", "relationships"),
	}
}

type parentChildRequest struct {
	PersonID         int64  `json:"person_id" validate:"gt=0"`
	RelationshipType string `json:"relationship_type" validate:"omitempty,oneof=biological adopted stepchild foster"`
	Notes            string `json:"notes" validate:"max=1000"`
}

type partnershipRequest struct {
	Person1ID       int64  `json:"person1_id" validate:"gt=0"`
	Person2ID       int64  `json:"person2_id" validate:"gt=0,nefield=Person1ID"`
	PartnershipType string `json:"partnership_type" validate:"omitempty,oneof=marriage partnership engagement"`
	StartDate       string `json:"start_date" validate:"isodate"`
	EndDate         string `json:"end_date" validate:"isodate"`
	Location        string `json:"location" validate:"max=200"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=proposed confirmed rejected"`
}

// editable loads the person named by the path and checks the viewer may
// change its relationships.
func (h *RelationshipHandler) editable(w http.ResponseWriter, r *http.Request) *model.Person {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	ac := viewer(r)
	p, err := h.people.GetByID(id)
	if err != nil {
		h.logger.Error("get person", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return nil
	}
	if p == nil || !auth.CanView(ac, p) {
		writeError(w, http.StatusNotFound, "person not found")
		return nil
	}
	if !auth.CanCreate(ac) || !auth.CanModify(ac, p) {
		writeError(w, http.StatusForbidden, "you cannot change this person's relationships")
		return nil
	}
	return p
}

// AddChild handles POST /api/people/{id}/children.
func (h *RelationshipHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	parent := h.editable(w, r)
	if parent == nil {
		return
	}
	var req parentChildRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.viewable(w, r, req.PersonID) {
		return
	}
	h.createParentChild(w, r, parent.ID, req.PersonID, req)
}

// AddParent handles POST /api/people/{id}/parents.
func (h *RelationshipHandler) AddParent(w http.ResponseWriter, r *http.Request) {
	child := h.editable(w, r)
	if child == nil {
		return
	}
	var req parentChildRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.viewable(w, r, req.PersonID) {
		return
	}
	h.createParentChild(w, r, req.PersonID, child.ID, req)
}

// viewable reports whether the other end of a new edge exists and is
// visible to the viewer, writing a 404 otherwise.
func (h *RelationshipHandler) viewable(w http.ResponseWriter, r *http.Request, id int64) bool {
	p, err := h.people.GetByID(id)
	if err != nil {
		h.logger.Error("get person", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create relationship")
		return false
	}
	if p == nil || !auth.CanView(viewer(r), p) {
		writeError(w, http.StatusNotFound, store.ErrPersonNotFound.Error())
		return false
	}
	return true
}

func (h *RelationshipHandler) createParentChild(w http.ResponseWriter, r *http.Request, parentID, childID int64, req parentChildRequest) {
	ac := viewer(r)
	uid := ac.UserID
	edge, err := h.parentChild.Create(&model.ParentChild{
		ParentID:         parentID,
		ChildID:          childID,
		RelationshipType: model.ParentChildType(req.RelationshipType),
		Notes:            req.Notes,
		CreatedBy:        &uid,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("create parent-child", "parent_id", parentID, "child_id", childID, "error", err)
		}
		writeStoreError(w, err, "failed to create relationship")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditCreate,
		Model:    "parent_child",
		ObjectID: edge.ID,
		Changes:  edge,
		IP:       middleware.RealIP(r),
	})
	if parent, _ := h.people.GetByID(parentID); parent != nil {
		child, _ := h.people.GetByID(childID)
		childName := fmt.Sprintf("Person #%d", childID)
		if child != nil {
			childName = child.FullName()
		}
		h.notify.NotifyAdmins(r.Context(), notify.Event{
			Type:      model.NotifChildAdded,
			Title:     "Child added",
			Message:   fmt.Sprintf("%s was added as a child of %s.", childName, parent.FullName()),
			PersonID:  childID,
			Priority:  model.PriorityNormal,
			ActionURL: personURL(childID),
			ActorID:   ac.UserID,
		})
	}
	h.notify.Broadcast("parent_child", "created", edge.ID)

	writeJSON(w, http.StatusCreated, edge)
}

// AddPartnership handles POST /api/partnerships. The viewer must be able to
// modify at least one of the two partners.
func (h *RelationshipHandler) AddPartnership(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	if !auth.CanCreate(ac) {
		writeError(w, http.StatusForbidden, "visitors cannot add relationships")
		return
	}
	var req partnershipRequest
	if !decode(w, r, &req) {
		return
	}
	start, _ := model.ParseDate(req.StartDate)
	end, _ := model.ParseDate(req.EndDate)
	if start != nil && end != nil && end.Before(*start) {
		writeError(w, http.StatusBadRequest, "end_date cannot be before start_date")
		return
	}

	p1, err := h.people.GetByID(req.Person1ID)
	if err != nil {
		h.logger.Error("get person", "id", req.Person1ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create partnership")
		return
	}
	p2, err := h.people.GetByID(req.Person2ID)
	if err != nil {
		h.logger.Error("get person", "id", req.Person2ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create partnership")
		return
	}
	if p1 == nil || p2 == nil || !auth.CanView(ac, p1) || !auth.CanView(ac, p2) {
		writeError(w, http.StatusNotFound, store.ErrPersonNotFound.Error())
		return
	}
	if !auth.CanModify(ac, p1) && !auth.CanModify(ac, p2) {
		writeError(w, http.StatusForbidden, "you cannot change either person's relationships")
		return
	}

	uid := ac.UserID
	part, err := h.partnerships.Create(&model.Partnership{
		Person1ID:       req.Person1ID,
		Person2ID:       req.Person2ID,
		PartnershipType: model.PartnershipType(req.PartnershipType),
		StartDate:       start,
		EndDate:         end,
		Location:        req.Location,
		Notes:           req.Notes,
		CreatedBy:       &uid,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("create partnership", "error", err)
		}
		writeStoreError(w, err, "failed to create partnership")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditCreate,
		Model:    "partnership",
		ObjectID: part.ID,
		Changes:  part,
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(r.Context(), notify.Event{
		Type:      model.NotifPartnershipCreated,
		Title:     "Partnership recorded",
		Message:   fmt.Sprintf("%s and %s are now recorded as partners.", p1.FullName(), p2.FullName()),
		PersonID:  p1.ID,
		Priority:  model.PriorityNormal,
		ActionURL: personURL(p1.ID),
		ActorID:   ac.UserID,
	})
	h.notify.Broadcast("partnership", "created", part.ID)

	writeJSON(w, http.StatusCreated, part)
}

// canEditEither reports whether the viewer may modify either endpoint.
func (h *RelationshipHandler) canEditEither(ac auth.AuthContext, a, b int64) (bool, error) {
	if ac.IsAdmin() {
		return true, nil
	}
	for _, id := range []int64{a, b} {
		p, err := h.people.GetByID(id)
		if err != nil {
			return false, err
		}
		if p != nil && auth.CanModify(ac, p) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteParentChild handles DELETE /api/parent-child/{id}.
func (h *RelationshipHandler) DeleteParentChild(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	edge, err := h.parentChild.GetByID(id)
	if err != nil {
		h.logger.Error("get parent-child", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete relationship")
		return
	}
	if edge == nil {
		writeError(w, http.StatusNotFound, "relationship not found")
		return
	}
	ok, err := h.canEditEither(viewer(r), edge.ParentID, edge.ChildID)
	if err != nil {
		h.logger.Error("check permissions", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete relationship")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "you cannot remove this relationship")
		return
	}
	if err := h.parentChild.Delete(id); err != nil {
		h.logger.Error("delete parent-child", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete relationship")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditDelete,
		Model:    "parent_child",
		ObjectID: id,
		Changes:  edge,
		IP:       middleware.RealIP(r),
	})
	h.notify.Broadcast("parent_child", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeletePartnership handles DELETE /api/partnerships/{id}.
func (h *RelationshipHandler) DeletePartnership(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	part, err := h.partnerships.GetByID(id)
	if err != nil {
		h.logger.Error("get partnership", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete partnership")
		return
	}
	if part == nil {
		writeError(w, http.StatusNotFound, "partnership not found")
		return
	}
	ok, err := h.canEditEither(viewer(r), part.Person1ID, part.Person2ID)
	if err != nil {
		h.logger.Error("check permissions", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete partnership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "you cannot remove this partnership")
		return
	}
	if err := h.partnerships.Delete(id); err != nil {
		h.logger.Error("delete partnership", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete partnership")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditDelete,
		Model:    "partnership",
		ObjectID: id,
		Changes:  part,
		IP:       middleware.RealIP(r),
	})
	h.notify.Broadcast("partnership", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetParentChildStatus handles PATCH /api/parent-child/{id}. Admin only.
func (h *RelationshipHandler) SetParentChildStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	edge, err := h.parentChild.GetByID(id)
	if err != nil {
		h.logger.Error("get parent-child", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update relationship")
		return
	}
	if edge == nil {
		writeError(w, http.StatusNotFound, "relationship not found")
		return
	}
	status := model.RelationStatus(req.Status)
	if err := h.parentChild.UpdateStatus(id, status); err != nil {
		h.logger.Error("update parent-child status", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update relationship")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditUpdate,
		Model:    "parent_child",
		ObjectID: id,
		Changes:  audit.FieldChange{Field: "status", Old: string(edge.Status), New: req.Status},
		IP:       middleware.RealIP(r),
	})
	edge.Status = status
	h.notify.Broadcast("parent_child", "updated", id)
	writeJSON(w, http.StatusOK, edge)
}

// SetPartnershipStatus handles PATCH /api/partnerships/{id}. Admin only.
func (h *RelationshipHandler) SetPartnershipStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	part, err := h.partnerships.GetByID(id)
	if err != nil {
		h.logger.Error("get partnership", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update partnership")
		return
	}
	if part == nil {
		writeError(w, http.StatusNotFound, "partnership not found")
		return
	}
	status := model.RelationStatus(req.Status)
	if err := h.partnerships.UpdateStatus(id, status); err != nil {
		h.logger.Error("update partnership status", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update partnership")
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditUpdate,
		Model:    "partnership",
		ObjectID: id,
		Changes:  audit.FieldChange{Field: "status", Old: string(part.Status), New: req.Status},
		IP:       middleware.RealIP(r),
	})
	part.Status = status
	h.notify.Broadcast("partnership", "updated", id)
	writeJSON(w, http.StatusOK, part)
}

// loadVisible loads the graph and checks every id exists and is visible.
func (h *RelationshipHandler) loadVisible(w http.ResponseWriter, r *http.Request, ids ...int64) *family.Graph {
	g, err := h.graph.Load()
	if err != nil {
		h.logger.Error("load graph", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load relationships")
		return nil
	}
	ac := viewer(r)
	for _, id := range ids {
		p, ok := g.Lookup(id)
		if !ok || !auth.CanView(ac, p) {
			writeError(w, http.StatusNotFound, "person not found")
			return nil
		}
	}
	return g
}

// Relationship handles GET /api/people/{id}/relationship/{other} and
// answers what {id} is to {other}.
func (h *RelationshipHandler) Relationship(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	other, err := parsePathInt(r, "other")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid other id")
		return
	}
	g := h.loadVisible(w, r, id, other)
	if g == nil {
		return
	}
	rel := g.Classify(id, other)
	writeJSON(w, http.StatusOK, map[string]any{
		"person_id":    id,
		"other_id":     other,
		"relationship": rel,
		"label":        family.Label(rel),
	})
}

// Generation handles GET /api/people/{id}/generation?root=. Without root the
// person's topmost first-parent ancestor is used.
func (h *RelationshipHandler) Generation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var root int64
	if s := r.URL.Query().Get("root"); s != "" {
		root, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid root")
			return
		}
	}
	ids := []int64{id}
	if root != 0 {
		ids = append(ids, root)
	}
	g := h.loadVisible(w, r, ids...)
	if g == nil {
		return
	}
	if root == 0 {
		root = g.DefaultRoot(id)
	}
	resp := map[string]any{"person_id": id, "root_id": root, "connected": false}
	if level, ok := g.GenerationLevel(id, root); ok {
		resp["generation"] = level
		resp["connected"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// Descendants handles GET /api/people/{id}/descendants. The person itself is
// not included.
func (h *RelationshipHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	g := h.loadVisible(w, r, id)
	if g == nil {
		return
	}
	desc := g.Descendants(id)
	if len(desc) > 0 {
		desc = desc[1:]
	}
	writeJSON(w, http.StatusOK, refsFor(viewer(r), g.Resolve(desc)))
}
