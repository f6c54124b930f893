package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/middleware"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
)

type ProposalHandler struct {
	proposals *store.ProposalStore
	people    *store.PersonStore
	audit     *audit.Recorder
	notify    *notify.Service
	logger    *slog.Logger
}

func NewProposalHandler(prs *store.ProposalStore, ps *store.PersonStore, ar *audit.Recorder, ns *notify.Service, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{
		proposals: prs,
		people:    ps,
		audit:     ar,
		notify:    ns,
		logger:    logger.With("component", "proposals"),
	}
}

type proposalRequest struct {
	FieldName     string `json:"field_name" validate:"required"`
	NewValue      string `json:"new_value" validate:"max=10000"`
	Justification string `json:"justification" validate:"max=2000"`
}

type reviewRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func emptyIfNil(ps []model.ModificationProposal) []model.ModificationProposal {
	if ps == nil {
		return []model.ModificationProposal{}
	}
	return ps
}

// Create handles POST /api/people/{id}/proposals. Any signed-in user who
// can see the person may propose a change to one field.
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac := viewer(r)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	person, err := h.people.GetByID(id)
	if err != nil {
		h.logger.Error("get person", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create proposal")
		return
	}
	if person == nil || !auth.CanView(ac, person) {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	var req proposalRequest
	if !decode(w, r, &req) {
		return
	}
	prop, err := h.proposals.Create(id, ac.UserID, req.FieldName, req.NewValue, req.Justification)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("create proposal", "person_id", id, "error", err)
		}
		writeStoreError(w, err, "failed to create proposal")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Action:   model.AuditCreate,
		Model:    "proposal",
		ObjectID: prop.ID,
		Changes:  audit.FieldChange{Field: prop.FieldName, Old: prop.OldValue, New: prop.NewValue},
		IP:       middleware.RealIP(r),
	})
	h.notify.NotifyAdmins(r.Context(), notify.Event{
		Type:       model.NotifModificationProposed,
		Title:      "Change proposed",
		Message:    fmt.Sprintf("A change to %s of %s is awaiting review.", prop.FieldName, person.FullName()),
		PersonID:   person.ID,
		ProposalID: prop.ID,
		Priority:   model.PriorityNormal,
		ActionURL:  "/proposals",
		ActorID:    ac.UserID,
	})
	h.notify.Broadcast("proposal", "created", prop.ID)

	writeJSON(w, http.StatusCreated, prop)
}

// ListPending handles GET /api/proposals. Admin only.
func (h *ProposalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	props, err := h.proposals.ListPending()
	if err != nil {
		h.logger.Error("list pending proposals", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(props))
}

// ListMine handles GET /api/proposals/mine.
func (h *ProposalHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	props, err := h.proposals.ListByProposer(viewer(r).UserID)
	if err != nil {
		h.logger.Error("list own proposals", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(props))
}

// ListForPerson handles GET /api/people/{id}/proposals.
func (h *ProposalHandler) ListForPerson(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	person, err := h.people.GetByID(id)
	if err != nil {
		h.logger.Error("get person", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	if person == nil || !auth.CanView(viewer(r), person) {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}
	props, err := h.proposals.ListByPerson(id)
	if err != nil {
		h.logger.Error("list person proposals", "person_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(props))
}

// Approve handles POST /api/proposals/{id}/approve. Admin only.
func (h *ProposalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true)
}

// Reject handles POST /api/proposals/{id}/reject. Admin only.
func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false)
}

func (h *ProposalHandler) review(w http.ResponseWriter, r *http.Request, approve bool) {
	ac := viewer(r)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req reviewRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	var prop *model.ModificationProposal
	if approve {
		prop, err = h.proposals.Approve(id, ac.UserID, req.Notes)
	} else {
		prop, err = h.proposals.Reject(id, ac.UserID, req.Notes)
	}
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("review proposal", "id", id, "approve", approve, "error", err)
		}
		writeStoreError(w, err, "failed to review proposal")
		return
	}
	if prop == nil {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}

	action, notifType, verb := model.AuditReject, model.NotifProposalRejected, "rejected"
	if approve {
		action, notifType, verb = model.AuditApprove, model.NotifProposalApproved, "approved"
	}
	h.audit.Record(r.Context(), audit.Entry{
		Action:   action,
		Model:    "proposal",
		ObjectID: prop.ID,
		Changes:  audit.FieldChange{Field: prop.FieldName, Old: prop.OldValue, New: prop.NewValue},
		IP:       middleware.RealIP(r),
	})

	name := fmt.Sprintf("person #%d", prop.PersonID)
	if p, _ := h.people.GetByID(prop.PersonID); p != nil {
		name = p.FullName()
	}
	msg := fmt.Sprintf("Your change to %s of %s was %s.", prop.FieldName, name, verb)
	if prop.ReviewNotes != "" {
		msg += " Notes: " + prop.ReviewNotes
	}
	if _, err := h.notify.Notify(r.Context(), prop.ProposedBy, notify.Event{
		Type:       notifType,
		Title:      "Proposal " + verb,
		Message:    msg,
		PersonID:   prop.PersonID,
		ProposalID: prop.ID,
		Priority:   model.PriorityNormal,
		ActionURL:  personURL(prop.PersonID),
		ActorID:    ac.UserID,
	}); err != nil {
		h.logger.Error("notify proposer", "proposal_id", prop.ID, "error", err)
	}
	if approve {
		h.notify.Broadcast("person", "updated", prop.PersonID)
	}
	h.notify.Broadcast("proposal", verb, prop.ID)

	writeJSON(w, http.StatusOK, prop)
}
