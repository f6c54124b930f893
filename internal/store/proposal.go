package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

type ProposalStore struct {
	db *sql.DB
}

func NewProposalStore(db *sql.DB) *ProposalStore {
	return &ProposalStore{db: db}
}

const proposalCols = `id, person_id, proposed_by, field_name, old_value, new_value, justification, status, reviewed_by, review_notes, created_at, reviewed_at`

func scanProposal(sc scanner) (*model.ModificationProposal, error) {
	var p model.ModificationProposal
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	err := sc.Scan(&p.ID, &p.PersonID, &p.ProposedBy, &p.FieldName, &p.OldValue, &p.NewValue, &p.Justification,
		&p.Status, &reviewedBy, &p.ReviewNotes, &p.CreatedAt, &reviewedAt)
	if err != nil {
		return nil, err
	}
	p.ReviewedBy = idPtr(reviewedBy)
	p.ReviewedAt = timePtr(reviewedAt)
	return &p, nil
}

func scanProposals(rows *sql.Rows) ([]model.ModificationProposal, error) {
	var out []model.ModificationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create records a pending proposal, capturing the field's current value as
// old_value. The new value must be acceptable for the field.
func (s *ProposalStore) Create(personID, proposedBy int64, field, newValue, justification string) (*model.ModificationProposal, error) {
	if !model.IsProposable(field) {
		return nil, ErrFieldNotProposable
	}
	person, err := NewPersonStore(s.db).GetByID(personID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, ErrPersonNotFound
	}
	oldValue, err := person.FieldValue(field)
	if err != nil {
		return nil, ErrFieldNotProposable
	}
	candidate := *person
	if err := candidate.SetField(field, newValue); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidValue, field, err)
	}

	result, err := s.db.Exec(
		`INSERT INTO modification_proposals (person_id, proposed_by, field_name, old_value, new_value, justification)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		personID, proposedBy, field, oldValue, newValue, justification,
	)
	if err != nil {
		return nil, fmt.Errorf("insert proposal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ProposalStore) GetByID(id int64) (*model.ModificationProposal, error) {
	row := s.db.QueryRow(`SELECT `+proposalCols+` FROM modification_proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (s *ProposalStore) ListPending() ([]model.ModificationProposal, error) {
	rows, err := s.db.Query(`SELECT `+proposalCols+` FROM modification_proposals WHERE status = ? ORDER BY created_at, id`, model.ProposalPending)
	if err != nil {
		return nil, fmt.Errorf("query pending proposals: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (s *ProposalStore) ListByPerson(personID int64) ([]model.ModificationProposal, error) {
	rows, err := s.db.Query(`SELECT `+proposalCols+` FROM modification_proposals WHERE person_id = ? ORDER BY created_at DESC, id DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("query proposals by person: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (s *ProposalStore) ListByProposer(userID int64) ([]model.ModificationProposal, error) {
	rows, err := s.db.Query(`SELECT `+proposalCols+` FROM modification_proposals WHERE proposed_by = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query proposals by proposer: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (s *ProposalStore) CountPending() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM modification_proposals WHERE status = ?`, model.ProposalPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending proposals: %w", err)
	}
	return n, nil
}

// Approve applies the proposed value to the person and marks the proposal
// approved in one transaction.
func (s *ProposalStore) Approve(id, reviewerID int64, notes string) (*model.ModificationProposal, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := scanProposal(tx.QueryRow(`SELECT `+proposalCols+` FROM modification_proposals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if p.Status != model.ProposalPending {
		return nil, ErrProposalReviewed
	}

	person, err := scanPerson(tx.QueryRow(`SELECT `+personCols+` FROM people WHERE id = ?`, p.PersonID))
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	if err := person.SetField(p.FieldName, p.NewValue); err != nil {
		return nil, fmt.Errorf("apply proposal: %w", err)
	}
	if err := updatePerson(tx, person); err != nil {
		return nil, err
	}

	if err := markReviewed(tx, id, model.ProposalApproved, reviewerID, notes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Reject marks a pending proposal rejected without touching the person.
func (s *ProposalStore) Reject(id, reviewerID int64, notes string) (*model.ModificationProposal, error) {
	p, err := s.GetByID(id)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Status != model.ProposalPending {
		return nil, ErrProposalReviewed
	}
	if err := markReviewed(s.db, id, model.ProposalRejected, reviewerID, notes); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func markReviewed(db execer, id int64, status model.ProposalStatus, reviewerID int64, notes string) error {
	res, err := db.Exec(
		`UPDATE modification_proposals SET status = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ?
		 WHERE id = ? AND status = ?`,
		status, reviewerID, notes, sqlTime(time.Now()), id, model.ProposalPending,
	)
	if err != nil {
		return fmt.Errorf("review proposal: %w", err)
	}
	n, err := rowsAffected(res, "review proposal")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProposalReviewed
	}
	return nil
}
