package model

import "time"

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

type ModificationProposal struct {
	ID            int64          `json:"id"`
	PersonID      int64          `json:"person_id"`
	ProposedBy    int64          `json:"proposed_by"`
	FieldName     string         `json:"field_name"`
	OldValue      string         `json:"old_value"`
	NewValue      string         `json:"new_value"`
	Justification string         `json:"justification"`
	Status        ProposalStatus `json:"status"`
	ReviewedBy    *int64         `json:"reviewed_by,omitempty"`
	ReviewNotes   string         `json:"review_notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
}
