package model

import "time"

type RelationStatus string

const (
	StatusProposed  RelationStatus = "proposed"
	StatusConfirmed RelationStatus = "confirmed"
	StatusRejected  RelationStatus = "rejected"
)

type ParentChildType string

const (
	ParentChildBiological ParentChildType = "biological"
	ParentChildAdopted    ParentChildType = "adopted"
	ParentChildStep       ParentChildType = "stepchild"
	ParentChildFoster     ParentChildType = "foster"
)

type ParentChild struct {
	ID               int64           `json:"id"`
	ParentID         int64           `json:"parent_id"`
	ChildID          int64           `json:"child_id"`
	RelationshipType ParentChildType `json:"relationship_type"`
	Status           RelationStatus  `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	CreatedBy        *int64          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type PartnershipType string

const (
	PartnershipMarriage   PartnershipType = "marriage"
	PartnershipUnion      PartnershipType = "partnership"
	PartnershipEngagement PartnershipType = "engagement"
)

type Partnership struct {
	ID              int64           `json:"id"`
	Person1ID       int64           `json:"person1_id"`
	Person2ID       int64           `json:"person2_id"`
	PartnershipType PartnershipType `json:"partnership_type"`
	Status          RelationStatus  `json:"status"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	Location        string          `json:"location,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       *int64          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Other returns the partner on the opposite side of id, or 0 if id is not
// part of the partnership.
func (p *Partnership) Other(id int64) int64 {
	switch id {
	case p.Person1ID:
		return p.Person2ID
	case p.Person2ID:
		return p.Person1ID
	}
	return 0
}

// NormalizePair orders a partner pair with the lower id first.
func NormalizePair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func ValidParentChildType(t ParentChildType) bool {
	switch t {
	case ParentChildBiological, ParentChildAdopted, ParentChildStep, ParentChildFoster:
		return true
	}
	return false
}

func ValidPartnershipType(t PartnershipType) bool {
	switch t {
	case PartnershipMarriage, PartnershipUnion, PartnershipEngagement:
		return true
	}
	return false
}

func ValidRelationStatus(s RelationStatus) bool {
	return s == StatusProposed || s == StatusConfirmed || s == StatusRejected
}
