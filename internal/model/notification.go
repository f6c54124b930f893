package model

import "time"

type NotificationType string

const (
	NotifPersonCreated        NotificationType = "person_created"
	NotifPersonEdited         NotificationType = "person_edited"
	NotifPersonDeleted        NotificationType = "person_deleted"
	NotifChildAdded           NotificationType = "child_added"
	NotifPartnershipCreated   NotificationType = "partnership_created"
	NotifModificationProposed NotificationType = "modification_proposed"
	NotifProposalApproved     NotificationType = "proposal_approved"
	NotifProposalRejected     NotificationType = "proposal_rejected"
	NotifUserCreated          NotificationType = "user_created"
	NotifUserDeactivated      NotificationType = "user_deactivated"
	NotifSystemAlert          NotificationType = "system_alert"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Notification struct {
	ID                int64            `json:"id"`
	RecipientID       int64            `json:"recipient_id"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	RelatedPersonID   *int64           `json:"related_person_id,omitempty"`
	RelatedProposalID *int64           `json:"related_proposal_id,omitempty"`
	Priority          Priority         `json:"priority"`
	IsRead            bool             `json:"is_read"`
	ReadAt            *time.Time       `json:"read_at,omitempty"`
	ActionURL         string           `json:"action_url,omitempty"`
	CreatedBy         *int64           `json:"created_by,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
}

// Icon names the inbox icon for a notification type.
func (n *Notification) Icon() string {
	switch n.Type {
	case NotifPersonCreated, NotifUserCreated:
		return "user-plus"
	case NotifPersonEdited:
		return "edit-3"
	case NotifPersonDeleted:
		return "user-minus"
	case NotifChildAdded:
		return "users"
	case NotifModificationProposed:
		return "edit-2"
	case NotifProposalApproved:
		return "check-circle"
	case NotifProposalRejected:
		return "x-circle"
	case NotifUserDeactivated:
		return "user-x"
	case NotifPartnershipCreated:
		return "heart"
	case NotifSystemAlert:
		return "alert-triangle"
	}
	return "bell"
}

func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}
