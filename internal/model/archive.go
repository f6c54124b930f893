package model

import "time"

type ArchiveStatus string

const (
	ArchiveStatusPending   ArchiveStatus = "pending"
	ArchiveStatusUploading ArchiveStatus = "uploading"
	ArchiveStatusCompleted ArchiveStatus = "completed"
	ArchiveStatusFailed    ArchiveStatus = "failed"
)

// Archive is an encrypted GEDCOM snapshot stored in object storage.
type Archive struct {
	ID           int64         `json:"id"`
	Filename     string        `json:"filename"`
	ObjectKey    string        `json:"object_key"`
	SizeBytes    int64         `json:"size_bytes"`
	PeopleCount  int           `json:"people_count"`
	Status       ArchiveStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedBy    *int64        `json:"created_by,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
