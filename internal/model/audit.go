package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditCreate  AuditAction = "create"
	AuditUpdate  AuditAction = "update"
	AuditDelete  AuditAction = "delete"
	AuditApprove AuditAction = "approve"
	AuditReject  AuditAction = "reject"
	AuditExport  AuditAction = "export"
)

type AuditLog struct {
	ID        int64           `json:"id"`
	UserID    *int64          `json:"user_id,omitempty"`
	Action    AuditAction     `json:"action"`
	ModelName string          `json:"model_name"`
	ObjectID  *int64          `json:"object_id,omitempty"`
	Changes   json.RawMessage `json:"changes"`
	IPAddress string          `json:"ip_address,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
