package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

const auditCols = `id, user_id, action, model_name, object_id, changes, ip_address, timestamp`

func scanAudit(sc scanner) (*model.AuditLog, error) {
	var a model.AuditLog
	var userID, objectID sql.NullInt64
	var changes string
	if err := sc.Scan(&a.ID, &userID, &a.Action, &a.ModelName, &objectID, &changes, &a.IPAddress, &a.Timestamp); err != nil {
		return nil, err
	}
	a.UserID = idPtr(userID)
	a.ObjectID = idPtr(objectID)
	a.Changes = []byte(changes)
	return &a, nil
}

// Append writes one audit entry. Entries are never updated.
func (s *AuditStore) Append(a *model.AuditLog) (*model.AuditLog, error) {
	changes := string(a.Changes)
	if changes == "" {
		changes = "{}"
	}
	result, err := s.db.Exec(
		`INSERT INTO audit_logs (user_id, action, model_name, object_id, changes, ip_address, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idArg(a.UserID), a.Action, a.ModelName, idArg(a.ObjectID), changes, a.IPAddress, sqlTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+auditCols+` FROM audit_logs WHERE id = ?`, id)
	return scanAudit(row)
}

type AuditFilter struct {
	UserID    int64
	Action    model.AuditAction
	ModelName string
	Limit     int
	Offset    int
}

// List returns entries newest first.
func (s *AuditStore) List(f AuditFilter) ([]model.AuditLog, error) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.ModelName != "" {
		conds = append(conds, "model_name = ?")
		args = append(args, f.ModelName)
	}
	query := `SELECT ` + auditCols + ` FROM audit_logs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
