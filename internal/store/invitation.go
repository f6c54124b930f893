package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

const InvitationTTL = 7 * 24 * time.Hour

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

const invitationCols = `id, email, role, token, invited_by, status, expires_at, accepted_at, created_at`

func scanInvitation(sc scanner) (*model.Invitation, error) {
	var inv model.Invitation
	var acceptedAt sql.NullTime
	err := sc.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.AcceptedAt = timePtr(acceptedAt)
	return &inv, nil
}

// Create issues a new invitation. Earlier pending invitations for the same
// email are cancelled first.
func (s *InvitationStore) Create(email string, role model.Role, invitedBy int64) (*model.Invitation, error) {
	email = strings.TrimSpace(email)
	_, err := s.db.Exec(
		`UPDATE invitations SET status = ? WHERE email = ? AND status = ?`,
		model.InvitationCancelled, email, model.InvitationPending,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel previous invitations: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`INSERT INTO invitations (email, role, token, invited_by, expires_at) VALUES (?, ?, ?, ?, ?)`,
		email, role, token, invitedBy, sqlTime(time.Now().Add(InvitationTTL)),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return scanInvitation(s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id))
}

// GetPendingByToken returns a pending, unexpired invitation or nil.
func (s *InvitationStore) GetPendingByToken(token string) (*model.Invitation, error) {
	row := s.db.QueryRow(
		`SELECT `+invitationCols+` FROM invitations WHERE token = ? AND status = ? AND expires_at > datetime('now')`,
		token, model.InvitationPending,
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) ListPending() ([]model.Invitation, error) {
	rows, err := s.db.Query(
		`SELECT `+invitationCols+` FROM invitations WHERE status = ? AND expires_at > datetime('now') ORDER BY created_at DESC`,
		model.InvitationPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query invitations: %w", err)
	}
	defer rows.Close()

	var out []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *InvitationStore) MarkAccepted(id int64) error {
	_, err := s.db.Exec(
		`UPDATE invitations SET status = ?, accepted_at = datetime('now') WHERE id = ?`,
		model.InvitationAccepted, id,
	)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	return nil
}

func (s *InvitationStore) Cancel(id int64) error {
	_, err := s.db.Exec(
		`UPDATE invitations SET status = ? WHERE id = ? AND status = ?`,
		model.InvitationCancelled, id, model.InvitationPending,
	)
	if err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	return nil
}

// DeleteExpired removes pending invitations past their expiry.
func (s *InvitationStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM invitations WHERE status = ? AND expires_at <= datetime('now')`,
		model.InvitationPending,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	return rowsAffected(res, "delete expired invitations")
}
