package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

// NotificationTTL is the default lifetime of a notification.
const NotificationTTL = 30 * 24 * time.Hour

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, recipient_id, type, title, message, related_person_id, related_proposal_id,
	priority, is_read, read_at, action_url, created_by, created_at, expires_at`

func scanNotification(sc scanner) (*model.Notification, error) {
	var n model.Notification
	var person, proposal, createdBy sql.NullInt64
	var readAt, expiresAt sql.NullTime
	err := sc.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &person, &proposal,
		&n.Priority, &n.IsRead, &readAt, &n.ActionURL, &createdBy, &n.CreatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	n.RelatedPersonID = idPtr(person)
	n.RelatedProposalID = idPtr(proposal)
	n.CreatedBy = idPtr(createdBy)
	n.ReadAt = timePtr(readAt)
	n.ExpiresAt = timePtr(expiresAt)
	return &n, nil
}

// Create stores a notification. Priority defaults to normal and expiry to
// NotificationTTL from now.
func (s *NotificationStore) Create(n *model.Notification) (*model.Notification, error) {
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}
	expires := time.Now().Add(NotificationTTL)
	if n.ExpiresAt != nil {
		expires = *n.ExpiresAt
	}
	result, err := s.db.Exec(
		`INSERT INTO notifications (recipient_id, type, title, message, related_person_id, related_proposal_id,
			priority, action_url, created_by, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.Type, n.Title, n.Message, idArg(n.RelatedPersonID), idArg(n.RelatedProposalID),
		n.Priority, n.ActionURL, idArg(n.CreatedBy), sqlTime(time.Now()), sqlTime(expires),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id, n.RecipientID)
}

func (s *NotificationStore) GetByID(id, recipientID int64) (*model.Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListForUser returns unexpired notifications, newest first.
func (s *NotificationStore) ListForUser(recipientID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications
		WHERE recipient_id = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) UnreadCount(recipientID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0
		 AND (expires_at IS NULL OR expires_at > datetime('now'))`, recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one notification read. It reports false when the
// notification does not belong to the recipient.
func (s *NotificationStore) MarkRead(id, recipientID int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, datetime('now')) WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := rowsAffected(res, "mark notification read")
	return n > 0, err
}

func (s *NotificationStore) MarkAllRead(recipientID int64) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE notifications SET is_read = 1, read_at = datetime('now') WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return rowsAffected(res, "mark all notifications read")
}

func (s *NotificationStore) Delete(id, recipientID int64) error {
	_, err := s.db.Exec(`DELETE FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return rowsAffected(res, "delete expired notifications")
}
