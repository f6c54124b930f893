package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

type ArchiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

const archiveCols = `id, filename, object_key, size_bytes, people_count, status, error_message, created_by, completed_at, created_at, updated_at`

func scanArchive(sc scanner) (*model.Archive, error) {
	var a model.Archive
	var createdBy sql.NullInt64
	var completedAt sql.NullTime
	err := sc.Scan(&a.ID, &a.Filename, &a.ObjectKey, &a.SizeBytes, &a.PeopleCount, &a.Status, &a.ErrorMessage,
		&createdBy, &completedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedBy = idPtr(createdBy)
	a.CompletedAt = timePtr(completedAt)
	return &a, nil
}

func (s *ArchiveStore) Create(filename, objectKey string, createdBy *int64) (*model.Archive, error) {
	now := sqlTime(time.Now())
	result, err := s.db.Exec(
		`INSERT INTO archives (filename, object_key, status, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		filename, objectKey, model.ArchiveStatusPending, idArg(createdBy), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ArchiveStore) GetByID(id int64) (*model.Archive, error) {
	a, err := scanArchive(s.db.QueryRow(`SELECT `+archiveCols+` FROM archives WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archive %d: %w", id, err)
	}
	return a, nil
}

func (s *ArchiveStore) List(limit int) ([]model.Archive, error) {
	rows, err := s.db.Query(`SELECT `+archiveCols+` FROM archives ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []model.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *ArchiveStore) UpdateStatus(id int64, status model.ArchiveStatus, errorMsg string) error {
	_, err := s.db.Exec(
		`UPDATE archives SET status = ?, error_message = ?, updated_at = datetime('now') WHERE id = ?`,
		status, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update archive status: %w", err)
	}
	return nil
}

func (s *ArchiveStore) UpdateCompleted(id, sizeBytes int64, peopleCount int) error {
	now := sqlTime(time.Now())
	_, err := s.db.Exec(
		`UPDATE archives SET status = ?, size_bytes = ?, people_count = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.ArchiveStatusCompleted, sizeBytes, peopleCount, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update archive completed: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes archives created before the cutoff and returns the
// object keys of the deleted rows.
func (s *ArchiveStore) DeleteOlderThan(before time.Time) ([]string, error) {
	cutoff := sqlTime(before)
	rows, err := s.db.Query(`SELECT object_key FROM archives WHERE created_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select old archives: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM archives WHERE created_at < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("delete old archives: %w", err)
	}
	return keys, nil
}

func (s *ArchiveStore) LatestCompleted() (*model.Archive, error) {
	a, err := scanArchive(s.db.QueryRow(
		`SELECT `+archiveCols+` FROM archives WHERE status = ? ORDER BY completed_at DESC LIMIT 1`,
		model.ArchiveStatusCompleted,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed archive: %w", err)
	}
	return a, nil
}
