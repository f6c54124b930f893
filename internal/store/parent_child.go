package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/kinship/internal/model"
)

type ParentChildStore struct {
	db *sql.DB
}

func NewParentChildStore(db *sql.DB) *ParentChildStore {
	return &ParentChildStore{db: db}
}

const parentChildCols = `id, parent_id, child_id, relationship_type, status, notes, created_by, created_at, updated_at`

func scanParentChild(sc scanner) (*model.ParentChild, error) {
	var e model.ParentChild
	var createdBy sql.NullInt64
	err := sc.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.RelationshipType, &e.Status, &e.Notes, &createdBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedBy = idPtr(createdBy)
	return &e, nil
}

func scanParentChildren(rows *sql.Rows) ([]model.ParentChild, error) {
	var edges []model.ParentChild
	for rows.Next() {
		e, err := scanParentChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parent-child: %w", err)
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

// Create links parent to child. The pair must be distinct, not already
// linked, and the parent must be born first when both birth dates are known.
func (s *ParentChildStore) Create(e *model.ParentChild) (*model.ParentChild, error) {
	if e.ParentID == e.ChildID {
		return nil, ErrSelfRelation
	}
	if e.RelationshipType == "" {
		e.RelationshipType = model.ParentChildBiological
	}
	if e.Status == "" {
		e.Status = model.StatusConfirmed
	}

	var parentBirth, childBirth sql.NullString
	err := s.db.QueryRow(`SELECT birth_date FROM people WHERE id = ?`, e.ParentID).Scan(&parentBirth)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query parent: %w", err)
	}
	err = s.db.QueryRow(`SELECT birth_date FROM people WHERE id = ?`, e.ChildID).Scan(&childBirth)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query child: %w", err)
	}
	// YYYY-MM-DD strings order chronologically.
	if parentBirth.Valid && childBirth.Valid && parentBirth.String >= childBirth.String {
		return nil, ErrParentNotOlder
	}

	exists, err := s.Exists(e.ParentID, e.ChildID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateRelation
	}

	result, err := s.db.Exec(
		`INSERT INTO parent_child (parent_id, child_id, relationship_type, status, notes, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ParentID, e.ChildID, e.RelationshipType, e.Status, e.Notes, idArg(e.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert parent-child: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ParentChildStore) Exists(parentID, childID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM parent_child WHERE parent_id = ? AND child_id = ?`, parentID, childID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check parent-child exists: %w", err)
	}
	return n > 0, nil
}

func (s *ParentChildStore) GetByID(id int64) (*model.ParentChild, error) {
	row := s.db.QueryRow(`SELECT `+parentChildCols+` FROM parent_child WHERE id = ?`, id)
	e, err := scanParentChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent-child: %w", err)
	}
	return e, nil
}

func (s *ParentChildStore) ListAll() ([]model.ParentChild, error) {
	rows, err := s.db.Query(`SELECT ` + parentChildCols + ` FROM parent_child ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query parent-child: %w", err)
	}
	defer rows.Close()
	return scanParentChildren(rows)
}

// ListByPerson returns edges where id is either the parent or the child.
func (s *ParentChildStore) ListByPerson(id int64) ([]model.ParentChild, error) {
	rows, err := s.db.Query(`SELECT `+parentChildCols+` FROM parent_child WHERE parent_id = ? OR child_id = ? ORDER BY id`, id, id)
	if err != nil {
		return nil, fmt.Errorf("query parent-child by person: %w", err)
	}
	defer rows.Close()
	return scanParentChildren(rows)
}

func (s *ParentChildStore) UpdateStatus(id int64, status model.RelationStatus) error {
	_, err := s.db.Exec(`UPDATE parent_child SET status = ?, updated_at = datetime('now') WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update parent-child status: %w", err)
	}
	return nil
}

func (s *ParentChildStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM parent_child WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete parent-child: %w", err)
	}
	return nil
}
