package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/kinship/internal/model"
)

type PartnershipStore struct {
	db *sql.DB
}

func NewPartnershipStore(db *sql.DB) *PartnershipStore {
	return &PartnershipStore{db: db}
}

const partnershipCols = `id, person1_id, person2_id, partnership_type, status, start_date, end_date, location, notes, created_by, created_at, updated_at`

func scanPartnership(sc scanner) (*model.Partnership, error) {
	var p model.Partnership
	var start, end sql.NullString
	var createdBy sql.NullInt64
	err := sc.Scan(&p.ID, &p.Person1ID, &p.Person2ID, &p.PartnershipType, &p.Status, &start, &end, &p.Location, &p.Notes, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.StartDate, err = parseDateCol(start); err != nil {
		return nil, err
	}
	if p.EndDate, err = parseDateCol(end); err != nil {
		return nil, err
	}
	p.CreatedBy = idPtr(createdBy)
	return &p, nil
}

func scanPartnerships(rows *sql.Rows) ([]model.Partnership, error) {
	var out []model.Partnership
	for rows.Next() {
		p, err := scanPartnership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partnership: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create stores a partnership with the pair ordered lower id first, so
// (a, b) and (b, a) are the same partnership.
func (s *PartnershipStore) Create(p *model.Partnership) (*model.Partnership, error) {
	if p.Person1ID == p.Person2ID {
		return nil, ErrSelfRelation
	}
	p.Person1ID, p.Person2ID = model.NormalizePair(p.Person1ID, p.Person2ID)
	if p.PartnershipType == "" {
		p.PartnershipType = model.PartnershipMarriage
	}
	if p.Status == "" {
		p.Status = model.StatusConfirmed
	}

	var known int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM people WHERE id IN (?, ?)`, p.Person1ID, p.Person2ID).Scan(&known)
	if err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}
	if known != 2 {
		return nil, ErrPersonNotFound
	}

	existing, err := s.GetByPair(p.Person1ID, p.Person2ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRelation
	}

	result, err := s.db.Exec(
		`INSERT INTO partnerships (person1_id, person2_id, partnership_type, status, start_date, end_date, location, notes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Person1ID, p.Person2ID, p.PartnershipType, p.Status, dateArg(p.StartDate), dateArg(p.EndDate), p.Location, p.Notes, idArg(p.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert partnership: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PartnershipStore) GetByID(id int64) (*model.Partnership, error) {
	row := s.db.QueryRow(`SELECT `+partnershipCols+` FROM partnerships WHERE id = ?`, id)
	p, err := scanPartnership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get partnership: %w", err)
	}
	return p, nil
}

// GetByPair finds the partnership between a and b in either order.
func (s *PartnershipStore) GetByPair(a, b int64) (*model.Partnership, error) {
	a, b = model.NormalizePair(a, b)
	row := s.db.QueryRow(`SELECT `+partnershipCols+` FROM partnerships WHERE person1_id = ? AND person2_id = ?`, a, b)
	p, err := scanPartnership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get partnership by pair: %w", err)
	}
	return p, nil
}

func (s *PartnershipStore) ListAll() ([]model.Partnership, error) {
	rows, err := s.db.Query(`SELECT ` + partnershipCols + ` FROM partnerships ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query partnerships: %w", err)
	}
	defer rows.Close()
	return scanPartnerships(rows)
}

func (s *PartnershipStore) ListByPerson(id int64) ([]model.Partnership, error) {
	rows, err := s.db.Query(`SELECT `+partnershipCols+` FROM partnerships WHERE person1_id = ? OR person2_id = ? ORDER BY id`, id, id)
	if err != nil {
		return nil, fmt.Errorf("query partnerships by person: %w", err)
	}
	defer rows.Close()
	return scanPartnerships(rows)
}

func (s *PartnershipStore) UpdateStatus(id int64, status model.RelationStatus) error {
	_, err := s.db.Exec(`UPDATE partnerships SET status = ?, updated_at = datetime('now') WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update partnership status: %w", err)
	}
	return nil
}

func (s *PartnershipStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM partnerships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete partnership: %w", err)
	}
	return nil
}
