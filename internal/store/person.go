package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/kinship/internal/model"
)

const PageSize = 20

type PersonStore struct {
	db *sql.DB
}

func NewPersonStore(db *sql.DB) *PersonStore {
	return &PersonStore{db: db}
}

const personCols = `id, first_name, last_name, maiden_name, gender, tribe, clan,
	birth_date, death_date, birth_place, death_place, biography, profession, education,
	created_by, owned_by, user_account, visibility, is_deceased, created_at, updated_at`

func scanPerson(sc scanner) (*model.Person, error) {
	var p model.Person
	var birth, death sql.NullString
	var createdBy, ownedBy, account sql.NullInt64
	err := sc.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.MaidenName, &p.Gender, &p.Tribe, &p.Clan,
		&birth, &death, &p.BirthPlace, &p.DeathPlace, &p.Biography, &p.Profession, &p.Education,
		&createdBy, &ownedBy, &account, &p.Visibility, &p.IsDeceased, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.BirthDate, err = parseDateCol(birth); err != nil {
		return nil, err
	}
	if p.DeathDate, err = parseDateCol(death); err != nil {
		return nil, err
	}
	p.CreatedBy = idPtr(createdBy)
	p.OwnedBy = idPtr(ownedBy)
	p.UserAccount = idPtr(account)
	return &p, nil
}

func scanPeople(rows *sql.Rows) ([]model.Person, error) {
	var people []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

// Create inserts a person. is_deceased follows the death date and
// visibility defaults to family.
func (s *PersonStore) Create(p *model.Person) (*model.Person, error) {
	p.IsDeceased = p.DeathDate != nil
	if p.Visibility == "" {
		p.Visibility = model.VisibilityFamily
	}
	result, err := s.db.Exec(
		`INSERT INTO people (first_name, last_name, maiden_name, gender, tribe, clan,
			birth_date, death_date, birth_place, death_place, biography, profession, education,
			created_by, owned_by, user_account, visibility, is_deceased)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, p.LastName, p.MaidenName, p.Gender, p.Tribe, p.Clan,
		dateArg(p.BirthDate), dateArg(p.DeathDate), p.BirthPlace, p.DeathPlace, p.Biography, p.Profession, p.Education,
		idArg(p.CreatedBy), idArg(p.OwnedBy), idArg(p.UserAccount), p.Visibility, p.IsDeceased,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PersonStore) GetByID(id int64) (*model.Person, error) {
	row := s.db.QueryRow(`SELECT `+personCols+` FROM people WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// Update writes every editable column of p. is_deceased is recomputed from
// the death date.
func (s *PersonStore) Update(p *model.Person) (*model.Person, error) {
	if err := updatePerson(s.db, p); err != nil {
		return nil, err
	}
	return s.GetByID(p.ID)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func updatePerson(db execer, p *model.Person) error {
	p.IsDeceased = p.DeathDate != nil
	_, err := db.Exec(
		`UPDATE people SET first_name = ?, last_name = ?, maiden_name = ?, gender = ?, tribe = ?, clan = ?,
			birth_date = ?, death_date = ?, birth_place = ?, death_place = ?, biography = ?, profession = ?,
			education = ?, owned_by = ?, user_account = ?, visibility = ?, is_deceased = ?,
			updated_at = datetime('now')
		 WHERE id = ?`,
		p.FirstName, p.LastName, p.MaidenName, p.Gender, p.Tribe, p.Clan,
		dateArg(p.BirthDate), dateArg(p.DeathDate), p.BirthPlace, p.DeathPlace, p.Biography, p.Profession,
		p.Education, idArg(p.OwnedBy), idArg(p.UserAccount), p.Visibility, p.IsDeceased,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// Delete removes a person; parent-child and partnership edges cascade.
func (s *PersonStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM people WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

// ListAll returns every person ordered by id.
func (s *PersonStore) ListAll() ([]model.Person, error) {
	rows, err := s.db.Query(`SELECT ` + personCols + ` FROM people ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()
	return scanPeople(rows)
}

func (s *PersonStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return n, nil
}

// Recent returns the most recently created people.
func (s *PersonStore) Recent(limit int) ([]model.Person, error) {
	rows, err := s.db.Query(`SELECT `+personCols+` FROM people ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent people: %w", err)
	}
	defer rows.Close()
	return scanPeople(rows)
}

// Scope limits which people a query may return.
type Scope struct {
	// All disables visibility filtering.
	All bool
	// Levels are the visibility tiers the viewer may always see.
	Levels []model.Visibility
	// PrivateFor additionally admits private people created by, owned by or
	// linked to this user id.
	PrivateFor int64
}

func (sc Scope) where() (string, []any) {
	if sc.All {
		return "1 = 1", nil
	}
	var clauses []string
	var args []any
	if len(sc.Levels) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(sc.Levels)), ", ")
		clauses = append(clauses, "visibility IN ("+marks+")")
		for _, l := range sc.Levels {
			args = append(args, l)
		}
	}
	if sc.PrivateFor != 0 {
		clauses = append(clauses, "(created_by = ? OR owned_by = ? OR user_account = ?)")
		args = append(args, sc.PrivateFor, sc.PrivateFor, sc.PrivateFor)
	}
	if len(clauses) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

type SearchParams struct {
	Query         string
	BirthYearFrom int
	BirthYearTo   int
	Gender        model.Gender
	Deceased      *bool
	Visibility    model.Visibility
	Scope         Scope
	Page          int
}

type SearchResult struct {
	People     []model.Person `json:"people"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

// Search filters people and returns one page of PageSize results ordered
// by last then first name.
func (s *PersonStore) Search(params SearchParams) (*SearchResult, error) {
	where, args := params.Scope.where()
	conds := []string{where}

	if q := strings.TrimSpace(params.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		conds = append(conds, `(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(maiden_name) LIKE ? OR LOWER(biography) LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if params.BirthYearFrom > 0 {
		conds = append(conds, `CAST(substr(birth_date, 1, 4) AS INTEGER) >= ?`)
		args = append(args, params.BirthYearFrom)
	}
	if params.BirthYearTo > 0 {
		conds = append(conds, `CAST(substr(birth_date, 1, 4) AS INTEGER) <= ?`)
		args = append(args, params.BirthYearTo)
	}
	if params.Gender != "" {
		conds = append(conds, `gender = ?`)
		args = append(args, params.Gender)
	}
	if params.Deceased != nil {
		conds = append(conds, `is_deceased = ?`)
		args = append(args, *params.Deceased)
	}
	if params.Visibility != "" {
		conds = append(conds, `visibility = ?`)
		args = append(args, params.Visibility)
	}
	clause := strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM people WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count search results: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	totalPages := (total + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}

	pageArgs := append(append([]any{}, args...), PageSize, (page-1)*PageSize)
	rows, err := s.db.Query(
		`SELECT `+personCols+` FROM people WHERE `+clause+` ORDER BY last_name, first_name, id LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	defer rows.Close()
	people, err := scanPeople(rows)
	if err != nil {
		return nil, err
	}
	return &SearchResult{People: people, Total: total, Page: page, TotalPages: totalPages}, nil
}

// Autocomplete matches first, last or maiden names containing query. Queries
// shorter than two characters return nothing.
func (s *PersonStore) Autocomplete(query string, scope Scope, limit int) ([]model.Person, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, nil
	}
	where, args := scope.where()
	like := "%" + strings.ToLower(query) + "%"
	args = append(args, like, like, like, limit)
	rows, err := s.db.Query(
		`SELECT `+personCols+` FROM people
		 WHERE `+where+` AND (LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(maiden_name) LIKE ?)
		 ORDER BY last_name, first_name, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("autocomplete people: %w", err)
	}
	defer rows.Close()
	return scanPeople(rows)
}
