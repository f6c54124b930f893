package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/kinship/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.IsActive, &u.CanExport, &u.CanViewPrivate, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, first_name, last_name, role, is_active, can_export, can_view_private, created_at, updated_at`

func (s *UserStore) Create(email, firstName, lastName string, role model.Role, passwordHash string) (*model.User, error) {
	if role == "" {
		role = model.RoleMember
	}
	result, err := s.db.Exec(
		`INSERT INTO users (email, first_name, last_name, role, password_hash, can_export) VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(email), firstName, lastName, role, passwordHash, role == model.RoleAdmin,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, strings.TrimSpace(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetCredentials returns the user and password hash for an email, or nil if
// no such user exists.
func (s *UserStore) GetCredentials(email string) (*model.User, string, error) {
	var hash string
	u, err := s.GetByEmail(email)
	if err != nil || u == nil {
		return nil, "", err
	}
	if err := s.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, u.ID).Scan(&hash); err != nil {
		return nil, "", fmt.Errorf("get password hash: %w", err)
	}
	return u, hash, nil
}

func (s *UserStore) List() ([]model.User, error) {
	return s.list(`SELECT ` + userCols + ` FROM users ORDER BY email`)
}

// ListAdmins returns active administrators.
func (s *UserStore) ListAdmins() ([]model.User, error) {
	return s.list(`SELECT `+userCols+` FROM users WHERE role = ? AND is_active = 1 ORDER BY id`, model.RoleAdmin)
}

func (s *UserStore) list(query string, args ...any) ([]model.User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Update writes profile, role and permission fields.
func (s *UserStore) Update(u *model.User) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET first_name = ?, last_name = ?, role = ?, is_active = ?, can_export = ?, can_view_private = ?,
			updated_at = datetime('now') WHERE id = ?`,
		u.FirstName, u.LastName, u.Role, u.IsActive, u.CanExport, u.CanViewPrivate, u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(u.ID)
}

func (s *UserStore) SetPassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ?, updated_at = datetime('now') WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func (s *UserStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
