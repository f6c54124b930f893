package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func mustPerson(t *testing.T, ps *PersonStore, first, last string, born *time.Time) *model.Person {
	t.Helper()
	p, err := ps.Create(&model.Person{FirstName: first, LastName: last, Gender: model.GenderMale, BirthDate: born})
	if err != nil {
		t.Fatalf("create person %s: %v", first, err)
	}
	return p
}

func mustUser(t *testing.T, us *UserStore, email string, role model.Role) *model.User {
	t.Helper()
	u, err := us.Create(email, "Test", "User", role, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}
