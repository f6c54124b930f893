package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

var (
	ErrSelfRelation       = errors.New("a person cannot be related to themselves")
	ErrDuplicateRelation  = errors.New("relationship already exists")
	ErrParentNotOlder     = errors.New("parent must be born before the child")
	ErrFieldNotProposable = errors.New("field cannot be changed through a proposal")
	ErrProposalReviewed   = errors.New("proposal has already been reviewed")
	ErrPersonNotFound     = errors.New("person not found")
	ErrInvalidValue       = errors.New("invalid value")
)

type scanner interface{ Scan(...any) error }

const timeLayout = "2006-01-02 15:04:05"

// sqlTime formats t the way SQLite's datetime('now') does so stored
// timestamps compare lexically.
func sqlTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

func parseDateCol(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", ns.String, err)
	}
	return &t, nil
}

func idArg(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func rowsAffected(res sql.Result, what string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", what, err)
	}
	return n, nil
}
