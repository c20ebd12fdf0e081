package repositories

import (
	"github.com/mattn/go-sqlite3"
	"github.com/myrjola/misterio/internal/errors"
)

var (
	// ErrConflict is returned when the row already exists.
	ErrConflict = errors.NewSentinel("conflict")
	// ErrNotFound is returned when the row does not exist.
	ErrNotFound = errors.NewSentinel("not found")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
