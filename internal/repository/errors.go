// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver specific errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique constraint,
// e.g. a second account for the same email or a discount code that
// already exists.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when a guarded update matched no row because the
// row was changed concurrently (a reset token already consumed, a discount
// code with no uses left).  Handlers should translate this into an HTTP
// 409 response.
var ErrConflict = errors.New("conflict")

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors
// through unchanged.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a duplicate key error from
// either supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
