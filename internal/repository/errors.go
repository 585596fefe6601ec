// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. For example, ErrForbidden indicates that the current user
// is not authorized to perform an operation on a resource owned by
// someone else, while ErrConflict signals that an operation cannot
// proceed because of existing state (e.g. joining a group twice).
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an insert or update cannot be
// performed because of conflicting state, such as a duplicate
// membership row. Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// Entity specific not-found errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrPollNotFound        = errors.New("poll not found")
)

// MySQL server error numbers the repositories react to.
const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrno(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicateKey reports whether err is a unique constraint violation on
// either MySQL or SQLite.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mysqlErrno(err) == errDuplicateEntry {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// isForeignKeyViolation reports whether an insert referenced a parent
// row that does not exist (any more).
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if mysqlErrno(err) == errNoReferencedRow {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

// IsRetryable reports whether err is a transient write conflict worth
// another attempt: a MySQL deadlock or lock wait timeout, a busy SQLite
// database, or a unique key race between two writers inserting the
// same row.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch mysqlErrno(err) {
	case errDeadlock, errLockWaitTimeout:
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked") || isDuplicateKey(err)
}
