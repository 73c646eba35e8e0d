package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// ConflictError is returned when an abort-on-conflict insert hits an existing
// primary key. Nothing was written.
type ConflictError struct {
	Table string
	Key   any
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Row with key %v already exists in %s", e.Key, e.Table)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ValidationError reports that a table on disk does not have the structure
// the schema expects.
type ValidationError struct {
	Table    string
	Expected TableInfo
	Found    TableInfo
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Migration didn't properly handle: %s.\n Expected:\n %s\n Found:\n %s",
		e.Table, e.Expected, e.Found)
}

// IdentityMismatchError is returned when the stored identity hash belongs to
// a different schema with the same version number.
type IdentityMismatchError struct {
	Expected string
	Found    string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("Cannot verify the data integrity: schema changed without a version bump (expected identity %s, found %s)",
		e.Expected, e.Found)
}

// MigrationRequiredError is returned when the on-disk version differs from the
// schema version and destructive fallback is disabled.
type MigrationRequiredError struct {
	From int
	To   int
}

func (e *MigrationRequiredError) Error() string {
	return fmt.Sprintf("A migration from %d to %d was required but not found", e.From, e.To)
}

// IsConstraintViolation reports whether err was raised by a sqlite constraint,
// for either of the supported drivers.
func IsConstraintViolation(err error) bool {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.Code == sqlite3.ErrConstraint
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		// Extended result codes keep the primary code in the low byte
		return pureErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	return false
}
