package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// ConnectionError reports a failure to open or configure a store connection
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %q failed: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a failed schema creation. The creation was rolled back.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema creation failed: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ConstraintKind classifies the store constraint behind an InsertionError
type ConstraintKind string

const (
	ConstraintNone       ConstraintKind = ""
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintOther      ConstraintKind = "other"
)

// InsertionError reports a failed write. Nothing from the batch was persisted.
// Index is the position of the offending entry, or -1 when the failure is not
// tied to a single entry (begin, prepare, commit).
type InsertionError struct {
	Index int
	Kind  ConstraintKind
	Err   error
}

func (e *InsertionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("insert failed: %v", e.Err)
	}
	if e.Kind != ConstraintNone {
		return fmt.Sprintf("insert of entry %d failed (%s constraint): %v", e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("insert of entry %d failed: %v", e.Index, e.Err)
}

func (e *InsertionError) Unwrap() error { return e.Err }

func newInsertionError(index int, err error) *InsertionError {
	return &InsertionError{Index: index, Kind: constraintKind(err), Err: err}
}

// constraintKind maps a driver error onto a ConstraintKind. Both registered
// drivers are understood; anything else falls back to the message text.
func constraintKind(err error) ConstraintKind {
	if err == nil {
		return ConstraintNone
	}

	var me sqlite3.Error
	if errors.As(err, &me) {
		if me.Code != sqlite3.ErrConstraint {
			return ConstraintNone
		}
		switch me.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ConstraintUnique
		case sqlite3.ErrConstraintCheck:
			return ConstraintCheck
		case sqlite3.ErrConstraintNotNull:
			return ConstraintNotNull
		case sqlite3.ErrConstraintForeignKey:
			return ConstraintForeignKey
		}
		return constraintKindFromMessage(me.Error())
	}

	var pe *sqlite.Error
	if errors.As(err, &pe) {
		code := pe.Code()
		if code&0xff != sqlitelib.SQLITE_CONSTRAINT {
			return ConstraintNone
		}
		switch code {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ConstraintUnique
		case sqlitelib.SQLITE_CONSTRAINT_CHECK:
			return ConstraintCheck
		case sqlitelib.SQLITE_CONSTRAINT_NOTNULL:
			return ConstraintNotNull
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ConstraintForeignKey
		}
		return constraintKindFromMessage(pe.Error())
	}

	kind := constraintKindFromMessage(err.Error())
	if kind == ConstraintOther {
		return ConstraintNone
	}
	return kind
}

func constraintKindFromMessage(msg string) ConstraintKind {
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "unique constraint failed"):
		return ConstraintUnique
	case strings.Contains(s, "check constraint failed"):
		return ConstraintCheck
	case strings.Contains(s, "not null constraint failed"):
		return ConstraintNotNull
	case strings.Contains(s, "foreign key constraint failed"):
		return ConstraintForeignKey
	}
	return ConstraintOther
}
