package crud

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Common CRUD error types
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrIDNone is returned when an operation needs an id and the row has none
	ErrIDNone = errors.New("row has no id")

	// ErrNoFieldsSpecified is returned by FindBy without any field
	ErrNoFieldsSpecified = errors.New("at least one field must be specified to find a row")

	// ErrInvalidField is returned when a lookup names a field the model lacks
	ErrInvalidField = errors.New("invalid field")

	// ErrLookupByAdhocModel is returned when Find or FindBy is used with an adhoc model
	ErrLookupByAdhocModel = errors.New("cannot look up rows through an adhoc model")

	// ErrNonTableModelImmutable is returned when an alt or adhoc model is saved or deleted
	ErrNonTableModelImmutable = errors.New("cannot modify table via non-table model")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")
)

// CycleDetectedError is returned by a deep save that reaches a row without
// an id while that row is still waiting for its own references
type CycleDetectedError struct {
	Path []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cycle of unsaved rows: %s", strings.Join(e.Path, " -> "))
}

// UnpersistedRelationshipError is returned by a shallow save when a
// forward reference points at a row that has no id yet
type UnpersistedRelationshipError struct {
	Model  string
	Field  string
	Target string
}

func (e *UnpersistedRelationshipError) Error() string {
	return fmt.Sprintf("%s.%s references an unsaved %s; save it first or save deep", e.Model, e.Field, e.Target)
}

// ConvertDBError converts driver errors to CRUD errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// mattn/go-sqlite3
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		switch cgoErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, cgoErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, cgoErr.Error())
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %s", ErrNotNullViolation, cgoErr.Error())
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", ErrCheckViolation, cgoErr.Error())
		}
	}

	// modernc.org/sqlite
	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		switch pureErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pureErr.Error())
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pureErr.Error())
		case sqlitelib.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %s", ErrNotNullViolation, pureErr.Error())
		case sqlitelib.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %s", ErrCheckViolation, pureErr.Error())
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsCycle returns true if the error is a CycleDetectedError
func IsCycle(err error) bool {
	var cycleErr *CycleDetectedError
	return errors.As(err, &cycleErr)
}

// IsUnpersistedRelationship returns true if the error is an UnpersistedRelationshipError
func IsUnpersistedRelationship(err error) bool {
	var relErr *UnpersistedRelationshipError
	return errors.As(err, &relErr)
}
