package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelDefinition is wrapped by every structural error raised while
// registering or resolving a model, so callers can test with errors.Is.
var ErrModelDefinition = errors.New("invalid model definition")

// RegistrationConflictError is returned when a second Go type claims a table
// name that is already registered with a different field list
type RegistrationConflictError struct {
	Table    string
	Existing string
	Incoming string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("table %s is already registered by %s with different fields; %s conflicts",
		e.Table, e.Existing, e.Incoming)
}

func (e *RegistrationConflictError) Unwrap() error { return ErrModelDefinition }

// InvalidIdentifierFieldError is returned when a table or alt model's id
// field is missing, misplaced or not a nullable integer
type InvalidIdentifierFieldError struct {
	Model  string
	Reason string
}

func (e *InvalidIdentifierFieldError) Error() string {
	return fmt.Sprintf("model %s: invalid id field: %s", e.Model, e.Reason)
}

func (e *InvalidIdentifierFieldError) Unwrap() error { return ErrModelDefinition }

// InvalidForeignKeyUnionError is returned when a model reference is unioned
// with any type other than absent
type InvalidForeignKeyUnionError struct {
	Model   string
	Field   string
	Members []string
}

func (e *InvalidForeignKeyUnionError) Error() string {
	return fmt.Sprintf("model %s: field %s unions a model reference with other types (%s); use a pointer for an optional reference",
		e.Model, e.Field, strings.Join(e.Members, " | "))
}

func (e *InvalidForeignKeyUnionError) Unwrap() error { return ErrModelDefinition }

// InvalidUnionFieldError is returned for a union of two non-absent scalar types
type InvalidUnionFieldError struct {
	Model   string
	Field   string
	Members []string
}

func (e *InvalidUnionFieldError) Error() string {
	return fmt.Sprintf("model %s: field %s is a union of %s; only a single type or a pointer to it is supported",
		e.Model, e.Field, strings.Join(e.Members, " | "))
}

func (e *InvalidUnionFieldError) Unwrap() error { return ErrModelDefinition }

// NonTableForeignKeyError is returned when a field references an alt or
// adhoc model
type NonTableForeignKeyError struct {
	Model      string
	Field      string
	Target     string
	TargetKind ModelKind
}

func (e *NonTableForeignKeyError) Error() string {
	return fmt.Sprintf("model %s: field %s references %s model %s; only table models can be referenced",
		e.Model, e.Field, e.TargetKind, e.Target)
}

func (e *NonTableForeignKeyError) Unwrap() error { return ErrModelDefinition }

// AmbiguousBackpopError is returned when a backpop field cannot be matched
// to exactly one forward field on the related model
type AmbiguousBackpopError struct {
	Model      string
	Field      string
	Target     string
	Candidates []string
}

func (e *AmbiguousBackpopError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("backpop %s.%s: no field on %s references %s",
			e.Model, e.Field, e.Target, e.Model)
	}
	return fmt.Sprintf("backpop %s.%s: cannot choose between %s.{%s} by name",
		e.Model, e.Field, e.Target, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousBackpopError) Unwrap() error { return ErrModelDefinition }

// AmbiguousForwardReferenceError is returned when two forward fields to the
// same model have names where one is a strict prefix of the other
type AmbiguousForwardReferenceError struct {
	Model  string
	Target string
	Short  string
	Long   string
}

func (e *AmbiguousForwardReferenceError) Error() string {
	return fmt.Sprintf("model %s: fields %s and %s both reference %s and %s is a prefix of %s",
		e.Model, e.Short, e.Long, e.Target, e.Short, e.Long)
}

func (e *AmbiguousForwardReferenceError) Unwrap() error { return ErrModelDefinition }

// InvalidAltFieldError is returned when an alt model declares a field that
// does not exist on its table model
type InvalidAltFieldError struct {
	Model       string
	Field       string
	Counterpart string
}

func (e *InvalidAltFieldError) Error() string {
	return fmt.Sprintf("alt model %s: field %s does not exist on %s", e.Model, e.Field, e.Counterpart)
}

func (e *InvalidAltFieldError) Unwrap() error { return ErrModelDefinition }
