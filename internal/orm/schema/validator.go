package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// validate checks the structural rules of a fully populated model.
// It runs after the whole batch is built so that targets are complete.
func (b *builder) validate(m *ModelMeta) error {
	if m.Kind != KindAdhoc {
		if err := validateIdentifier(m); err != nil {
			return err
		}
	}
	for _, f := range m.Fields {
		if err := validateField(m, f); err != nil {
			return err
		}
	}
	if m.Kind == KindAlt {
		if err := validateAltFields(m); err != nil {
			return err
		}
	}
	if err := validateForwardPrefixes(m); err != nil {
		return err
	}
	if m.Kind == KindTable {
		return b.checkTableConflict(m)
	}
	return nil
}

func validateIdentifier(m *ModelMeta) error {
	if len(m.Fields) == 0 || m.Fields[0].Name != IDField {
		for i, f := range m.Fields {
			if f.Name == IDField {
				return &InvalidIdentifierFieldError{
					Model:  m.Name,
					Reason: fmt.Sprintf("id must be the first field, found at position %d", i),
				}
			}
		}
		return &InvalidIdentifierFieldError{
			Model:  m.Name,
			Reason: "missing; the first field must be declared as ID *int64",
		}
	}

	id := m.Fields[0]
	if !id.Nullable || !isSignedInt(id.BaseType) {
		return &InvalidIdentifierFieldError{
			Model:  m.Name,
			Reason: fmt.Sprintf("must be a nullable integer (*int64), found %s", id.Type),
		}
	}
	return nil
}

func isSignedInt(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func validateField(m *ModelMeta, f *FieldSpec) error {
	if members, ok := unionMembersOf(f.BaseType); ok {
		names := make([]string, len(members))
		hasModel := false
		for i, mt := range members {
			names[i] = mt.String()
			if isModelType(derefType(mt)) {
				hasModel = true
			}
		}
		if hasModel {
			return &InvalidForeignKeyUnionError{Model: m.Name, Field: f.Name, Members: names}
		}
		return &InvalidUnionFieldError{Model: m.Name, Field: f.Name, Members: names}
	}

	if f.Role == RoleForward || f.Role == RoleBackpop {
		if f.Target.Kind != KindTable {
			return &NonTableForeignKeyError{
				Model:      m.Name,
				Field:      f.Name,
				Target:     f.Target.Name,
				TargetKind: f.Target.Kind,
			}
		}
	}
	return nil
}

func validateAltFields(m *ModelMeta) error {
	cp := m.Counterpart
	if cp == nil || cp.Kind != KindTable {
		name := "<nil>"
		kind := KindAdhoc
		if cp != nil {
			name, kind = cp.Name, cp.Kind
		}
		return &NonTableForeignKeyError{Model: m.Name, Field: "(alt counterpart)", Target: name, TargetKind: kind}
	}
	for _, f := range m.Fields {
		if f.Role == RoleBackpop {
			continue
		}
		if _, ok := cp.Field(f.Name); !ok {
			return &InvalidAltFieldError{Model: m.Name, Field: f.Name, Counterpart: cp.Name}
		}
	}
	return nil
}

// validateForwardPrefixes rejects forward fields to the same target where
// one name is a strict prefix of another. Such pairs would make any backpop
// on the target unresolvable by name.
func validateForwardPrefixes(m *ModelMeta) error {
	fwd := m.ForwardFields()
	for i, a := range fwd {
		for _, c := range fwd[i+1:] {
			if a.Target != c.Target {
				continue
			}
			short, long := a.Name, c.Name
			if len(long) < len(short) {
				short, long = long, short
			}
			if short != long && strings.HasPrefix(long, short) {
				return &AmbiguousForwardReferenceError{
					Model:  m.Name,
					Target: a.Target.Name,
					Short:  short,
					Long:   long,
				}
			}
		}
	}
	return nil
}

func (b *builder) checkTableConflict(m *ModelMeta) error {
	existing, ok := b.r.LookupTable(m.TableName)
	if !ok {
		for _, other := range b.order {
			if other != m && other.Kind == KindTable && other.TableName == m.TableName {
				existing, ok = other, true
				break
			}
		}
	}
	if !ok || existing.GoType == m.GoType {
		return nil
	}
	if !equalSignatures(existing.signature(), m.signature()) {
		return &RegistrationConflictError{
			Table:    m.TableName,
			Existing: existing.GoType.String(),
			Incoming: m.GoType.String(),
		}
	}
	return nil
}

func equalSignatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
