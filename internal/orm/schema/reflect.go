package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// ReflectedField is the raw, unclassified view of a struct field
type ReflectedField struct {
	Name     string // snake_case column name
	GoName   string
	Index    []int
	Type     reflect.Type
	BaseType reflect.Type
	Nullable bool

	// UnionMembers is set when BaseType is a schema.Union
	UnionMembers []reflect.Type
}

// ReflectFields returns the ordered exported, non-embedded fields of a
// struct type. It does no caching and no validation beyond name uniqueness.
func ReflectFields(t reflect.Type) ([]ReflectedField, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrModelDefinition, t)
	}

	fields := make([]ReflectedField, 0, t.NumField())
	seen := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous || !sf.IsExported() {
			continue
		}

		name := ToSnakeCase(sf.Name)
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s fields %s and %s both map to column %q",
				ErrModelDefinition, t.Name(), prev, sf.Name, name)
		}
		seen[name] = sf.Name

		rf := ReflectedField{
			Name:     name,
			GoName:   sf.Name,
			Index:    sf.Index,
			Type:     sf.Type,
			BaseType: sf.Type,
		}
		if sf.Type.Kind() == reflect.Pointer {
			rf.Nullable = true
			rf.BaseType = sf.Type.Elem()
		}
		if members, ok := unionMembersOf(rf.BaseType); ok {
			rf.UnionMembers = members
		}
		fields = append(fields, rf)
	}
	return fields, nil
}

// ToSnakeCase converts a Go identifier to its column name.
// Runs of capitals are kept together: TeamID becomes team_id.
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
