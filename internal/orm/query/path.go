package query

import (
	"reflect"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// Path accumulates field names from a root model. It only records names;
// it is rendered into predicate text or resolved into joins by its users.
//
//	query.On[Athlete]().Get("team").Get("league").Get("name")
type Path struct {
	root  reflect.Type
	names []string
}

// On starts a path at model T
func On[T any]() Path {
	return Path{root: reflect.TypeFor[T]()}
}

// Get returns a new path extended by name
func (p Path) Get(name string) Path {
	names := make([]string, len(p.names), len(p.names)+1)
	copy(names, p.names)
	return Path{root: p.root, names: append(names, name)}
}

// Root returns the root model type
func (p Path) Root() reflect.Type {
	return p.root
}

// Names returns the accumulated field names
func (p Path) Names() []string {
	return append([]string(nil), p.names...)
}

// String renders the path as a template placeholder, {Athlete.team.name}
func (p Path) String() string {
	parts := make([]string, 0, len(p.names)+1)
	if p.root != nil {
		parts = append(parts, p.root.Name())
	}
	parts = append(parts, p.names...)
	return "{" + strings.Join(parts, ".") + "}"
}

// Resolve resolves the path against metadata from registry
func (p Path) Resolve(registry *schema.Registry) (JoinPath, error) {
	meta, err := registry.GetOrBuild(p.root)
	if err != nil {
		return JoinPath{}, err
	}
	return Resolve(meta, p.names)
}
