package schema

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Registry caches the metadata of every model it has seen.
// Reads of finished metadata take no lock; builds are serialized so that
// concurrent first use of a type yields a single winning build.
type Registry struct {
	metas  sync.Map // reflect.Type -> *ModelMeta
	tables sync.Map // table name -> *ModelMeta

	mu sync.Mutex

	resolveMu sync.Mutex
	logger    *zap.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used to report built models
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// TypeOf returns the struct type of v. It accepts a reflect.Type, a struct
// value, or a pointer to either.
func TypeOf(v any) reflect.Type {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return nil
	}
	return derefType(t)
}

// GetOrBuild returns the metadata of t, building and validating it (and
// every model it references) on first use.
func (r *Registry) GetOrBuild(t reflect.Type) (*ModelMeta, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrModelDefinition)
	}
	t = derefType(t)
	if m, ok := r.Lookup(t); ok {
		return m, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrModelDefinition, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another caller may have won the race
	if m, ok := r.Lookup(t); ok {
		return m, nil
	}

	b := newBuilder(r)
	meta, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for _, m := range b.order {
		if err := b.validate(m); err != nil {
			return nil, err
		}
	}

	for _, m := range b.order {
		r.metas.Store(m.GoType, m)
		if m.Kind == KindTable {
			r.tables.LoadOrStore(m.TableName, m)
		}
		r.logger.Debug("registered model",
			zap.String("model", m.Name),
			zap.Stringer("kind", m.Kind),
			zap.String("table", m.TableName),
			zap.Int("fields", len(m.Fields)))
	}
	return meta, nil
}

// MetadataFor returns the metadata of the model type of v (see TypeOf)
func (r *Registry) MetadataFor(v any) (*ModelMeta, error) {
	return r.GetOrBuild(TypeOf(v))
}

// Register builds the metadata of every given model
func (r *Registry) Register(models ...any) error {
	for _, m := range models {
		if _, err := r.MetadataFor(m); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns already built metadata without building
func (r *Registry) Lookup(t reflect.Type) (*ModelMeta, bool) {
	v, ok := r.metas.Load(derefType(t))
	if !ok {
		return nil, false
	}
	return v.(*ModelMeta), true
}

// LookupTable returns the table model registered for a table name
func (r *Registry) LookupTable(name string) (*ModelMeta, bool) {
	v, ok := r.tables.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*ModelMeta), true
}

// Models returns every registered model sorted by name
func (r *Registry) Models() []*ModelMeta {
	var out []*ModelMeta
	r.metas.Range(func(_, v any) bool {
		out = append(out, v.(*ModelMeta))
		return true
	})
	return sortedMetas(out)
}

// TableModels returns every registered table model sorted by name
func (r *Registry) TableModels() []*ModelMeta {
	var out []*ModelMeta
	for _, m := range r.Models() {
		if m.Kind == KindTable {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops every registered model
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas.Clear()
	r.tables.Clear()
}

// IsTableModel reports whether t embeds the Table marker
func (r *Registry) IsTableModel(t reflect.Type) bool {
	kind, _, marked := classify(derefType(t))
	return marked && kind == KindTable
}

// IsAltModel reports whether t embeds an Alt marker
func (r *Registry) IsAltModel(t reflect.Type) bool {
	kind, _, marked := classify(derefType(t))
	return marked && kind == KindAlt
}

// IsAdhocModel reports whether t is a struct that is neither a table nor
// an alt model
func (r *Registry) IsAdhocModel(t reflect.Type) bool {
	t = derefType(t)
	kind, _, _ := classify(t)
	return t.Kind() == reflect.Struct && kind == KindAdhoc
}
