// Package relationships loads backpops: the rows of another table whose
// forward reference points at a given row.
package relationships

import (
	"context"
	"sync"

	"github.com/tuplesaver/tuplesaver/internal/orm/crud"
)

// Loader loads backpop fields through the persistence operations
type Loader struct {
	ops *crud.Operations
}

// NewLoader creates a new relationship loader
func NewLoader(ops *crud.Operations) *Loader {
	return &Loader{ops: ops}
}

// LazyRelation defers loading one backpop until it is first read
type LazyRelation struct {
	loader *Loader
	owner  any
	field  string

	once   sync.Once
	rows   []any
	err    error
	loaded bool
}

// NewLazyRelation creates a lazy backpop of owner
func NewLazyRelation(loader *Loader, owner any, field string) *LazyRelation {
	return &LazyRelation{loader: loader, owner: owner, field: field}
}

// Get loads the rows on the first call and returns the same result afterwards
func (lr *LazyRelation) Get(ctx context.Context) ([]any, error) {
	lr.once.Do(func() {
		lr.rows, lr.err = lr.loader.LoadBackpop(ctx, lr.owner, lr.field)
		lr.loaded = lr.err == nil
	})
	return lr.rows, lr.err
}

// IsLoaded reports whether the rows were loaded successfully
func (lr *LazyRelation) IsLoaded() bool {
	return lr.loaded
}
