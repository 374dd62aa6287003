// Package crud persists and loads record graphs. Saves walk forward
// references depth first with an explicit work stack, writing children
// before parents; loads rebuild nested records from joined rows.
package crud

import (
	"context"
	"database/sql"
	"reflect"

	"go.uber.org/zap"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
	"github.com/tuplesaver/tuplesaver/internal/orm/transaction"
)

// Executor runs statements. *sql.DB and *sql.Tx satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Operations provides persistence operations for every registered model
type Operations struct {
	db       Executor
	registry *schema.Registry
	codecs   *codec.Registry
	logger   *zap.Logger
	stmts    *statementCache
}

// Option configures Operations
type Option func(*Operations)

// WithLogger sets the logger statements are reported to
func WithLogger(logger *zap.Logger) Option {
	return func(o *Operations) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCodecs sets the codec registry used for column values
func WithCodecs(codecs *codec.Registry) Option {
	return func(o *Operations) {
		if codecs != nil {
			o.codecs = codecs
		}
	}
}

// NewOperations creates a new Operations instance
func NewOperations(db Executor, registry *schema.Registry, opts ...Option) *Operations {
	o := &Operations{
		db:       db,
		registry: registry,
		codecs:   codec.NewRegistry(),
		logger:   zap.NewNop(),
		stmts:    newStatementCache(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the metadata registry
func (o *Operations) Registry() *schema.Registry {
	return o.registry
}

// Codecs returns the codec registry
func (o *Operations) Codecs() *codec.Registry {
	return o.codecs
}

// executor prefers a transaction carried by ctx
func (o *Operations) executor(ctx context.Context) Executor {
	if tx, ok := transaction.SQLTx(ctx); ok {
		return tx
	}
	return o.db
}

func (o *Operations) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	o.logger.Debug("exec", zap.String("sql", query), zap.Int("args", len(args)))
	res, err := o.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return res, nil
}

func (o *Operations) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	o.logger.Debug("query", zap.String("sql", query), zap.Int("args", len(args)))
	rows, err := o.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return rows, nil
}

// metaOf resolves the model of a row value or type
func (o *Operations) metaOf(v any) (*schema.ModelMeta, error) {
	return o.registry.MetadataFor(v)
}

// idOf returns the id of a struct value of a table or alt model
func idOf(meta *schema.ModelMeta, row reflect.Value) *int64 {
	f := row.FieldByIndex(meta.IDSpec().Index)
	if f.IsNil() {
		return nil
	}
	id := f.Elem().Int()
	return &id
}

// setID writes id into the row a pointer points at
func setID(meta *schema.ModelMeta, ptr reflect.Value, id int64) {
	spec := meta.IDSpec()
	v := reflect.New(spec.BaseType)
	v.Elem().SetInt(id)
	ptr.Elem().FieldByIndex(spec.Index).Set(v)
}
