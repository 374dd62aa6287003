// Package tuplesaver stores Go structs in SQLite and loads them back as
// nested records.
//
// A struct embedding Table maps to a table named after the type, with one
// column per field. The first field must be ID *int64. A field whose type
// is another table model is a foreign key; loading a row also loads the
// rows its foreign keys reach, through joins where it can.
//
//	type Team struct {
//		tuplesaver.Table
//		ID   *int64
//		Name string
//	}
//
//	type Athlete struct {
//		tuplesaver.Table
//		ID   *int64
//		Name string
//		Team *Team
//	}
//
//	saved, err := tuplesaver.SaveDeep(ctx, engine, Athlete{Name: "Ann", Team: &Team{Name: "Owls"}})
package tuplesaver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/codegen"
	"github.com/tuplesaver/tuplesaver/internal/orm/crud"
	"github.com/tuplesaver/tuplesaver/internal/orm/migrate"
	"github.com/tuplesaver/tuplesaver/internal/orm/query"
	"github.com/tuplesaver/tuplesaver/internal/orm/relationships"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
	"github.com/tuplesaver/tuplesaver/internal/orm/sqlitedb"
	"github.com/tuplesaver/tuplesaver/internal/orm/transaction"
)

// Model markers and metadata
type (
	Table       = schema.Table
	Alt[T any]  = schema.Alt[T]
	Row         = schema.Row
	ModelMeta   = schema.ModelMeta
	JoinPath    = query.JoinPath
	Path        = query.Path
	Migrator    = migrate.Migrator
	MigrateConf = migrate.Config
	Deferred    = crud.Deferred
)

// On starts a field path at model T, e.g. On[Athlete]().Get("team").Get("name")
func On[T any]() Path { return query.On[T]() }

// Errors returned by the engine. Structural model errors come from
// MetadataFor and match schema.ErrModelDefinition.
var (
	ErrNotFound               = crud.ErrNotFound
	ErrIDNone                 = crud.ErrIDNone
	ErrNoFieldsSpecified      = crud.ErrNoFieldsSpecified
	ErrInvalidField           = crud.ErrInvalidField
	ErrLookupByAdhocModel     = crud.ErrLookupByAdhocModel
	ErrNonTableModelImmutable = crud.ErrNonTableModelImmutable
	ErrModelDefinition        = schema.ErrModelDefinition
)

type (
	CycleDetectedError           = crud.CycleDetectedError
	UnpersistedRelationshipError = crud.UnpersistedRelationshipError
	TableSchemaMismatchError     = codegen.TableSchemaMismatchError
)

// Engine is the entry point for persisting and loading models
type Engine struct {
	db       *sql.DB
	registry *schema.Registry
	codecs   *codec.Registry
	ops      *crud.Operations
	ddl      *codegen.DDLGenerator
	tx       *transaction.Manager
	loader   *relationships.Loader
	retry    *transaction.RetryConfig
	logger   *zap.Logger
}

type settings struct {
	open     sqlitedb.Options
	logger   *zap.Logger
	codecs   *codec.Registry
	registry *schema.Registry
	retry    *transaction.RetryConfig
}

// Option configures an Engine
type Option func(*settings)

// WithDriver picks the SQLite driver: "sqlite3" (cgo, default) or "sqlite" (pure Go)
func WithDriver(driver string) Option {
	return func(s *settings) { s.open.Driver = driver }
}

// WithJournalMode sets the journal mode, e.g. WAL
func WithJournalMode(mode string) Option {
	return func(s *settings) { s.open.JournalMode = mode }
}

// WithForeignKeys turns on foreign key enforcement
func WithForeignKeys() Option {
	return func(s *settings) { s.open.ForeignKeys = true }
}

// WithLogger sets the logger SQL statements are reported to at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithCodecs sets the codec registry used for non-builtin field types
func WithCodecs(codecs *codec.Registry) Option {
	return func(s *settings) { s.codecs = codecs }
}

// WithRegistry shares a metadata registry between engines
func WithRegistry(registry *schema.Registry) Option {
	return func(s *settings) { s.registry = registry }
}

// WithBusyRetry sets how often a write transaction is retried while another
// connection holds the database lock. Zero attempts disables retries.
func WithBusyRetry(attempts int, backoff time.Duration) Option {
	return func(s *settings) {
		s.retry = &transaction.RetryConfig{MaxRetries: attempts, BaseBackoff: backoff}
	}
}

func buildSettings(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.codecs == nil {
		s.codecs = codec.NewRegistry()
	}
	if s.retry == nil {
		s.retry = transaction.DefaultRetryConfig()
	}
	if s.registry == nil {
		s.registry = schema.NewRegistry(schema.WithLogger(s.logger))
	}
	return s
}

// Open opens the database at path (":memory:" when empty) and returns an
// engine over it. The engine owns the connection.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	s := buildSettings(opts)
	s.open.Path = path
	db, err := sqlitedb.Open(ctx, s.open)
	if err != nil {
		return nil, err
	}
	return newEngine(db, s), nil
}

// New returns an engine over an open database
func New(db *sql.DB, opts ...Option) *Engine {
	return newEngine(db, buildSettings(opts))
}

func newEngine(db *sql.DB, s *settings) *Engine {
	ops := crud.NewOperations(db, s.registry, crud.WithLogger(s.logger), crud.WithCodecs(s.codecs))
	return &Engine{
		db:       db,
		registry: s.registry,
		codecs:   s.codecs,
		ops:      ops,
		ddl:      codegen.NewDDLGenerator(s.codecs),
		tx:       transaction.NewManager(db, s.logger),
		loader:   relationships.NewLoader(ops),
		retry:    s.retry,
		logger:   s.logger,
	}
}

// DB returns the underlying database
func (e *Engine) DB() *sql.DB { return e.db }

// Codecs returns the codec registry, for registering field types
func (e *Engine) Codecs() *codec.Registry { return e.codecs }

// Close closes the database
func (e *Engine) Close() error { return e.db.Close() }

// MetadataFor returns the metadata of a model, building it on first use
func (e *Engine) MetadataFor(model any) (*ModelMeta, error) {
	return e.registry.MetadataFor(model)
}

// ResolveJoin resolves a dotted field path from model into its joins
func (e *Engine) ResolveJoin(model any, path ...string) (JoinPath, error) {
	meta, err := e.registry.MetadataFor(model)
	if err != nil {
		return JoinPath{}, err
	}
	return query.Resolve(meta, path)
}

// Save inserts or updates row without touching the rows it references
func (e *Engine) Save(ctx context.Context, row any) (any, error) {
	return e.ops.Save(ctx, row, false)
}

// SaveDeep saves row and every row its forward references reach, in one
// transaction
func (e *Engine) SaveDeep(ctx context.Context, row any) (any, error) {
	var out any
	err := e.write(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.ops.Save(ctx, row, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAll saves rows in one transaction; shared sub-rows are saved once
func (e *Engine) SaveAll(ctx context.Context, rows []any, deep bool) ([]any, error) {
	var out []any
	err := e.write(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.ops.SaveAll(ctx, rows, deep)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// write runs fn in a transaction. An outermost transaction is retried
// while the database is busy; fn must not keep state between attempts.
func (e *Engine) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := transaction.FromContext(ctx); nested || e.retry.MaxRetries <= 0 {
		return e.tx.WithTransaction(ctx, fn)
	}
	return e.tx.WithRetry(ctx, e.retry, fn)
}

// Find loads the row of model with the given id
func (e *Engine) Find(ctx context.Context, model any, id *int64) (any, error) {
	return e.ops.Find(ctx, model, id)
}

// FindBy loads the first row of model matching every field
func (e *Engine) FindBy(ctx context.Context, model any, fields map[string]any) (any, error) {
	return e.ops.FindBy(ctx, model, fields)
}

// Query loads the rows of model matching a predicate template
func (e *Engine) Query(ctx context.Context, model any, template string, params map[string]any) ([]any, error) {
	return e.ops.Query(ctx, model, template, params)
}

// Load builds a row of model from a flat tuple of column values laid out
// the way Find selects them. References the layout does not join come
// back as deferred fetches.
func (e *Engine) Load(model any, values []any) (any, []Deferred, error) {
	meta, err := e.registry.MetadataFor(model)
	if err != nil {
		return nil, nil, err
	}
	return e.ops.Load(meta, values)
}

// Delete deletes the row of model with the given id
func (e *Engine) Delete(ctx context.Context, model any, id int64) error {
	return e.ops.Delete(ctx, model, id)
}

// DeleteRow deletes a saved row
func (e *Engine) DeleteRow(ctx context.Context, row any) error {
	return e.ops.DeleteRow(ctx, row)
}

// LoadBackpop returns the rows that reference owner through a backpop field
func (e *Engine) LoadBackpop(ctx context.Context, owner any, field string) ([]any, error) {
	return e.loader.LoadBackpop(ctx, owner, field)
}

// Fill loads backpop fields into the row owner points at
func (e *Engine) Fill(ctx context.Context, owner any, fields ...string) error {
	return e.loader.Fill(ctx, owner, fields...)
}

// FillAll loads one backpop field into every owner with one query
func (e *Engine) FillAll(ctx context.Context, owners []any, field string) error {
	return e.loader.FillAll(ctx, owners, field)
}

// WithTransaction runs fn in a transaction. Engine calls made with the
// context fn receives take part in it.
func (e *Engine) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.tx.WithTransaction(ctx, fn)
}

// EnsureTableCreated creates the table of model, or verifies that the
// existing table has the DDL the model generates. Inside a transaction the
// table is created on it.
func (e *Engine) EnsureTableCreated(ctx context.Context, model any) error {
	meta, err := e.registry.MetadataFor(model)
	if err != nil {
		return err
	}
	var db codegen.DB = e.db
	if tx, ok := transaction.SQLTx(ctx); ok {
		db = tx
	}
	created, err := e.ddl.EnsureTable(ctx, db, meta)
	if err != nil {
		return err
	}
	if created {
		e.logger.Debug("created table", zap.String("table", meta.TableName))
	}
	return nil
}

// EnsureTablesCreated ensures the tables of models, referenced tables first
func (e *Engine) EnsureTablesCreated(ctx context.Context, models ...any) error {
	var metas []*schema.ModelMeta
	byTable := make(map[string]*schema.ModelMeta)
	for _, m := range models {
		meta, err := e.registry.MetadataFor(m)
		if err != nil {
			return err
		}
		if !meta.IsTable() {
			return fmt.Errorf("%w: %s is an %s model", codegen.ErrNotATable, meta.Name, meta.Kind)
		}
		metas = append(metas, meta)
		byTable[meta.TableName] = meta
	}
	for _, table := range schema.NewRelationshipGraph(metas).TopologicalSort() {
		if err := e.EnsureTableCreated(ctx, byTable[table].GoType); err != nil {
			return err
		}
	}
	return nil
}

// Migrator returns a migrator over every table model the engine knows
func (e *Engine) Migrator(config MigrateConf) *Migrator {
	return migrate.New(e.db, e.registry.TableModels(), config,
		migrate.WithLogger(e.logger), migrate.WithCodecs(e.codecs))
}
