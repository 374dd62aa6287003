package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/codegen"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
	"github.com/tuplesaver/tuplesaver/internal/orm/transaction"
)

// State summarizes a migration check. When several apply, the first in
// declaration order wins.
type State int

const (
	StateError    State = iota // scripts cannot be applied as they are
	StateDiverged              // an applied script changed on disk
	StatePending               // scripts wait to be applied
	StateDrift                 // the database does not match the models
	StateCurrent               // fully in sync
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateDiverged:
		return "diverged"
	case StatePending:
		return "pending"
	case StateDrift:
		return "drift"
	case StateCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// WrongStateError is returned when an operation needs another state
type WrongStateError struct {
	Op    string
	State State
	Want  State
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("cannot %s: state is %s, expected %s", e.Op, e.State, e.Want)
}

// CheckResult is the read-only comparison of scripts, tracking table and models
type CheckResult struct {
	Pending   []string // scripts on disk not applied yet
	Applied   []string // scripts recorded in the tracking table
	Divergent []string // applied scripts whose text changed
	Errors    []string
	Diff      ModelDiff
}

// State returns the state the result is in
func (r *CheckResult) State() State {
	switch {
	case len(r.Errors) > 0:
		return StateError
	case len(r.Divergent) > 0:
		return StateDiverged
	case len(r.Pending) > 0:
		return StatePending
	case !r.Diff.IsEmpty():
		return StateDrift
	}
	return StateCurrent
}

// Status renders the result for people, one line per finding
func (r *CheckResult) Status() string {
	var lines []string
	add := func(label string, items []string) {
		if len(items) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", label, strings.Join(items, ", ")))
		}
	}
	add("Errors", r.Errors)
	add("Diverged", r.Divergent)
	add("Pending", r.Pending)
	add("Tables to create", r.Diff.ToCreate)
	add("Tables to rebuild", r.Diff.ToRebuild)
	add("Tables to drop", r.Diff.ToDrop)
	if len(lines) == 0 {
		return "Current: schema is up to date"
	}
	return strings.Join(lines, "\n")
}

// Config locates scripts and backups
type Config struct {
	Dir       string // migration scripts
	BackupDir string
	DBPath    string // names backups after the database file
}

// Migrator checks and migrates one database against a set of table models
type Migrator struct {
	db     *sql.DB
	config Config
	models []*schema.ModelMeta
	ddl    *codegen.DDLGenerator
	tx     *transaction.Manager
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Migrator
type Option func(*Migrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCodecs sets the codec registry column types come from
func WithCodecs(codecs *codec.Registry) Option {
	return func(m *Migrator) {
		m.ddl = codegen.NewDDLGenerator(codecs)
	}
}

// New creates a Migrator. Only table models take part.
func New(db *sql.DB, models []*schema.ModelMeta, config Config, opts ...Option) *Migrator {
	if config.Dir == "" {
		config.Dir = "migrations"
	}
	if config.BackupDir == "" {
		config.BackupDir = filepath.Join(config.Dir, "backups")
	}

	var tables []*schema.ModelMeta
	for _, meta := range models {
		if meta.IsTable() {
			tables = append(tables, meta)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].TableName < tables[j].TableName })

	m := &Migrator{
		db:     db,
		config: config,
		models: tables,
		ddl:    codegen.NewDDLGenerator(nil),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tx = transaction.NewManager(db, m.logger)
	return m
}

// Check compares scripts, tracking table and models without changing anything
func (m *Migrator) Check(ctx context.Context) (*CheckResult, error) {
	scripts, problems, err := LoadScripts(m.config.Dir)
	if err != nil {
		return nil, err
	}
	applied, err := NewTracker(m.db).Applied(ctx)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Errors: problems}
	onDisk := make(map[string]*Script, len(scripts))
	for _, s := range scripts {
		onDisk[s.Name] = s
	}
	recorded := make(map[string]bool, len(applied))
	for _, a := range applied {
		recorded[a.Name] = true
		result.Applied = append(result.Applied, a.Name)
		s, ok := onDisk[a.Name]
		switch {
		case !ok:
			result.Errors = append(result.Errors, fmt.Sprintf("applied script %s is missing", a.Name))
		case s.Checksum != a.Checksum:
			result.Divergent = append(result.Divergent, a.Name)
		}
	}
	for _, s := range scripts {
		if !recorded[s.Name] {
			result.Pending = append(result.Pending, s.Name)
		}
	}

	if result.Diff, err = NewDiffer(m.ddl, m.models).Diff(ctx, m.db); err != nil {
		return nil, err
	}
	return result, nil
}

// Generate writes the next numbered script for the current drift and
// returns its path
func (m *Migrator) Generate(ctx context.Context) (string, error) {
	result, err := m.Check(ctx)
	if err != nil {
		return "", err
	}
	if st := result.State(); st != StateDrift {
		return "", &WrongStateError{Op: "generate", State: st, Want: StateDrift}
	}

	text, err := m.renderScript(ctx, result.Diff)
	if err != nil {
		return "", err
	}
	scripts, _, err := LoadScripts(m.config.Dir)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%04d_%s.sql", nextNumber(scripts), scriptDescription(result.Diff))
	path := filepath.Join(m.config.Dir, name)
	if err := os.MkdirAll(m.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	m.logger.Info("generated migration", zap.String("script", name))
	return path, nil
}

// Apply runs one pending script and records it in the same transaction,
// retrying while another connection holds the database lock
func (m *Migrator) Apply(ctx context.Context, name string) error {
	result, err := m.Check(ctx)
	if err != nil {
		return err
	}
	if st := result.State(); st != StatePending {
		return &WrongStateError{Op: "apply", State: st, Want: StatePending}
	}
	if !slices.Contains(result.Pending, name) {
		return fmt.Errorf("migration %s is not pending", name)
	}

	script, err := os.ReadFile(filepath.Join(m.config.Dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	text := string(script)

	start := m.now()
	err = m.tx.WithRetry(ctx, nil, func(ctx context.Context) error {
		tx := transaction.MustFromContext(ctx).Tx()
		tracker := NewTracker(tx)
		if err := tracker.Initialize(ctx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, text); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		return tracker.Record(ctx, name, Checksum(text), m.now())
	})
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", name, err)
	}
	m.logger.Info("applied migration", zap.String("script", name), zap.Duration("took", m.now().Sub(start)))
	return nil
}

// ApplyPending applies every pending script in order, backing the database
// up before each one when backup is set. It returns the scripts applied.
func (m *Migrator) ApplyPending(ctx context.Context, backup bool) ([]string, error) {
	result, err := m.Check(ctx)
	if err != nil {
		return nil, err
	}
	if st := result.State(); st == StateCurrent {
		return nil, nil
	}

	var done []string
	for _, name := range result.Pending {
		if backup {
			if _, err := m.Backup(ctx); err != nil {
				return done, err
			}
		}
		if err := m.Apply(ctx, name); err != nil {
			return done, err
		}
		done = append(done, name)
	}
	if len(done) == 0 {
		return nil, &WrongStateError{Op: "apply", State: result.State(), Want: StatePending}
	}
	return done, nil
}

// Backup copies the database into the backup directory with VACUUM INTO
// and returns the copy's path
func (m *Migrator) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.config.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(m.config.DBPath), filepath.Ext(m.config.DBPath))
	if stem == "" || stem == "." || strings.HasPrefix(stem, ":memory:") {
		stem = "db"
	}
	path := filepath.Join(m.config.BackupDir,
		fmt.Sprintf("%s-%s.sqlite", stem, m.now().UTC().Format("20060102T150405.000000000")))

	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return "", fmt.Errorf("backup to %s: %w", path, err)
	}
	m.logger.Info("backed up database", zap.String("path", path))
	return path, nil
}

// ListBackups returns the backup file names, oldest first
func (m *Migrator) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(m.config.BackupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sqlite") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
