package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tuplesaver/tuplesaver/internal/cli/config"
	"github.com/tuplesaver/tuplesaver/internal/cli/ui"
	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/migrate"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
	"github.com/tuplesaver/tuplesaver/internal/orm/sqlitedb"
)

// env is what a command works with: configuration, models, and on
// demand a database connection
type env struct {
	cfg      *config.Config
	registry *schema.Registry
	codecs   *codec.Registry
	logger   *zap.Logger
	out      *ui.Printer

	db       *sql.DB
	migrator *migrate.Migrator
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func newPrinter(cmd *cobra.Command, flags *globalFlags) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout(), flags.noColor)
}

// load reads the config and registers the models
func load(cmd *cobra.Command, opts *Options, flags *globalFlags) (*env, error) {
	cfg, err := config.LoadFrom(flags.dir)
	if err != nil {
		return nil, err
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}

	logger, err := newLogger(flags.verbose)
	if err != nil {
		return nil, err
	}

	codecs := opts.Codecs
	if codecs == nil {
		codecs = codec.NewRegistry()
	}
	registry := schema.NewRegistry(schema.WithLogger(logger))
	if err := registry.Register(opts.Models...); err != nil {
		return nil, err
	}

	return &env{
		cfg:      cfg,
		registry: registry,
		codecs:   codecs,
		logger:   logger,
		out:      newPrinter(cmd, flags),
	}, nil
}

// connect opens the database and builds the migrator
func (e *env) connect(ctx context.Context) error {
	db, err := sqlitedb.Open(ctx, sqlitedb.Options{
		Driver:      e.cfg.Database.Driver,
		Path:        e.cfg.Database.Path,
		JournalMode: e.cfg.Database.JournalMode,
		ForeignKeys: e.cfg.Database.ForeignKeys,
	})
	if err != nil {
		return err
	}
	e.db = db
	e.migrator = migrate.New(db, e.registry.TableModels(), migrate.Config{
		Dir:       e.cfg.Migrations.Dir,
		BackupDir: e.cfg.Migrations.BackupDir,
		DBPath:    e.cfg.Database.Path,
	}, migrate.WithLogger(e.logger), migrate.WithCodecs(e.codecs))
	return nil
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
	_ = e.logger.Sync()
}

// withMigrator runs fn with a connected environment
func withMigrator(cmd *cobra.Command, opts *Options, flags *globalFlags, fn func(e *env) error) error {
	e, err := load(cmd, opts, flags)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.connect(cmd.Context()); err != nil {
		return err
	}
	return fn(e)
}
