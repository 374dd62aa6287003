package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tuplesaver/tuplesaver/internal/cli/config"
	"github.com/tuplesaver/tuplesaver/internal/orm/codegen"
	"github.com/tuplesaver/tuplesaver/internal/orm/sqlitedb"
)

// NewDDLCommand creates the ddl command
func NewDDLCommand(opts *Options, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE statements of the models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd, opts, flags)
			if err != nil {
				return err
			}
			defer e.close()

			gen := codegen.NewDDLGenerator(e.codecs)
			tables := e.registry.TableModels()
			stmts, err := gen.GenerateSchema(tables)
			if err != nil {
				return err
			}
			for _, meta := range tables {
				stmts = append(stmts, gen.GenerateForeignKeyIndexes(meta)...)
			}

			w := cmd.OutOrStdout()
			for _, stmt := range stmts {
				fmt.Fprintf(w, "%s;\n\n", stmt)
			}
			return nil
		},
	}
}

// NewInitCommand creates the init command
func NewInitCommand(flags *globalFlags) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create tuplesaver.yaml and the migrations directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if flags.dbPath != "" {
				cfg.Database.Path = flags.dbPath
			}
			if driver != "" {
				if err := sqlitedb.ValidateDriver(driver); err != nil {
					return err
				}
				cfg.Database.Driver = driver
			}

			if err := os.MkdirAll(flags.dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(flags.dir, config.FileName)
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(flags.dir, cfg.Migrations.Dir), 0o755); err != nil {
				return fmt.Errorf("create migrations dir: %w", err)
			}

			out := newPrinter(cmd, flags)
			out.Success("Created %s", path)
			out.Info("Database: %s (%s)", cfg.Database.Path, cfg.Database.Driver)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	return cmd
}
