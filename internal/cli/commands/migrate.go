package commands

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuplesaver/tuplesaver/internal/cli/ui"
	"github.com/tuplesaver/tuplesaver/internal/orm/migrate"
)

// NewStatusCommand creates the status command
func NewStatusCommand(opts *Options, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare models, scripts and database",
		Long: `Show the migration state of the database.

The command fails unless the state is current, so it can gate a deploy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, flags, func(e *env) error {
				result, err := e.migrator.Check(cmd.Context())
				if err != nil {
					return err
				}
				ui.RenderCheck(cmd.OutOrStdout(), result, flags.noColor)
				if st := result.State(); st != migrate.StateCurrent {
					return fmt.Errorf("state is %s", st)
				}
				return nil
			})
		},
	}
}

// NewGenerateCommand creates the generate command
func NewGenerateCommand(opts *Options, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Write a migration script for model changes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, flags, func(e *env) error {
				path, err := e.migrator.Generate(cmd.Context())
				if err != nil {
					return err
				}
				e.out.Success("Generated %s", filepath.Base(path))
				e.out.Info("Review the script, then run 'tuplesaver apply'")
				return nil
			})
		},
	}
}

// NewApplyCommand creates the apply command
func NewApplyCommand(opts *Options, flags *globalFlags) *cobra.Command {
	var (
		yes      bool
		noBackup bool
	)

	cmd := &cobra.Command{
		Use:   "apply [script]",
		Short: "Apply pending migration scripts",
		Long: `Apply pending migration scripts in order, or only the named one.

The database is backed up before each script unless --no-backup is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, flags, func(e *env) error {
				ctx := cmd.Context()
				result, err := e.migrator.Check(ctx)
				if err != nil {
					return err
				}
				st := result.State()
				if st == migrate.StateCurrent {
					e.out.Info("Nothing to apply: already up to date")
					return nil
				}
				if st != migrate.StatePending {
					ui.RenderCheck(cmd.OutOrStdout(), result, flags.noColor)
					return &migrate.WrongStateError{Op: "apply", State: st, Want: migrate.StatePending}
				}

				todo := result.Pending
				if len(args) == 1 {
					name := args[0]
					if !slices.Contains(result.Pending, name) {
						msg := fmt.Sprintf("migration %s is not pending", name)
						if s := ui.Suggest(name, result.Pending); len(s) > 0 {
							msg += fmt.Sprintf("; did you mean %s?", strings.Join(s, ", "))
						}
						return fmt.Errorf("%s", msg)
					}
					todo = []string{name}
				}

				if !yes {
					ok, err := opts.confirm(fmt.Sprintf("Apply %d migration(s) to %s?", len(todo), e.cfg.Database.Path))
					if err != nil {
						return err
					}
					if !ok {
						e.out.Warn("Aborted")
						return nil
					}
				}

				for _, name := range todo {
					if !noBackup {
						path, err := e.migrator.Backup(ctx)
						if err != nil {
							return err
						}
						e.out.Info("Backed up to %s", filepath.Base(path))
					}
					if err := e.migrator.Apply(ctx, name); err != nil {
						return err
					}
					e.out.Success("Applied %s", name)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip the backup before each script")
	return cmd
}

// NewBackupCommand creates the backup command
func NewBackupCommand(opts *Options, flags *globalFlags) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the database into the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, flags, func(e *env) error {
				if list {
					names, err := e.migrator.ListBackups()
					if err != nil {
						return err
					}
					if len(names) == 0 {
						e.out.Info("No backups in %s", e.cfg.Migrations.BackupDir)
						return nil
					}
					for _, name := range names {
						fmt.Fprintln(cmd.OutOrStdout(), name)
					}
					return nil
				}

				path, err := e.migrator.Backup(cmd.Context())
				if err != nil {
					return err
				}
				e.out.Success("Backup created: %s", path)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "List existing backups")
	return cmd
}
