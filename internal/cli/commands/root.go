// Package commands implements the tuplesaver command line. Models are Go
// types, so the command is built by the program that declares them:
//
//	func main() {
//		if err := commands.Execute(commands.Options{Models: []any{Team{}, Athlete{}}}); err != nil {
//			os.Exit(1)
//		}
//	}
package commands

import (
	"runtime"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tuplesaver/tuplesaver/internal/cli/ui"
	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Options configures the command tree
type Options struct {
	// Models are the table models the database should hold
	Models []any
	// Codecs maps custom field types to columns; builtins when nil
	Codecs *codec.Registry
	// Confirm asks before changing the database; a terminal prompt when nil
	Confirm func(message string) (bool, error)
}

func (o *Options) confirm(message string) (bool, error) {
	if o.Confirm != nil {
		return o.Confirm(message)
	}
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

// globalFlags are the persistent flags of the root command
type globalFlags struct {
	dir     string
	dbPath  string
	verbose bool
	noColor bool
}

// NewRootCommand creates the root command
func NewRootCommand(opts Options) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "tuplesaver",
		Short: "Keep a SQLite database in step with its models",
		Long: color.CyanString(`tuplesaver - SQLite persistence for Go structs

Models are compared with the tables of the database. Differences become
numbered SQL scripts in the migrations directory, which are applied in
order and recorded with a checksum.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.dir, "dir", ".", "Project directory holding tuplesaver.yaml")
	pf.StringVar(&flags.dbPath, "db", "", "Database path, overriding the config")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log SQL and progress")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand(flags))
	rootCmd.AddCommand(NewInitCommand(flags))
	rootCmd.AddCommand(NewStatusCommand(&opts, flags))
	rootCmd.AddCommand(NewGenerateCommand(&opts, flags))
	rootCmd.AddCommand(NewApplyCommand(&opts, flags))
	rootCmd.AddCommand(NewBackupCommand(&opts, flags))
	rootCmd.AddCommand(NewDDLCommand(&opts, flags))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), flags.noColor)
			kv.AddRow("tuplesaver version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", runtime.Version())
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute(opts Options) error {
	rootCmd := NewRootCommand(opts)
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
