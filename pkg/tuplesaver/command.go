package tuplesaver

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tuplesaver/tuplesaver/internal/cli/commands"
)

// NewCommand returns the tuplesaver command line for models. A program
// declaring its models embeds it to get status, generate and apply:
//
//	func main() {
//		if err := tuplesaver.NewCommand(Team{}, Athlete{}).Execute(); err != nil {
//			os.Exit(1)
//		}
//	}
func NewCommand(models ...any) *cobra.Command {
	return commands.NewRootCommand(commands.Options{Models: models})
}

// Command returns the command line for models using the engine's codecs,
// so custom field types map to the same columns
func (e *Engine) Command(models ...any) *cobra.Command {
	return commands.NewRootCommand(commands.Options{Models: models, Codecs: e.codecs})
}

// Main runs the command line for models and exits non-zero on failure
func Main(models ...any) {
	if err := commands.Execute(commands.Options{Models: models}); err != nil {
		os.Exit(1)
	}
}
