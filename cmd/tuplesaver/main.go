package main

import (
	"os"

	"github.com/tuplesaver/tuplesaver/examples/league"
	"github.com/tuplesaver/tuplesaver/internal/cli/commands"
)

func main() {
	if err := commands.Execute(commands.Options{Models: league.Models()}); err != nil {
		os.Exit(1)
	}
}
