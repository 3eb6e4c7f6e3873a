package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/pkg/cli"
)

// runDefault implements bare `tapremote`: the dashboard when attached to a
// terminal, plain run otherwise.
func runDefault(cmd *cobra.Command, args []string) error {
	if !cli.Interactive(os.Stdin) {
		return runRun(cmd, args)
	}
	return runDashboard(cmd, args)
}
