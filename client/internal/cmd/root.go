package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for tapremote.
// Bare invocation opens the dashboard in a TTY and otherwise behaves like run.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "tapremote",
		Short:         "tapremote: control a TapTo device over its JSON-RPC API",
		Long:          "tapremote connects to a TapTo device, tracks what it is playing and scanning, and issues API calls.",
		RunE:          runDefault,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newAddressCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDashboardCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringP("address", "a", "", "device address (overrides the stored one)")

	return root
}
