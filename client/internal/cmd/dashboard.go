package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/client/internal/tui/dashboard"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the live device dashboard (default in a TTY)",
		Args:  cobra.NoArgs,
		RunE:  runDashboard,
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	// Logs reach the dashboard through the bus; stdout belongs to the TUI.
	e, err := setup(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(commandContext(cmd), e.logger)
	defer cancel()

	d := e.newDevice()
	wait := startDevice(ctx, d)

	uiErr := dashboard.Run(ctx, d)
	runErr := wait()
	if uiErr != nil {
		return uiErr
	}
	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return fmt.Errorf("device: %w", runErr)
	}
	return nil
}
