package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/client/internal/state"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the device and log its activity (default without a TTY)",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(commandContext(cmd), e.logger)
	defer cancel()

	d := e.newDevice()
	unsubscribe := d.State().Subscribe(func(s state.Snapshot) {
		e.logger.Info("state changed",
			"connected", s.Connected,
			"connection_error", s.ConnectionError,
			"token_uid", s.LastToken.UID,
			"token_text", s.LastToken.Text,
			"playing", s.Playing.MediaName,
			"system", s.Playing.SystemName,
			"indexing", s.GamesIndex.Indexing,
		)
	})
	defer unsubscribe()

	e.logger.Info("tapremote starting", "version", version, "config", resolveConfigPath(cmd))

	if err := d.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		e.logger.Error("device error", "error", err)
		return err
	}

	e.logger.Info("tapremote stopped")
	return nil
}
