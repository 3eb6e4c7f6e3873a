package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/client/internal/device"
)

func newStatusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Connect to the device and show its status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	c.Flags().Duration("connect-timeout", 5*time.Second, "how long to wait for the device connection")
	return c
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(commandContext(cmd), e.logger)
	defer cancel()

	d := e.newDevice()
	wait := startDevice(ctx, d)
	defer func() { _ = wait() }()

	out := cmd.OutOrStdout()
	timeout, _ := cmd.Flags().GetDuration("connect-timeout")
	connErr := waitConnected(ctx, d, timeout)

	info := d.Info()
	addr := info.Address
	if addr == "" {
		addr = "(not set)"
	}
	_, _ = fmt.Fprintf(out, "Device:   %s\n", addr)
	_, _ = fmt.Fprintf(out, "Status:   %s\n", info.Status)
	if connErr != nil {
		_, _ = fmt.Fprintf(out, "Error:    %v\n", connErr)
		return nil
	}

	callCtx, callCancel := context.WithTimeout(ctx, timeout)
	defer callCancel()
	if v, err := d.API().Version(callCtx); err == nil {
		_, _ = fmt.Fprintf(out, "Version:  %s (%s)\n", v.Version, v.Platform)
	} else {
		_, _ = fmt.Fprintf(out, "Version:  unavailable (%v)\n", err)
	}

	snap := d.State().Snapshot()
	playing := "nothing"
	if snap.Playing.MediaName != "" {
		playing = fmt.Sprintf("%s (%s)", snap.Playing.MediaName, snap.Playing.SystemName)
	}
	_, _ = fmt.Fprintf(out, "Playing:  %s\n", playing)
	if snap.LastToken.UID != "" || snap.LastToken.Text != "" {
		_, _ = fmt.Fprintf(out, "Token:    %s %s\n", snap.LastToken.UID, snap.LastToken.Text)
	}
	return nil
}

// waitConnected waits up to timeout for d to connect.
func waitConnected(ctx context.Context, d *device.Device, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.WaitConnected(ctx); err != nil {
		info := d.Info()
		if info.Address == "" {
			return fmt.Errorf("no device address configured; run `tapremote address set <host>`")
		}
		return fmt.Errorf("could not connect to %s: %w", info.Address, err)
	}
	return nil
}
