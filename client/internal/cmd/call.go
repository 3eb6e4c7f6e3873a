package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Issue one API call and print its result",
		Example: `  tapremote call version
  tapremote call launch '{"text":"**launch.system:snes"}'
  tapremote call media.search '{"query":"mario","systems":[]}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCall,
	}
	c.Flags().Duration("connect-timeout", 10*time.Second, "how long to wait for the device connection")
	return c
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]
	var params json.RawMessage
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("params must be valid JSON")
		}
		params = json.RawMessage(args[1])
	}

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

	timeout, _ := cmd.Flags().GetDuration("connect-timeout")
	if err := waitConnected(ctx, d, timeout); err != nil {
		return err
	}

	var p any
	if params != nil {
		p = params
	}
	result, err := d.Call(ctx, method, p)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	out := cmd.OutOrStdout()
	if len(result) == 0 {
		_, _ = fmt.Fprintln(out, "null")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = fmt.Fprintln(out, string(result))
		return nil
	}
	_, _ = fmt.Fprintln(out, pretty.String())
	return nil
}
