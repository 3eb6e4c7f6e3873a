package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/client/internal/address"
	"github.com/tapto/tapremote/pkg/cli"
	"github.com/tapto/tapremote/pkg/protocol"
)

func newAddressCmd() *cobra.Command {
	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Show or change the stored device address",
		Args:  cobra.NoArgs,
		RunE:  runAddressGet, // default subcommand
	}
	addressCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the stored device address",
		Args:  cobra.NoArgs,
		RunE:  runAddressGet,
	})
	addressCmd.AddCommand(&cobra.Command{
		Use:   "set [host]",
		Short: "Store the device address (prompts when host is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAddressSet,
	})
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored device address",
		Args:  cobra.NoArgs,
		RunE:  runAddressClear,
	}
	clearCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	addressCmd.AddCommand(clearCmd)
	return addressCmd
}

func runAddressGet(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer e.Close()

	addr, err := e.addresses.Get(commandContext(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if addr == "" {
		_, _ = fmt.Fprintln(out, "No device address set.")
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s (%s)\n", addr, protocol.EndpointURL(addr))
	return nil
}

func runAddressSet(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	var host string
	if len(args) == 1 {
		host = args[0]
	} else {
		current, err := e.addresses.Get(ctx)
		if err != nil {
			return err
		}
		p := &cli.Prompter{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
		host, err = p.AskValid("Device address", current, address.Normalize)
		if err != nil {
			return err
		}
	}

	if err := e.addresses.Set(ctx, host); err != nil {
		return err
	}
	addr, err := e.addresses.Get(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if addr == "" {
		_, _ = fmt.Fprintln(out, "Device address cleared.")
		return nil
	}
	_, _ = fmt.Fprintf(out, "Device address set to %s\n", addr)
	return nil
}

func runAddressClear(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		p := &cli.Prompter{In: cmd.InOrStdin(), Out: out}
		if !p.Confirm("Forget the stored device address?", false) {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}
	if err := e.addresses.Set(commandContext(cmd), ""); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Device address cleared.")
	return nil
}
