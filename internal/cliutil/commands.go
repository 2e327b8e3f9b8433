package cliutil

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StandardCommands returns the status/stop/reload subcommands every
// Reynard binary exposes against its own admin channel, mirroring the
// teacher's cmd/{status,stop,reload}.go trio but built once here since
// five binaries share the identical admin verb set. addr is resolved
// lazily so the caller's --config flag has already been parsed.
func StandardCommands(addr func() string) []*cobra.Command {
	status := &cobra.Command{
		Use:   "status",
		Short: "Query the running daemon for its device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := NewAdminClient(addr(), DefaultTimeout).Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewAdminClient(addr(), DefaultTimeout).Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopping")
			return nil
		},
	}
	reload := &cobra.Command{
		Use:   "reload",
		Short: "Reload the running daemon's configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewAdminClient(addr(), DefaultTimeout).Reload(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reloaded")
			return nil
		},
	}
	return []*cobra.Command{status, stop, reload}
}
