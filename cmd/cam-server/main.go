// Command cam-server runs the Observation Controller, the CAM command
// surface, and an embedded Backend Interface (UBI) and Telescope State
// Aggregator in one process — the controller needs a live, in-process
// *sensor.Tree to register its scan/sub-scan/observing listeners on,
// and a BackendInterface it can call without a network hop, so both
// are constructed here as libraries rather than dialed remotely (the
// standalone ubi-server/aggregator-server binaries exist for operating
// those components independently, the way pipeline-server stands
// alone from ubn-server).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/cliutil"
	"github.com/mpifr-bdr/reynard/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:     "cam-server",
		Short:   "Reynard Observation Controller and CAM command surface",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/reynard/cam-server.yaml", "config file path")

	addr := func() string {
		cfg, err := config.Load(configFile)
		if err != nil {
			return ""
		}
		return cfg.Control.Listen
	}

	root.AddCommand(newRunCmd(&configFile))
	root.AddCommand(cliutil.StandardCommands(addr)...)
	return root
}
