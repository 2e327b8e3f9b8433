// Command ubi-server runs a standalone Backend Interface (UBI): a
// fan-out coordinator over a named set of Backend Node clients, driven
// here entirely through its own command surface (node-add/node-remove/
// configure/start/stop/deconfigure) rather than embedded inside a
// cam-server process.
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
		Use:     "ubi-server",
		Short:   "Reynard Backend Interface fan-out coordinator",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/reynard/ubi-server.yaml", "config file path")

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
