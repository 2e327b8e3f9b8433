// Command ubn-server runs a Backend Node (UBN): per-host monitoring
// sensors plus N embedded Pipeline Runtime instances behind one
// command surface (spec.md §4.4).
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
		Use:     "ubn-server",
		Short:   "Reynard Backend Node",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/reynard/ubn-server.yaml", "config file path")

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
