// Command pipeline-server runs one standalone Pipeline Runtime
// instance — used for bench/replay testing of a pipeline type outside
// a full ubn-server deployment, and embedded the same way inside
// ubn-server's per-pipeline fan-out.
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
	var instanceID string
	var typeName string

	root := &cobra.Command{
		Use:     "pipeline-server",
		Short:   "Reynard standalone Pipeline Runtime instance",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/reynard/pipeline-server.yaml", "config file path")
	root.PersistentFlags().StringVar(&instanceID, "id", "pipeline-0", "pipeline instance id")
	root.PersistentFlags().StringVar(&typeName, "type", "test", "registered pipeline type name")

	addr := func() string {
		cfg, err := config.Load(configFile)
		if err != nil {
			return ""
		}
		return cfg.Control.Listen
	}

	root.AddCommand(newRunCmd(&configFile, &instanceID, &typeName))
	root.AddCommand(newListTypesCmd())
	root.AddCommand(cliutil.StandardCommands(addr)...)
	return root
}
