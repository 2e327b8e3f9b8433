package daemon

import (
	"context"

	"github.com/mpifr-bdr/reynard/internal/katcp"
)

// RegisterAdminCommands wires the daemon-stop/daemon-reload admin verbs
// onto d's dispatcher, the counterpart to cliutil.AdminClient's
// Stop/Reload calls. Every Reynard binary registers these alongside its
// own service-specific verb table on the same Dispatcher.
func (d *Daemon) RegisterAdminCommands(disp *katcp.Dispatcher) {
	disp.Register("daemon-stop", d.handleStop)
	disp.Register("daemon-reload", d.handleReload)
}

func (d *Daemon) handleStop(ctx context.Context, _ []string) katcp.Reply {
	d.TriggerShutdown()
	return katcp.Okay("stopping")
}

func (d *Daemon) handleReload(ctx context.Context, _ []string) katcp.Reply {
	if err := d.Reload(); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay("reloaded")
}
