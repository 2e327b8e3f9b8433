// Package receivers registers the concrete Effelsberg ReceiverClasses
// against the Node Pool's Receiver Registry.
package receivers

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/nodepool"
)

// pool is the node universe receivers resolve capture nodes against.
// Bind must be called once at service start, before any receiver's
// GetCaptureNodes is invoked.
var pool *nodepool.Pool

// Bind attaches the running node pool to every receiver registered by
// this package.
func Bind(p *nodepool.Pool) {
	pool = p
}

func init() {
	nodepool.Register("effelsberg", "p200-3", func() nodepool.ReceiverClass { return &p200Mode3{} })
	nodepool.Register("effelsberg", "paf", func() nodepool.ReceiverClass { return &paf{} })
}

// firmwareControlImage is the control-plane image invoked for P200-3
// firmware commands, matching the original's hardcoded registry image.
const firmwareControlImage = "docker.mpifr-bonn.mpg.de:5000/firmware-control:latest"

// p200FirmwareHost is the control IP the P200-3 firmware commands are
// addressed to.
const p200FirmwareHost = "134.104.75.134"

// p200CaptureInterface is the capture NIC the P200-3 mode binds to.
const p200CaptureInterface = "10.0.5.100"

// p200Mode3 drives the P200-3 full-resolution dual-polarisation
// firmware mode, grounded on the original's docker-run firmware
// control wrapper.
type p200Mode3 struct{}

// GetCaptureNodes returns the single capture node bound to the
// P200-3 NIC.
func (r *p200Mode3) GetCaptureNodes(_ context.Context) ([]nodepool.Node, error) {
	if pool == nil {
		return nil, fmt.Errorf("receivers: node pool not bound")
	}
	n, ok := pool.ByInterface(p200CaptureInterface)
	if !ok {
		return nil, fmt.Errorf("receivers: no node exposes capture interface %s", p200CaptureInterface)
	}
	return []nodepool.Node{n}, nil
}

func (r *p200Mode3) runFirmware(ctx context.Context, flag string) error {
	log := log.Component("receiver.p200-3")
	args := []string{
		"run", "--rm", "--network", "host", firmwareControlImage,
		"python", "full_res_dual_mode.py", p200FirmwareHost, "--noprogram", flag,
	}
	log.WithField("args", args).Info("running firmware control command")
	cmd := exec.CommandContext(ctx, "docker", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("receivers: p200-3 firmware command failed: %w (%s)", err, out)
	}
	return nil
}

// Configure enables the P200-3 firmware.
func (r *p200Mode3) Configure(ctx context.Context) error { return r.runFirmware(ctx, "--enable") }

// Trigger arms the P200-3 firmware.
func (r *p200Mode3) Trigger(ctx context.Context) error { return r.runFirmware(ctx, "--trigger") }

// Deconfigure disables the P200-3 firmware.
func (r *p200Mode3) Deconfigure(ctx context.Context) error { return r.runFirmware(ctx, "--disable") }

// paf is the phased-array-feed receiver: it has no firmware hooks and
// simply hands back every node in the pool as a capture target,
// matching the original's pass-through implementation.
type paf struct{}

// GetCaptureNodes returns every node currently known to the pool.
func (r *paf) GetCaptureNodes(_ context.Context) ([]nodepool.Node, error) {
	if pool == nil {
		return nil, fmt.Errorf("receivers: node pool not bound")
	}
	return pool.All(), nil
}
