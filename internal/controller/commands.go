package controller

import (
	"context"
	"strconv"

	"github.com/mpifr-bdr/reynard/internal/katcp"
)

// RegisterCommands wires the CAM server's command surface (spec.md
// §6) onto a shared katcp.Dispatcher.
func (c *Controller) RegisterCommands(d *katcp.Dispatcher) {
	d.Register("arm", c.handleArm)
	d.Register("disarm", c.handleDisarm)
	d.Register("backend-address", c.handleBackendAddress)
	d.Register("backend-list", c.handleBackendList)
	d.Register("device-status", c.handleDeviceStatus)
}

func (c *Controller) handleArm(ctx context.Context, _ []string) katcp.Reply {
	if err := c.Arm(ctx); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay("armed")
}

func (c *Controller) handleDisarm(ctx context.Context, _ []string) katcp.Reply {
	if err := c.Disarm(ctx); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay("disarmed")
}

func (c *Controller) handleBackendAddress(_ context.Context, args []string) katcp.Reply {
	if len(args) != 1 {
		return katcp.Failf("backend-address requires <name>")
	}
	addr, ok := c.backends.Address(args[0])
	if !ok {
		return katcp.Failf("backend-address: no backend named %q", args[0])
	}
	return katcp.Okay(addr)
}

func (c *Controller) handleBackendList(_ context.Context, _ []string) katcp.Reply {
	names := c.backends.ListNodes()
	informs := make([]katcp.Message, 0, len(names))
	for _, name := range names {
		addr, _ := c.backends.Address(name)
		informs = append(informs, katcp.NewInform("backend-list", name, addr))
	}
	return katcp.Reply{Informs: informs, Status: katcp.Ok, Args: []string{strconv.Itoa(len(names))}}
}

func (c *Controller) handleDeviceStatus(ctx context.Context, _ []string) katcp.Reply {
	return katcp.Okay(c.backends.DeviceStatus(ctx).String())
}
