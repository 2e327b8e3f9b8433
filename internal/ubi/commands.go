package ubi

import (
	"context"
	"strconv"
	"strings"

	"github.com/mpifr-bdr/reynard/internal/katcp"
)

// RegisterCommands wires the Backend Interface's command surface
// (spec.md §6) onto a shared katcp.Dispatcher.
func (u *UBI) RegisterCommands(d *katcp.Dispatcher) {
	d.Register("configure", u.handleConfigure)
	d.Register("start", u.handleStart)
	d.Register("stop", u.handleStop)
	d.Register("deconfigure", u.handleDeconfigure)
	d.Register("node-add", u.handleNodeAdd)
	d.Register("node-remove", u.handleNodeRemove)
	d.Register("node-list", u.handleNodeList)
	d.Register("device-status", u.handleDeviceStatus)
}

func (u *UBI) handleConfigure(ctx context.Context, args []string) katcp.Reply {
	if len(args) != 2 {
		return katcp.Failf("configure requires <config> <sensors>")
	}
	if err := u.Configure(ctx, args[0], args[1]); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func fanOutInforms(results map[string]error) []katcp.Message {
	informs := make([]katcp.Message, 0, len(results))
	for name, err := range results {
		status := "ok"
		detail := ""
		if err != nil {
			status = "fail"
			detail = err.Error()
		}
		informs = append(informs, katcp.NewInform("node-result", name, status, detail))
	}
	return informs
}

func (u *UBI) handleStart(ctx context.Context, _ []string) katcp.Reply {
	return katcp.Reply{Informs: fanOutInforms(u.Start(ctx)), Status: katcp.Ok}
}

func (u *UBI) handleStop(ctx context.Context, _ []string) katcp.Reply {
	return katcp.Reply{Informs: fanOutInforms(u.Stop(ctx)), Status: katcp.Ok}
}

func (u *UBI) handleDeconfigure(ctx context.Context, _ []string) katcp.Reply {
	return katcp.Reply{Informs: fanOutInforms(u.Deconfigure(ctx)), Status: katcp.Ok}
}

func (u *UBI) handleNodeAdd(ctx context.Context, args []string) katcp.Reply {
	if len(args) != 3 {
		return katcp.Failf("node-add requires <name> <ip> <port>")
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return katcp.Failf("node-add: bad port %q", args[2])
	}
	if err := u.AddNode(ctx, args[0], args[1], port); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func (u *UBI) handleNodeRemove(_ context.Context, args []string) katcp.Reply {
	if len(args) != 1 {
		return katcp.Failf("node-remove requires <name>")
	}
	if err := u.RemoveNode(args[0]); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func (u *UBI) handleNodeList(_ context.Context, _ []string) katcp.Reply {
	return katcp.Okay(strings.Join(u.ListNodes(), ","))
}

func (u *UBI) handleDeviceStatus(ctx context.Context, _ []string) katcp.Reply {
	return katcp.Okay(u.DeviceStatus(ctx).String())
}
