package pipeline

import (
	"context"
	"encoding/json"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/sensor"
)

// RegisterCommands wires the standalone Pipeline server's command
// surface (spec.md §6: "configure <config> <sensors>, start <sensors>,
// stop, reset, deconfigure, status") onto a shared katcp.Dispatcher for
// a single Instance — the bench/replay binary. ubn-server does not use
// these handlers; it calls the Instance methods directly.
func RegisterCommands(d *katcp.Dispatcher, inst *Instance) {
	d.Register("configure", func(ctx context.Context, args []string) katcp.Reply {
		return handleConfigure(ctx, inst, args)
	})
	d.Register("start", func(ctx context.Context, args []string) katcp.Reply {
		return handleStart(ctx, inst, args)
	})
	d.Register("stop", func(ctx context.Context, args []string) katcp.Reply {
		return handleStop(ctx, inst, args)
	})
	d.Register("reset", func(ctx context.Context, args []string) katcp.Reply {
		inst.Reset(ctx)
		return katcp.Okay()
	})
	d.Register("deconfigure", func(ctx context.Context, args []string) katcp.Reply {
		if err := inst.Deconfigure(ctx); err != nil {
			return katcp.Failf("%v", err)
		}
		return katcp.Okay()
	})
	d.Register("status", func(ctx context.Context, args []string) katcp.Reply {
		body, err := json.Marshal(inst.Status())
		if err != nil {
			return katcp.Failf("status: %v", err)
		}
		return katcp.Okay(katcp.Escape(string(body)))
	})
	d.Register("device-status", func(ctx context.Context, args []string) katcp.Reply {
		if inst.State() == StateFailed {
			return katcp.Okay("fail")
		}
		return katcp.Okay("ok")
	})
}

func decodeSensors(escaped string) (map[string]sensor.Reading, error) {
	var snap map[string]sensor.Reading
	if err := json.Unmarshal([]byte(katcp.Unescape(escaped)), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func handleConfigure(ctx context.Context, inst *Instance, args []string) katcp.Reply {
	if len(args) != 2 {
		return katcp.Failf("configure requires <config> <sensors>")
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(katcp.Unescape(args[0])), &cfg); err != nil {
		return katcp.Failf("configure: bad config: %v", err)
	}
	sensors, err := decodeSensors(args[1])
	if err != nil {
		return katcp.Failf("configure: bad sensors: %v", err)
	}
	if err := inst.Configure(ctx, cfg, sensors); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func handleStart(ctx context.Context, inst *Instance, args []string) katcp.Reply {
	var sensors map[string]sensor.Reading
	if len(args) == 1 {
		s, err := decodeSensors(args[0])
		if err != nil {
			return katcp.Failf("start: bad sensors: %v", err)
		}
		sensors = s
	}
	if err := inst.Start(ctx, sensors); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func handleStop(ctx context.Context, inst *Instance, _ []string) katcp.Reply {
	if err := inst.Stop(ctx, false); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}
