package ubn

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/pipeline"
	"github.com/mpifr-bdr/reynard/internal/sensor"
)

// RegisterCommands wires the Backend Node's command surface (spec.md
// §6) onto a shared katcp.Dispatcher.
func (n *Node) RegisterCommands(d *katcp.Dispatcher) {
	d.Register("configure", n.handleConfigure)
	d.Register("start", n.handleStart)
	d.Register("stop", n.handleStop)
	d.Register("reset", n.handleReset)
	d.Register("deconfigure", n.handleDeconfigure)
	d.Register("pipeline-avail", n.handlePipelineAvail)
	d.Register("pipeline-create", n.handlePipelineCreate)
	d.Register("pipeline-list", n.handlePipelineList)
	d.Register("pipeline-destroy", n.handlePipelineDestroy)
	d.Register("status", n.handleStatus)
	d.Register("device-status", n.handleDeviceStatus)
}

func decodeSensorSnapshot(escaped string) (map[string]sensor.Reading, error) {
	var snap map[string]sensor.Reading
	if err := json.Unmarshal([]byte(katcp.Unescape(escaped)), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (n *Node) handleConfigure(ctx context.Context, args []string) katcp.Reply {
	if len(args) != 2 {
		return katcp.Failf("configure requires <config> <sensors>")
	}
	doc, err := decodeConfigureDoc(args[0], katcp.Unescape)
	if err != nil {
		return katcp.Failf("configure: bad config document: %v", err)
	}
	snap, err := decodeSensorSnapshot(args[1])
	if err != nil {
		return katcp.Failf("configure: bad sensor snapshot: %v", err)
	}
	if err := n.Configure(ctx, doc, snap); err != nil {
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
		informs = append(informs, katcp.NewInform("pipeline-result", name, status, detail))
	}
	return informs
}

func (n *Node) handleStart(ctx context.Context, args []string) katcp.Reply {
	var snap map[string]sensor.Reading
	if len(args) == 1 {
		s, err := decodeSensorSnapshot(args[0])
		if err != nil {
			return katcp.Failf("start: bad sensor snapshot: %v", err)
		}
		snap = s
	}
	results := n.Start(ctx, snap)
	return katcp.Reply{Informs: fanOutInforms(results), Status: katcp.Ok}
}

func (n *Node) handleStop(ctx context.Context, _ []string) katcp.Reply {
	results := n.StopAll(ctx)
	return katcp.Reply{Informs: fanOutInforms(results), Status: katcp.Ok}
}

func (n *Node) handleReset(ctx context.Context, _ []string) katcp.Reply {
	results := n.ResetAll(ctx)
	return katcp.Reply{Informs: fanOutInforms(results), Status: katcp.Ok}
}

func (n *Node) handleDeconfigure(ctx context.Context, _ []string) katcp.Reply {
	if err := n.Deconfigure(ctx); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func (n *Node) handlePipelineAvail(_ context.Context, _ []string) katcp.Reply {
	return katcp.Okay(strings.Join(n.PipelineAvail(), ","))
}

func (n *Node) handlePipelineCreate(_ context.Context, args []string) katcp.Reply {
	if len(args) != 2 {
		return katcp.Failf("pipeline-create requires <name> <type>")
	}
	if err := n.PipelineCreate(args[0], args[1]); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func (n *Node) handlePipelineList(_ context.Context, _ []string) katcp.Reply {
	return katcp.Okay(strings.Join(n.PipelineList(), ","))
}

func (n *Node) handlePipelineDestroy(_ context.Context, args []string) katcp.Reply {
	if len(args) != 1 {
		return katcp.Failf("pipeline-destroy requires <name>")
	}
	if err := n.PipelineDestroy(args[0]); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

func (n *Node) handleStatus(_ context.Context, _ []string) katcp.Reply {
	doc := n.Status()
	body, err := json.Marshal(doc)
	if err != nil {
		return katcp.Failf("status: %v", err)
	}
	return katcp.Okay(katcp.Escape(string(body)))
}

// handleDeviceStatus reports "fail" if any hosted pipeline has landed
// in pipeline.StateFailed, and "ok" otherwise. Unlike UBI's tri-valued
// health, there is no "degraded" level.
func (n *Node) handleDeviceStatus(_ context.Context, _ []string) katcp.Reply {
	for _, inst := range n.Status().Pipelines {
		if inst.State == pipeline.StateFailed {
			return katcp.Okay("fail")
		}
	}
	return katcp.Okay("ok")
}
