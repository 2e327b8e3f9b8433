// Package ubn implements the Backend Node (UBN, spec §4.4): a
// per-host service hosting N Pipeline Runtime instances behind a
// command surface matching spec.md §4.4 exactly.
package ubn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/pipeline"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config configures one Node.
type Config struct {
	Volumes    []string // filesystem paths to monitor disk usage on
	NumCPU     int      // number of CPU-percent sensors to register
	NUMANodes  int      // number of memory sensors (NUMA nodes); 0 means a single "node0"
	MonitorTick time.Duration
}

func (c Config) withDefaults() Config {
	if c.NumCPU <= 0 {
		c.NumCPU = 1
	}
	if c.NUMANodes <= 0 {
		c.NUMANodes = 1
	}
	if c.MonitorTick <= 0 {
		c.MonitorTick = time.Second
	}
	return c
}

// Node is the Backend Node service.
type Node struct {
	cfg  Config
	tree *sensor.Tree
	log  *logrus.Entry

	mu        sync.Mutex
	active    bool
	pipelines map[string]*pipeline.Instance

	cancel context.CancelFunc
}

// New constructs a Node with its host-monitoring sensors registered.
func New(cfg Config) *Node {
	cfg = cfg.withDefaults()
	n := &Node{
		cfg:       cfg,
		tree:      sensor.NewTree(8),
		log:       log.Component("ubn"),
		pipelines: make(map[string]*pipeline.Instance),
	}
	n.registerHostSensors()
	return n
}

func (n *Node) registerHostSensors() {
	_ = n.tree.AddSensor(sensor.Spec{Name: "active", Kind: sensor.KindBool, Description: "node is configured and serving an observation"})
	for _, vol := range n.cfg.Volumes {
		_ = n.tree.AddSensor(sensor.Spec{Name: "disk." + vol + ".capacity", Kind: sensor.KindFloat, Unit: "bytes", Description: "filesystem capacity for " + vol})
		_ = n.tree.AddSensor(sensor.Spec{Name: "disk." + vol + ".available", Kind: sensor.KindFloat, Unit: "bytes", Description: "filesystem available space for " + vol})
	}
	for i := 0; i < n.cfg.NumCPU; i++ {
		_ = n.tree.AddSensor(sensor.Spec{Name: fmt.Sprintf("cpu.core%d.percent", i), Kind: sensor.KindFloat, Unit: "%", Description: "per-core CPU utilization"})
	}
	for i := 0; i < n.cfg.NUMANodes; i++ {
		_ = n.tree.AddSensor(sensor.Spec{Name: fmt.Sprintf("mem.node%d.total", i), Kind: sensor.KindFloat, Unit: "bytes", Description: "host total memory (same host-wide value for every NUMA node)"})
		_ = n.tree.AddSensor(sensor.Spec{Name: fmt.Sprintf("mem.node%d.available", i), Kind: sensor.KindFloat, Unit: "bytes", Description: "host available memory (same host-wide value for every NUMA node)"})
	}
}

// Tree exposes the node's sensor tree.
func (n *Node) Tree() *sensor.Tree { return n.tree }

// Run starts the 1-second host-monitoring loop and blocks until ctx is
// cancelled (spec §4.4 responsibility 1).
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	ticker := time.NewTicker(n.cfg.MonitorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.sampleHost()
		}
	}
}

// Stop cancels the monitoring loop.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
}

func (n *Node) sampleHost() {
	for _, vol := range n.cfg.Volumes {
		cap, avail, err := diskUsage(vol)
		if err != nil {
			n.log.Warnf("ubn: disk usage %s: %v", vol, err)
			continue
		}
		_ = n.tree.SetValue("disk."+vol+".capacity", sensor.Value{Float: cap})
		_ = n.tree.SetValue("disk."+vol+".available", sensor.Value{Float: avail})
	}

	percents, err := cpuPercents(n.cfg.NumCPU)
	if err != nil {
		n.log.Warnf("ubn: cpu sample: %v", err)
	} else {
		for i, p := range percents {
			_ = n.tree.SetValue(fmt.Sprintf("cpu.core%d.percent", i), sensor.Value{Float: p})
		}
	}

	total, avail, err := memInfo()
	if err != nil {
		n.log.Warnf("ubn: mem sample: %v", err)
	} else {
		for i := 0; i < n.cfg.NUMANodes; i++ {
			_ = n.tree.SetValue(fmt.Sprintf("mem.node%d.total", i), sensor.Value{Float: total})
			_ = n.tree.SetValue(fmt.Sprintf("mem.node%d.available", i), sensor.Value{Float: avail})
		}
	}
}

// PipelineDoc describes one pipeline within a configure command's
// document (spec §4.4 responsibility 2).
type PipelineDoc struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// ConfigureDoc is the full configure command payload.
type ConfigureDoc struct {
	Pipelines []PipelineDoc `json:"pipelines"`
}

// isActive reports the active sensor's current value.
func (n *Node) isActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Configure creates a Pipeline Runtime instance for every pipeline in
// doc and drives its configure(config, sensors) concurrently (spec
// §4.4 responsibility 2). Rejects the call outright while already
// active.
func (n *Node) Configure(ctx context.Context, doc ConfigureDoc, sensors map[string]sensor.Reading) error {
	if n.isActive() {
		return rerrors.InvariantViolation("ubn: configure rejected: node already active")
	}

	n.mu.Lock()
	created := make([]*pipeline.Instance, 0, len(doc.Pipelines))
	for _, pd := range doc.Pipelines {
		if _, exists := n.pipelines[pd.Name]; exists {
			n.mu.Unlock()
			return rerrors.InvariantViolation("ubn: duplicate pipeline name %q", pd.Name)
		}
		inst, err := pipeline.New(pd.Name, pd.Type)
		if err != nil {
			// Pipeline-server creation failure: whole call fails
			// immediately; successfully created pipelines are left in
			// place for the operator to inspect (spec §4.4 Failure
			// semantics).
			n.mu.Unlock()
			return fmt.Errorf("ubn: create pipeline %q: %w", pd.Name, err)
		}
		n.pipelines[pd.Name] = inst
		created = append(created, inst)
	}
	n.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i, pd := range doc.Pipelines {
		inst := created[i]
		cfg := pd.Config
		g.Go(func() error {
			return inst.Configure(gctx, cfg, sensors)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ubn: configure: %w", err)
	}

	n.mu.Lock()
	n.active = true
	n.mu.Unlock()
	_ = n.tree.SetValue("active", sensor.Value{Bool: true})
	return nil
}

// fanOut runs fn against every currently configured pipeline
// concurrently, collecting per-pipeline errors as informs rather than
// failing the call (spec §4.4 responsibility 3: "replies aggregate
// per-pipeline outcomes but always return ok when the fan-out
// completed").
func (n *Node) fanOut(fn func(*pipeline.Instance) error) map[string]error {
	n.mu.Lock()
	insts := make(map[string]*pipeline.Instance, len(n.pipelines))
	for name, inst := range n.pipelines {
		insts[name] = inst
	}
	n.mu.Unlock()

	results := make(map[string]error, len(insts))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, inst := range insts {
		wg.Add(1)
		go func(name string, inst *pipeline.Instance) {
			defer wg.Done()
			err := fn(inst)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, inst)
	}
	wg.Wait()
	return results
}

// Start fans start(sensors) out to every configured pipeline.
func (n *Node) Start(ctx context.Context, sensors map[string]sensor.Reading) map[string]error {
	return n.fanOut(func(p *pipeline.Instance) error { return p.Start(ctx, sensors) })
}

// StopAll fans stop out to every configured pipeline.
func (n *Node) StopAll(ctx context.Context) map[string]error {
	return n.fanOut(func(p *pipeline.Instance) error { return p.Stop(ctx, false) })
}

// ResetAll fans reset out to every configured pipeline.
func (n *Node) ResetAll(ctx context.Context) map[string]error {
	return n.fanOut(func(p *pipeline.Instance) error { p.Reset(ctx); return nil })
}

// Deconfigure stops all pipelines, destroys their local servers,
// clears the registry, and sets active=false (spec §4.4
// responsibility 5).
func (n *Node) Deconfigure(ctx context.Context) error {
	n.fanOut(func(p *pipeline.Instance) error { p.Reset(ctx); return nil })

	n.mu.Lock()
	for _, inst := range n.pipelines {
		inst.Close()
	}
	n.pipelines = make(map[string]*pipeline.Instance)
	n.active = false
	n.mu.Unlock()

	return n.tree.SetValue("active", sensor.Value{Bool: false})
}

// PipelineAvail lists every registered pipeline-type-name.
func (n *Node) PipelineAvail() []string { return pipeline.TypeNames() }

// PipelineCreate creates a single idle pipeline instance outside the
// bulk configure flow (spec.md §6 command table: pipeline-create).
func (n *Node) PipelineCreate(name, typeName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.pipelines[name]; exists {
		return rerrors.InvariantViolation("ubn: pipeline %q already exists", name)
	}
	inst, err := pipeline.New(name, typeName)
	if err != nil {
		return err
	}
	n.pipelines[name] = inst
	return nil
}

// PipelineList returns every currently registered pipeline's name.
func (n *Node) PipelineList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.pipelines))
	for name := range n.pipelines {
		names = append(names, name)
	}
	return names
}

// PipelineDestroy removes a pipeline instance by name.
func (n *Node) PipelineDestroy(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	inst, ok := n.pipelines[name]
	if !ok {
		return rerrors.InvariantViolation("ubn: unknown pipeline %q", name)
	}
	inst.Close()
	delete(n.pipelines, name)
	return nil
}

// StatusDoc is the merged status document returned by the status
// command (spec §4.4 responsibility 6): local sensor values plus
// per-pipeline status subtrees collected in parallel.
type StatusDoc struct {
	Sensors   map[string]sensor.Reading        `json:"sensors"`
	Pipelines map[string]pipeline.InstanceStatus `json:"pipelines"`
}

// Status collects the merged status document. Failure to collect an
// individual pipeline's status is non-fatal (spec §4.4: "the state
// remains authoritative").
func (n *Node) Status() StatusDoc {
	n.mu.Lock()
	insts := make(map[string]*pipeline.Instance, len(n.pipelines))
	for name, inst := range n.pipelines {
		insts[name] = inst
	}
	n.mu.Unlock()

	doc := StatusDoc{
		Sensors:   n.tree.Snapshot(),
		Pipelines: make(map[string]pipeline.InstanceStatus, len(insts)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, inst := range insts {
		wg.Add(1)
		go func(name string, inst *pipeline.Instance) {
			defer wg.Done()
			st := inst.Status()
			mu.Lock()
			doc.Pipelines[name] = st
			mu.Unlock()
		}(name, inst)
	}
	wg.Wait()
	return doc
}

// decodeConfigureDoc unescapes and decodes a configure command's
// config argument.
func decodeConfigureDoc(escaped string, unescape func(string) string) (ConfigureDoc, error) {
	var doc ConfigureDoc
	if err := json.Unmarshal([]byte(unescape(escaped)), &doc); err != nil {
		return ConfigureDoc{}, err
	}
	return doc, nil
}
