package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/sirupsen/logrus"
)

// Config configures one Aggregator instance.
type Config struct {
	MulticastAddr  string // e.g. "224.168.2.132:1602"
	Interface      string // network interface name to join the group on; empty selects the default
	TickInterval   time.Duration
	SensorBusParts int
}

func (c Config) withDefaults() Config {
	if c.MulticastAddr == "" {
		c.MulticastAddr = "224.168.2.132:1602"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SensorBusParts <= 0 {
		c.SensorBusParts = 8
	}
	return c
}

// Aggregator implements spec.md §4.2: ingest raw telemetry, project it
// onto the stable sensor schema, republish as a Sensor Tree.
type Aggregator struct {
	cfg  Config
	tree *sensor.Tree
	log  *logrus.Entry

	mu        sync.Mutex
	latest    RawRecord
	hasLatest bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Aggregator with every registered projection already
// present in its sensor tree: all 46 stable sensor names of the
// Projection Table are registered at construction time.
func New(cfg Config) (*Aggregator, error) {
	cfg = cfg.withDefaults()
	tree := sensor.NewTree(cfg.SensorBusParts)
	for name, p := range Projections() {
		if err := tree.AddSensor(sensor.Spec{
			Name: name, Description: p.Description, Unit: p.Unit,
			Kind: p.Kind, Params: p.Params, Default: p.Default,
		}); err != nil {
			return nil, fmt.Errorf("aggregator: bootstrap sensor %q: %w", name, err)
		}
	}
	return &Aggregator{
		cfg:  cfg,
		tree: tree,
		log:  log.Component("aggregator"),
	}, nil
}

// Tree exposes the underlying sensor tree for command handlers.
func (a *Aggregator) Tree() *sensor.Tree { return a.tree }

// Run starts the tick loop and the multicast ingestor and blocks until
// ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go func() { defer a.wg.Done(); a.tickLoop(ctx) }()
	go func() { defer a.wg.Done(); a.ingestLoop(ctx) }()

	<-ctx.Done()
	a.wg.Wait()
	return nil
}

// Stop cancels the running loops.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// tickLoop runs every cfg.TickInterval, grounded on the corpus's
// ticker-driven collector loop (statsCollectorLoop): on each tick, if a
// raw record arrived since the last tick, project it onto every
// sensor; otherwise log a missing-data warning and leave sensors
// as-is (spec §4.2).
func (a *Aggregator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, ok := a.takeLatest()
			if !ok {
				a.log.Warn("aggregator tick: no telemetry received since last tick")
				continue
			}
			a.project(raw)
		}
	}
}

func (a *Aggregator) takeLatest() (RawRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasLatest {
		return nil, false
	}
	raw := a.latest
	a.hasLatest = false
	return raw, true
}

// deliver hands a freshly decoded datagram to the tick loop's
// coalescing-latest slot, discarding whatever was previously queued.
func (a *Aggregator) deliver(raw RawRecord) {
	a.mu.Lock()
	a.latest = raw
	a.hasLatest = true
	a.mu.Unlock()
}

// markStale flips every sensor's status to unknown without touching
// its value, used when the ingestor hits a socket error and must keep
// serving stale readings (spec §4.2 Failure).
func (a *Aggregator) markStale() {
	for name, reading := range a.tree.Snapshot() {
		_ = a.tree.SetValue(name, reading.Value, sensor.WithStatus(sensor.StatusUnknown), sensor.WithTimestamp(reading.Timestamp))
	}
}

func (a *Aggregator) project(raw RawRecord) {
	for name, p := range Projections() {
		if p.Project == nil {
			continue
		}
		val, ok := p.Project(raw)
		if !ok {
			continue
		}
		if err := a.tree.SetValue(name, val, sensor.WithStatus(sensor.StatusNominal)); err != nil {
			a.log.Warnf("aggregator: project %q: %v", name, err)
		}
	}
}

// GetSnapshot returns the current projected sensor readings (spec
// §4.2 get_snapshot).
func (a *Aggregator) GetSnapshot() map[string]sensor.Reading {
	return a.tree.Snapshot()
}

// SetSensor is the manual override used by a dummy instance for
// replay/testing (spec §4.2 set_sensor): it type-converts the incoming
// string using the projection's declared type.
func (a *Aggregator) SetSensor(name, rawValue string) error {
	p, ok := Projections()[name]
	if !ok {
		return rerrors.InvariantViolation("aggregator: unknown sensor %q", name)
	}
	val, err := convertString(p.Kind, rawValue)
	if err != nil {
		return fmt.Errorf("aggregator: set_sensor %q: %w", name, err)
	}
	return a.tree.SetValue(name, val, sensor.WithStatus(sensor.StatusNominal))
}
