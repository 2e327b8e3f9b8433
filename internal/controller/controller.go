// Package controller implements the Observation Controller (spec
// §4.6): an event-driven state machine that subscribes to the
// Aggregator's scan/sub-scan/observing sensors and drives the Backend
// Interface through configure/start/stop/deconfigure cycles.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/metrics"
	"github.com/mpifr-bdr/reynard/internal/nodepool"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/mpifr-bdr/reynard/internal/ubi"
	"github.com/sirupsen/logrus"
)

// BackendInterface is the subset of *ubi.UBI the Controller drives and
// the CAM command surface forwards to. Expressed as an interface so
// tests can substitute a fake without standing up real KATCP
// connections.
type BackendInterface interface {
	Configure(ctx context.Context, escapedConfig, escapedSensors string) error
	Start(ctx context.Context) map[string]error
	Stop(ctx context.Context) map[string]error
	Deconfigure(ctx context.Context) map[string]error
	ListNodes() []string
	Address(name string) (string, bool)
	DeviceStatus(ctx context.Context) ubi.Health
}

// Config controls Controller construction.
type Config struct {
	Telescope  string
	ConfigRoot string // REYNARD_CONFIG
	QueueSize  int
}

func (c Config) withDefaults() Config {
	if c.Telescope == "" {
		c.Telescope = "effelsberg"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	return c
}

// Controller is the Observation Controller.
type Controller struct {
	cfg      Config
	tree     *sensor.Tree
	backends BackendInterface
	pool     *nodepool.Pool
	log      *logrus.Entry

	mu    sync.Mutex
	state State
	armed bool

	scanHandle      *sensor.Handle
	subscanHandle   *sensor.Handle
	observingHandle *sensor.Handle

	workCh chan func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Controller over tree (the Aggregator's sensor tree),
// backends (the UBI fan-out coordinator) and pool (the Node Pool).
func New(cfg Config, tree *sensor.Tree, backends BackendInterface, pool *nodepool.Pool) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		tree:     tree,
		backends: backends,
		pool:     pool,
		log:      log.Component("controller"),
		workCh:   make(chan func(), cfg.QueueSize),
	}
}

// Run starts the single-worker serial dispatch loop (spec §9 design
// note: "coroutine chains ... queued on the controller's serial work
// channel"). It returns once the worker goroutine is running; the
// worker drains workCh until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-c.workCh:
				job()
			}
		}
	}()
}

// Stop cancels the worker loop and waits for it to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Controller) enqueue(job func()) {
	c.workCh <- job
}

// wrap adapts a handler meant to run under the coarse lock into a
// sensor.Listener that enqueues onto the serial work channel instead
// of running on the event bus's own dispatch goroutine — the bus
// delivers different sensors' events concurrently, so every handler
// body must be funneled through the single worker to get the coarse
// lock spec §4.6 requires.
func (c *Controller) wrap(h sensor.Listener) sensor.Listener {
	return func(evt sensor.Event) {
		c.enqueue(func() { h(evt) })
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.ControllerState.Set(float64(s))
}

// State returns the controller's current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Armed reports whether the controller is currently armed.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Arm starts the controller: it is rejected while already armed
// (spec §4.6: "Arm is rejected when already armed"). Arming
// subscribes to scan-number changes with event strategy and
// transitions to waiting_for_scan_number_change (S1).
func (c *Controller) Arm(ctx context.Context) error {
	c.mu.Lock()
	if c.armed {
		c.mu.Unlock()
		return rerrors.InvariantViolation("controller: already armed")
	}
	c.armed = true
	c.mu.Unlock()

	done := make(chan struct{})
	c.enqueue(func() {
		defer close(done)
		c.setState(StateStarting)
		h := c.tree.RegisterListener("scannum", sensor.StrategyEvent, 0, c.wrap(c.scanHandler))
		c.scanHandle = &h
		c.setState(StateWaitingForScanNumberChange)
		c.log.Info("controller armed")
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disarm clears every sampling strategy, deregisters all listeners,
// tears down backends (failure-tolerant), and returns to idle
// (spec §4.6: disarm).
func (c *Controller) Disarm(ctx context.Context) error {
	done := make(chan struct{})
	c.enqueue(func() {
		defer close(done)
		c.fullStop(ctx)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unregisterAllLocked clears every outstanding listener handle. Must
// be called from the worker goroutine.
func (c *Controller) unregisterAllLocked() {
	if c.scanHandle != nil {
		c.tree.Unregister(*c.scanHandle)
		c.scanHandle = nil
	}
	if c.subscanHandle != nil {
		c.tree.Unregister(*c.subscanHandle)
		c.subscanHandle = nil
	}
	if c.observingHandle != nil {
		c.tree.Unregister(*c.observingHandle)
		c.observingHandle = nil
	}
}

// stopNodes issues UBI stop, logging (not propagating) any failure —
// spec §4.6/§7: stop/deconfigure failures during re-configuration are
// warnings, not fatals.
func (c *Controller) stopNodes(ctx context.Context) {
	for name, err := range c.backends.Stop(ctx) {
		if err != nil {
			c.log.WithField("node", name).WithError(err).Warn("stop_nodes: node reported failure")
		}
	}
}

// deconfigureNodes issues UBI deconfigure, failure-tolerant.
func (c *Controller) deconfigureNodes(ctx context.Context) {
	for name, err := range c.backends.Deconfigure(ctx) {
		if err != nil {
			c.log.WithField("node", name).WithError(err).Warn("deconfigure_nodes: node reported failure")
		}
	}
}

// fullStop tears the current observation cycle down: stop, deconfigure
// (both failure-tolerant), clear every listener, return to idle and
// clear the armed flag. Used by Disarm and by every handler's failure
// path (spec §4.6: "transition to stopping and then idle, clearing the
// armed flag").
func (c *Controller) fullStop(ctx context.Context) {
	c.setState(StateStopping)
	c.unregisterAllLocked()
	c.stopNodes(ctx)
	c.deconfigureNodes(ctx)
	c.setState(StateIdle)
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}

func boolValue(r sensor.Reading) bool      { return r.Value.Bool }
func intValue(r sensor.Reading) int64      { return r.Value.Int }
func stringValue(r sensor.Reading) string  { return r.Value.String }

// scanHandler runs on every scan-number change (spec §4.6
// scan_handler). It always runs serialized on the worker goroutine.
func (c *Controller) scanHandler(evt sensor.Event) {
	ctx := context.Background()
	log := c.log.WithField("scannum", intValue(evt.Reading))
	log.Debug("scan number changed")

	c.unregisterAllLocked()
	c.stopNodes(ctx)
	c.deconfigureNodes(ctx)

	c.setState(StateConfiguringBackends)
	if err := c.configureForCurrentScan(ctx, log); err != nil {
		log.WithError(err).Warn("scan_handler: configuration failed, aborting cycle")
		c.fullStop(ctx)
		return
	}

	nsubscan, err := c.tree.GetValue("nsubscan")
	if err == nil && intValue(nsubscan) > 1 {
		h := c.tree.RegisterListener("subscannum", sensor.StrategyEvent, 0, c.wrap(c.subscanHandler))
		c.subscanHandle = &h
	}

	observing, err := c.tree.GetValue("observing")
	if err != nil {
		log.WithError(err).Warn("scan_handler: cannot read observing flag, aborting cycle")
		c.fullStop(ctx)
		return
	}
	if boolValue(observing) {
		c.observingTrueHandler(sensor.Event{Name: "observing", Reading: observing})
	} else {
		h := c.tree.RegisterListener("observing", sensor.StrategyEvent, 0, c.wrap(c.observingTrueHandler))
		c.observingHandle = &h
		c.setState(StateWaitingStatusChangeToObserve)
	}
}

// configureForCurrentScan resolves the receiver, capture nodes and
// pipeline template for the current sensor snapshot, then issues
// configure to the Backend Interface.
func (c *Controller) configureForCurrentScan(ctx context.Context, log *logrus.Entry) error {
	snap := c.tree.Snapshot()

	receiverReading, ok := snap["receiver"]
	if !ok {
		return fmt.Errorf("controller: no receiver sensor in snapshot")
	}
	receiver := stringValue(receiverReading)

	projectReading := snap["project"]
	project := stringValue(projectReading)

	sourceReading := snap["source-name"]
	tag := parseTag(stringValue(sourceReading))

	rc, err := nodepool.Lookup(c.cfg.Telescope, receiver)
	if err != nil {
		return err
	}
	nodes, err := rc.GetCaptureNodes(ctx)
	if err != nil {
		return fmt.Errorf("controller: resolving capture nodes: %w", err)
	}

	perNode, err := loadAndRender(c.cfg.ConfigRoot, project, receiver, tag, nodes, stringValue(sourceReading))
	if err != nil {
		return err
	}
	doc, warnings := buildConfigureDoc(nodes, perNode)
	for _, w := range warnings {
		log.Warn(w)
	}

	escapedConfig, err := escapeJSON(doc)
	if err != nil {
		return fmt.Errorf("controller: encoding configure document: %w", err)
	}
	escapedSensors, err := escapeJSON(snap)
	if err != nil {
		return fmt.Errorf("controller: encoding sensor snapshot: %w", err)
	}

	if err := c.backends.Configure(ctx, escapedConfig, escapedSensors); err != nil {
		return fmt.Errorf("controller: ubi configure: %w", err)
	}
	return nil
}

// observingTrueHandler fires on an observing-sensor event; it is a
// no-op for false readings (spec §4.6: "if not value: return").
func (c *Controller) observingTrueHandler(evt sensor.Event) {
	if !boolValue(evt.Reading) {
		return
	}
	ctx := context.Background()
	c.setState(StateStartingBackends)

	if c.observingHandle != nil {
		c.tree.Unregister(*c.observingHandle)
		c.observingHandle = nil
	}

	failed := false
	for name, err := range c.backends.Start(ctx) {
		if err != nil {
			c.log.WithField("node", name).WithError(err).Error("start_nodes: node reported failure")
			failed = true
		}
	}
	if failed {
		c.fullStop(ctx)
		return
	}

	h := c.tree.RegisterListener("observing", sensor.StrategyEvent, 0, c.wrap(c.observingFalseHandler))
	c.observingHandle = &h
	c.setState(StateWaitingStatusChangeFromObserve)
}

// observingFalseHandler fires on an observing-sensor event; it is a
// no-op for true readings.
func (c *Controller) observingFalseHandler(evt sensor.Event) {
	if boolValue(evt.Reading) {
		return
	}
	ctx := context.Background()
	c.setState(StateStoppingBackends)

	if c.observingHandle != nil {
		c.tree.Unregister(*c.observingHandle)
		c.observingHandle = nil
	}

	failed := false
	for name, err := range c.backends.Stop(ctx) {
		if err != nil {
			c.log.WithField("node", name).WithError(err).Error("stop_nodes: node reported failure")
			failed = true
		}
	}
	if failed {
		c.fullStop(ctx)
		return
	}
	c.setState(StateIdle)
}

// subscanHandler fires on a sub-scan-number change: it stops the
// current observation, then arms (or immediately dispatches) the
// observe-start handler for the new sub-scan (spec §4.6 Sub-scan
// change).
func (c *Controller) subscanHandler(evt sensor.Event) {
	ctx := context.Background()
	c.stopNodes(ctx)

	nsubscan, err := c.tree.GetValue("nsubscan")
	if err == nil && intValue(evt.Reading) == intValue(nsubscan) && c.subscanHandle != nil {
		c.tree.Unregister(*c.subscanHandle)
		c.subscanHandle = nil
	}

	observing, err := c.tree.GetValue("observing")
	if err == nil && boolValue(observing) {
		c.observingTrueHandler(sensor.Event{Name: "observing", Reading: observing})
		return
	}
	h := c.tree.RegisterListener("observing", sensor.StrategyEvent, 0, c.wrap(c.observingTrueHandler))
	c.observingHandle = &h
	c.setState(StateWaitingStatusChangeToObserve)
}

// waitForIdle is a test helper: it blocks until a no-op job enqueued
// after every currently-queued job has run, guaranteeing prior
// handlers have completed.
func (c *Controller) waitForIdle(timeout time.Duration) {
	done := make(chan struct{})
	select {
	case c.workCh <- func() { close(done) }:
	case <-time.After(timeout):
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
