package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/metrics"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/mpifr-bdr/reynard/internal/sensor"
	"github.com/sirupsen/logrus"
)

// Instance is one Pipeline Instance: the central state machine of
// spec §4.3, serialized by a single per-instance lock held for a
// transition's entire duration including all child interactions —
// grounded on the corpus's internal/task.Task Start/Stop rollback
// ordering and internal/plugin.Manager's state-enum/timeout shape,
// generalized from network-reporter lifecycle to spawned-child
// lifecycle.
type Instance struct {
	ID         string
	TypeName   string
	descriptor Descriptor

	log *logrus.Entry

	mu       sync.Mutex
	state    State
	children map[string]*child // logical name -> child
	pending  []ChildSpec

	standdown    atomic.Bool
	watchdogStop chan struct{}
	watchdogs    []*watchdog

	callbacksMu sync.Mutex
	callbacks   []func(State)
}

// New constructs an idle Instance of the named pipeline type.
func New(id, typeName string) (*Instance, error) {
	d, err := Lookup(typeName)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		ID:         id,
		TypeName:   typeName,
		descriptor: d,
		state:      StateIdle,
		children:   make(map[string]*child),
		log:        log.Component("pipeline").WithField("pipeline", id),
	}
	return inst, nil
}

// OnStateChange registers a callback fired (outside the instance
// lock) on every state transition (spec §4.3: "State changes are
// announced via a registered callback list").
func (p *Instance) OnStateChange(cb func(State)) {
	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

func (p *Instance) announce(s State) {
	p.callbacksMu.Lock()
	cbs := append([]func(State)(nil), p.callbacks...)
	p.callbacksMu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// setState must be called with p.mu held.
func (p *Instance) setState(s State) {
	from := p.state
	p.state = s
	p.log.WithField("state", s.String()).Debug("pipeline state changed")
	metrics.PipelineState.WithLabelValues("", p.ID).Set(float64(s))
	metrics.PipelineTransitionsTotal.WithLabelValues("", p.ID, from.String(), s.String()).Inc()
	go p.announce(s)
}

// State returns the current state.
func (p *Instance) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Configure validates the required sensors are present and resolves
// the descriptor's child specs (idle --configure--> configuring --ok--> ready).
func (p *Instance) Configure(_ context.Context, config map[string]any, sensors map[string]sensor.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return rerrors.InvariantViolation("pipeline %s: configure called in state %s", p.ID, p.state)
	}
	p.setState(StateConfiguring)

	for _, name := range p.descriptor.RequiredSensors {
		if _, ok := sensors[name]; !ok {
			p.setState(StateFailed)
			return rerrors.PipelineFailure(p.ID, "configure", fmt.Errorf("missing required sensor %q", name))
		}
	}

	specs, err := p.descriptor.NewChildren(config)
	if err != nil {
		p.setState(StateFailed)
		return rerrors.PipelineFailure(p.ID, "configure", err)
	}
	p.pending = specs
	p.setState(StateReady)
	return nil
}

// Start spawns the configured children (ready --start--> starting
// --ok--> running / --err--> failed), registering a watchdog for each
// child before issuing its spawn (spec §4.3 Watchdogs).
func (p *Instance) Start(ctx context.Context, _ map[string]sensor.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateReady {
		return rerrors.InvariantViolation("pipeline %s: start called in state %s", p.ID, p.state)
	}
	p.setState(StateStarting)

	p.standdown.Store(false)
	p.watchdogStop = make(chan struct{})

	started := make([]*child, 0, len(p.pending))
	for _, spec := range p.pending {
		c := newChild(spec)
		wd := newWatchdog(c.SaltedName, spec.Persistent, &p.standdown, p.onChildTerminate)
		p.watchdogs = append(p.watchdogs, wd)
		go wd.run(globalSupervisor.registerChild(p.ID, c.SaltedName), p.watchdogStop)

		if err := c.spawn(ctx, spec, func(exitCode int) {
			globalSupervisor.publish(p.ID, Termination{ChildName: c.SaltedName, ExitCode: exitCode, Type: "die"})
		}); err != nil {
			for _, sc := range started {
				_ = sc.stop()
			}
			p.clearWatchdogsLocked()
			p.setState(StateFailed)
			return rerrors.PipelineFailure(p.ID, "start", err)
		}
		p.children[c.LogicalName] = c
		started = append(started, c)
	}

	p.setState(StateRunning)
	return nil
}

// onChildTerminate is the watchdog callback (spec §4.3): a persistent
// watchdog or non-zero exit code fails the pipeline; otherwise it
// returns to ready.
func (p *Instance) onChildTerminate(exitCode int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return
	}
	p.log.WithField("exit_code", exitCode).WithField("failed", failed).Warn("pipeline child terminated")
	p.doStopLocked(failed)
}

// Stop drives running --stop--> stopping --ok--> ready (or failed when
// failed is true), and failed --stop--> stopping --ok--> failed.
func (p *Instance) Stop(_ context.Context, failed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning && p.state != StateFailed {
		return rerrors.InvariantViolation("pipeline %s: stop called in state %s", p.ID, p.state)
	}
	if p.state == StateFailed {
		failed = true
	}
	p.doStopLocked(failed)
	return nil
}

// doStopLocked must be called with p.mu held.
func (p *Instance) doStopLocked(failed bool) {
	p.setState(StateStopping)

	for _, c := range p.children {
		if err := c.stop(); err != nil {
			p.log.WithError(err).Warn("error stopping child")
		}
	}
	p.clearWatchdogsLocked()
	p.children = make(map[string]*child)

	if failed {
		p.setState(StateFailed)
	} else {
		p.setState(StateReady)
	}
}

// clearWatchdogsLocked sets the standdown latch and closes the stop
// channel so every watchdog exits within bounded time, then clears the
// watchdog set (spec §4.3: "the standdown latch is set and the
// watchdog set cleared"), dropping each watchdog's dedicated
// termination channel from the supervisor so a future configure/start
// cycle's freshly-salted child names don't accumulate stale entries.
func (p *Instance) clearWatchdogsLocked() {
	p.standdown.Store(true)
	if p.watchdogStop != nil {
		close(p.watchdogStop)
		p.watchdogStop = nil
	}
	for _, wd := range p.watchdogs {
		<-wd.done
		globalSupervisor.unregisterChild(p.ID, wd.childName)
	}
	p.watchdogs = nil
}

// Deconfigure drives ready --deconfigure--> deconfiguring --ok--> idle.
func (p *Instance) Deconfigure(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateReady {
		return rerrors.InvariantViolation("pipeline %s: deconfigure called in state %s", p.ID, p.state)
	}
	p.setState(StateDeconfiguring)
	p.pending = nil
	p.setState(StateIdle)
	return nil
}

// Reset forces the instance back to idle from any state (spec §4.3:
// "any --reset--> idle").
func (p *Instance) Reset(_ context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.children {
		_ = c.stop()
	}
	p.clearWatchdogsLocked()
	p.children = make(map[string]*child)
	p.pending = nil
	p.setState(StateIdle)
}

// Close unregisters the instance's termination channel from the
// global supervisor. Call once the instance is permanently discarded.
func (p *Instance) Close() {
	globalSupervisor.unregister(p.ID)
}

// Get resolves a logical child name to its handle, if currently
// spawned (spec §4.3: "get(name)").
func (p *Instance) Get(logicalName string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[logicalName]
	if !ok {
		return Status{}, false
	}
	return c.status(), true
}

// GetName resolves a logical child name to its salted on-wire name
// (spec §4.3: "get_name(name)").
func (p *Instance) GetName(logicalName string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[logicalName]
	if !ok {
		return "", false
	}
	return c.SaltedName, true
}

// InstanceStatus is the snapshot returned by Status (spec §4.3
// status()): current state plus, when running, per-child status.
type InstanceStatus struct {
	State    State
	Children []Status
}

// Status returns the instance's current state and, if running,
// per-child status. Failure to collect child status is non-fatal —
// the returned State remains authoritative (spec §4.3).
func (p *Instance) Status() InstanceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := InstanceStatus{State: p.state}
	if p.state == StateRunning {
		for _, c := range p.children {
			out.Children = append(out.Children, c.status())
		}
	}
	return out
}
