package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/mpifr-bdr/reynard/internal/metrics"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
)

// Handle identifies a registered listener for later deregistration
// (spec §9 design note: express subscriptions as a handle rather than
// passing function references around).
type Handle struct {
	id int64
}

// Tree is the Sensor Tree: name -> Sensor plus an event bus.
type Tree struct {
	mu      sync.RWMutex
	sensors map[string]*Sensor
	bus     *bus

	periodMu sync.Mutex
	periods  map[int64]chan struct{}
}

// NewTree creates an empty Sensor Tree with the given event-bus
// partition count (concurrency fan-out across distinct sensors).
func NewTree(partitions int) *Tree {
	return &Tree{
		sensors: make(map[string]*Sensor),
		bus:     newBus(partitions),
		periods: make(map[int64]chan struct{}),
	}
}

// AddSensor inserts a sensor; fails if the name collides (spec §4.1).
func (t *Tree) AddSensor(spec Spec) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sensors[spec.Name]; exists {
		return rerrors.InvariantViolation("sensor %q already registered", spec.Name)
	}
	t.sensors[spec.Name] = &Sensor{
		Spec: spec,
		current: Reading{
			Timestamp: time.Now(),
			Status:    StatusUnknown,
			Value:     spec.Default,
		},
	}
	return nil
}

// SetValue atomically updates a sensor and fires event-strategy
// listeners. Status transitions fire even when the value is unchanged.
func (t *Tree) SetValue(name string, value Value, opts ...SetOption) error {
	cfg := setConfig{status: StatusNominal, timestamp: time.Now()}
	for _, o := range opts {
		o(&cfg)
	}

	t.mu.Lock()
	s, ok := t.sensors[name]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("sensor: unknown sensor %q", name)
	}
	s.current = Reading{Timestamp: cfg.timestamp, Status: cfg.status, Value: value}
	reading := s.current
	t.mu.Unlock()

	t.bus.publish(Event{Name: name, Reading: reading})
	metrics.SensorPublishTotal.WithLabelValues(name).Inc()
	return nil
}

// SetOption customises a SetValue call.
type SetOption func(*setConfig)

type setConfig struct {
	status    Status
	timestamp time.Time
}

// WithStatus overrides the status recorded by SetValue.
func WithStatus(s Status) SetOption { return func(c *setConfig) { c.status = s } }

// WithTimestamp overrides the timestamp recorded by SetValue.
func WithTimestamp(ts time.Time) SetOption { return func(c *setConfig) { c.timestamp = ts } }

// GetValue returns (timestamp, status, value) for name. Alias of
// GetReading kept for the two names spec §4.1 uses interchangeably.
func (t *Tree) GetValue(name string) (Reading, error) { return t.GetReading(name) }

// GetReading returns a sensor's current reading without side effects.
func (t *Tree) GetReading(name string) (Reading, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sensors[name]
	if !ok {
		return Reading{}, fmt.Errorf("sensor: unknown sensor %q", name)
	}
	return s.current, nil
}

// Spec returns the declared Spec for a sensor.
func (t *Tree) Spec(name string) (Spec, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sensors[name]
	if !ok {
		return Spec{}, fmt.Errorf("sensor: unknown sensor %q", name)
	}
	return s.Spec, nil
}

// Names returns every registered sensor name.
func (t *Tree) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.sensors))
	for n := range t.sensors {
		names = append(names, n)
	}
	return names
}

// Snapshot returns a name->Reading map for every sensor.
func (t *Tree) Snapshot() map[string]Reading {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Reading, len(t.sensors))
	for n, s := range t.sensors {
		out[n] = s.current
	}
	return out
}

// RegisterListener subscribes handler under strategy for sensor name,
// returning a Handle for later Unregister. Idempotent with respect to
// duplicate (name, handler) pairs is the caller's responsibility per
// spec — Go function values aren't comparable, so this registers a new
// subscription each call; callers that need idempotence should retain
// and reuse the returned Handle instead of re-registering.
func (t *Tree) RegisterListener(name string, strategy Strategy, interval time.Duration, handler Listener) Handle {
	sub := t.bus.subscribe(name, strategy, handler)
	if strategy == StrategyPeriod {
		t.startPeriodTicker(sub, interval, handler)
	}
	metrics.SensorListenersActive.WithLabelValues(name).Inc()
	return Handle{id: sub.handle}
}

func (t *Tree) startPeriodTicker(sub *subscription, interval time.Duration, handler Listener) {
	if interval <= 0 {
		interval = time.Second
	}
	stop := make(chan struct{})
	t.periodMu.Lock()
	t.periods[sub.handle] = stop
	t.periodMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if evt, ok := sub.takeLatest(); ok {
					handler(evt)
				}
			}
		}
	}()
}

// Unregister removes a listener by handle.
func (t *Tree) Unregister(h Handle) {
	if name, ok := t.bus.unsubscribe(h.id); ok {
		metrics.SensorListenersActive.WithLabelValues(name).Dec()
	}
	t.periodMu.Lock()
	if stop, ok := t.periods[h.id]; ok {
		close(stop)
		delete(t.periods, h.id)
	}
	t.periodMu.Unlock()
}

// Close releases the tree's event bus resources.
func (t *Tree) Close() {
	t.periodMu.Lock()
	for _, stop := range t.periods {
		close(stop)
	}
	t.periods = make(map[int64]chan struct{})
	t.periodMu.Unlock()
	t.bus.close()
}
