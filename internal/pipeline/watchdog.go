package pipeline

import (
	"sync"
	"sync/atomic"
)

// Termination carries a child-termination event (spec §4.3): the
// salted child name, its exit code, and the always-"die" type used by
// the container runtime being modeled.
type Termination struct {
	ChildName string
	ExitCode  int
	Type      string
}

// supervisor demultiplexes one global child-termination event stream
// to per-child channels, keyed by (pipelineID, childName) — the
// corpus's partitioned event-bus shape (internal/eventbus.InMemoryEventBus)
// generalized from topic keys to individual spawned children, since
// spec §4.3/§9 calls for exactly this: "a single subscriber process
// that demultiplexes events to per-pipeline channels". Partitioning
// one level further, down to the child rather than the pipeline, is
// required so a Go channel receive can never hand child A's
// termination to child B's or C's watchdog goroutine: with one shared
// per-pipeline channel, whichever watchdog happened to be parked on
// the receive got the value regardless of which child it named, and a
// mismatched watchdog silently discarded it — the event was gone for
// good, not merely misrouted.
type supervisor struct {
	mu       sync.RWMutex
	channels map[string]map[string]chan Termination // pipelineID -> childName -> chan
}

func newSupervisor() *supervisor {
	return &supervisor{channels: make(map[string]map[string]chan Termination)}
}

// registerChild creates (or returns) the dedicated channel for one
// pipeline's child.
func (s *supervisor) registerChild(pipelineID, childName string) chan Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	children, ok := s.channels[pipelineID]
	if !ok {
		children = make(map[string]chan Termination)
		s.channels[pipelineID] = children
	}
	ch, ok := children[childName]
	if !ok {
		ch = make(chan Termination, 1)
		children[childName] = ch
	}
	return ch
}

// unregisterChild drops one child's channel once its watchdog has
// exited, so repeated configure/start/stop cycles — each of which
// salts a fresh, never-repeating child name — don't leak an entry per
// cycle. The channel is only removed from the map, never closed: a
// publish that already captured the channel reference before this
// runs must still be able to send to it without racing a close.
func (s *supervisor) unregisterChild(pipelineID, childName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	children, ok := s.channels[pipelineID]
	if !ok {
		return
	}
	delete(children, childName)
	if len(children) == 0 {
		delete(s.channels, pipelineID)
	}
}

// unregister drops every channel registered for pipelineID.
func (s *supervisor) unregister(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, pipelineID)
}

// publish delivers a termination event to its child's dedicated
// channel. A full channel drops the event rather than blocking the
// global publisher — watchdogs are expected to drain promptly.
func (s *supervisor) publish(pipelineID string, evt Termination) {
	s.mu.RLock()
	ch, ok := s.channels[pipelineID][evt.ChildName]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- evt:
	default:
	}
}

// globalSupervisor is the process-wide demultiplexer every Instance
// registers with.
var globalSupervisor = newSupervisor()

// watchdog supervises one spawned child: it watches its dedicated
// termination channel, honors the per-pipeline standdown latch, and
// reports persistent-or-nonzero failures up via onTerminate.
type watchdog struct {
	childName   string
	persistent  bool
	standdown   *atomic.Bool
	onTerminate func(exitCode int, persistentOrFailed bool)

	done chan struct{}
}

func newWatchdog(childName string, persistent bool, standdown *atomic.Bool, onTerminate func(int, bool)) *watchdog {
	return &watchdog{
		childName:   childName,
		persistent:  persistent,
		standdown:   standdown,
		onTerminate: onTerminate,
		done:        make(chan struct{}),
	}
}

// run reads from ch, its dedicated channel, until a termination
// arrives or stopCh is closed (the standdown latch being set). It
// always exits in bounded time (spec §4.3: "watchdogs must exit within
// bounded time") since stopCh is closed synchronously by Stop before
// it clears the watchdog set.
func (w *watchdog) run(ch <-chan Termination, stopCh <-chan struct{}) {
	defer close(w.done)
	select {
	case <-stopCh:
		return
	case evt := <-ch:
		if w.standdown.Load() {
			return
		}
		// Dispatch asynchronously: onTerminate takes the instance
		// lock and waits for every watchdog's done channel,
		// including this one, so it must not be called inline.
		failed := w.persistent || evt.ExitCode != 0
		go w.onTerminate(evt.ExitCode, failed)
		return
	}
}
