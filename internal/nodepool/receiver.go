package nodepool

import (
	"context"
	"strings"
	"sync"

	"github.com/mpifr-bdr/reynard/internal/rerrors"
)

// ReceiverClass maps a configured telescope receiver to the nodes it
// captures on, plus optional firmware-level configure/trigger/
// deconfigure hooks (spec §3: "optional configure(), trigger(),
// deconfigure()").
type ReceiverClass interface {
	GetCaptureNodes(ctx context.Context) ([]Node, error)
}

// Configurable is implemented by receivers whose capture hardware
// needs a firmware push before use.
type Configurable interface {
	Configure(ctx context.Context) error
}

// Triggerable is implemented by receivers that need an explicit
// firmware trigger pulse once capture is armed.
type Triggerable interface {
	Trigger(ctx context.Context) error
}

// Deconfigurable is implemented by receivers whose firmware needs to
// be torn down after use.
type Deconfigurable interface {
	Deconfigure(ctx context.Context) error
}

// Factory constructs a ReceiverClass instance on demand.
type Factory func() ReceiverClass

type registryKey struct {
	telescope string
	receiver  string
}

// registry is the process-wide (telescope, receiver) to Factory
// mapping, populated with an explicit Register call at service start —
// the same dynamic-registry pattern as the pipeline-type and
// projection registries, generalized here to a two-part key.
var (
	registryMu sync.RWMutex
	registry   = make(map[registryKey]Factory)
)

func normalize(telescope, receiver string) registryKey {
	return registryKey{telescope: strings.ToLower(telescope), receiver: strings.ToLower(receiver)}
}

// Register adds a receiver factory under (telescope, receiver).
func Register(telescope, receiver string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(telescope, receiver)] = factory
}

// Lookup constructs the ReceiverClass registered for (telescope,
// receiver). Unknown combinations are an invariant violation, since
// the Observation Controller only calls Lookup for receivers the
// current sensor snapshot claims are active.
func Lookup(telescope, receiver string) (ReceiverClass, error) {
	registryMu.RLock()
	factory, ok := registry[normalize(telescope, receiver)]
	registryMu.RUnlock()
	if !ok {
		return nil, rerrors.InvariantViolation("nodepool: no receiver %q registered for telescope %q", receiver, telescope)
	}
	return factory(), nil
}

// Names returns every registered (telescope, receiver) pair, telescope
// first, for diagnostics.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k.telescope+"/"+k.receiver)
	}
	return out
}
