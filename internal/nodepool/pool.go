// Package nodepool implements the Node Pool and Receiver Registry
// (spec §4.7): priority-ordered allocation of compute nodes to
// subarrays/products, and a name-indexed mapping from
// (telescope, receiver) to capture-node-selection logic.
package nodepool

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/mpifr-bdr/reynard/internal/metrics"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
)

// Node is one compute node's identity and priority. Lower Priority
// values are allocated first ("0 is highest priority"), matching the
// pool's source manifest convention.
type Node struct {
	Hostname   string   `json:"host"`
	Port       int      `json:"port"`
	Interfaces []string `json:"nics"`
	Priority   int      `json:"priority"`
}

// manifestEntry is the on-disk shape of one node pool manifest record
// (<root>/nodes/<node-set>.json); Priority defaults to 3 when absent,
// matching the lowest-priority default of the manifest's source format.
type manifestEntry struct {
	Hostname   string   `json:"host"`
	Port       int      `json:"port"`
	Interfaces []string `json:"nics"`
	Priority   *int     `json:"priority"`
}

const defaultPriority = 3

// Pool partitions a fixed set of Nodes into free and allocated,
// guarded by a single pool-level lock (spec §5: "Node Pool allocation
// table: guarded by a pool-level lock").
type Pool struct {
	mu        sync.Mutex
	all       map[string]Node
	allocated map[string]struct{}
}

// New constructs a Pool whose universe is exactly nodes.
func New(nodes []Node) *Pool {
	p := &Pool{
		all:       make(map[string]Node, len(nodes)),
		allocated: make(map[string]struct{}),
	}
	for _, n := range nodes {
		p.all[n.Hostname] = n
	}
	return p
}

// FromManifest builds a Pool from a JSON node-set manifest (spec §6:
// <root>/nodes/<node-set>.json).
func FromManifest(data []byte) (*Pool, error) {
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, rerrors.ConfigError("nodepool: bad manifest: %v", err)
	}
	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		priority := defaultPriority
		if e.Priority != nil {
			priority = *e.Priority
		}
		nodes = append(nodes, Node{
			Hostname:   e.Hostname,
			Port:       e.Port,
			Interfaces: e.Interfaces,
			Priority:   priority,
		})
	}
	return New(nodes), nil
}

// Allocate pops the count highest-priority (lowest Priority value)
// free nodes and marks them allocated. It fails atomically — no nodes
// are allocated — if fewer than count are free.
func (p *Pool) Allocate(count int) ([]Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := make([]Node, 0, len(p.all))
	for host, n := range p.all {
		if _, used := p.allocated[host]; !used {
			free = append(free, n)
		}
	}
	if len(free) < count {
		return nil, rerrors.NewNodeUnavailable(count, len(free))
	}

	sort.Slice(free, func(i, j int) bool {
		if free[i].Priority != free[j].Priority {
			return free[i].Priority < free[j].Priority
		}
		return free[i].Hostname < free[j].Hostname
	})

	picked := free[:count]
	for _, n := range picked {
		p.allocated[n.Hostname] = struct{}{}
	}
	metrics.NodePoolAllocated.Set(float64(len(p.allocated)))
	return picked, nil
}

// Deallocate returns nodes to the free set. Deallocating a node that
// is not currently allocated is an invariant violation.
func (p *Pool) Deallocate(nodes []Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		if _, ok := p.allocated[n.Hostname]; !ok {
			return rerrors.InvariantViolation("nodepool: node %q is not allocated", n.Hostname)
		}
	}
	for _, n := range nodes {
		delete(p.allocated, n.Hostname)
	}
	metrics.NodePoolAllocated.Set(float64(len(p.allocated)))
	return nil
}

// Reset empties the allocated set, returning every node to free.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocated = make(map[string]struct{})
	metrics.NodePoolAllocated.Set(0)
}

// Available returns every currently-free node.
func (p *Pool) Available() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Node, 0, len(p.all))
	for host, n := range p.all {
		if _, used := p.allocated[host]; !used {
			out = append(out, n)
		}
	}
	return out
}

// Used returns every currently-allocated node.
func (p *Pool) Used() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Node, 0, len(p.allocated))
	for host := range p.allocated {
		out = append(out, p.all[host])
	}
	return out
}

// All returns every node in the pool's universe, free or allocated.
func (p *Pool) All() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Node, 0, len(p.all))
	for _, n := range p.all {
		out = append(out, n)
	}
	return out
}

// ByInterface returns the first node whose Interfaces list contains
// ip, matching the manifest's capture-NIC lookup used by receiver
// get_capture_nodes implementations.
func (p *Pool) ByInterface(ip string) (Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.all {
		for _, nic := range n.Interfaces {
			if nic == ip {
				return n, true
			}
		}
	}
	return Node{}, false
}
