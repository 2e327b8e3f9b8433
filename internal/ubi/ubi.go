// Package ubi implements the Backend Interface (UBI, spec §4.5): the
// central coordinator fanning commands out to a named set of Backend
// Node clients.
package ubi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/metrics"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// configureTimeout and healthTimeout are the per-child RPC timeouts
// of spec §5 (30s configure, 2s health).
const (
	configureTimeout = 30 * time.Second
	healthTimeout    = 2 * time.Second
	defaultTimeout   = 20 * time.Second
)

// node is one named child connection.
type node struct {
	name   string
	addr   string
	client *katcp.Client
}

// UBI fans commands out to its registered Backend Node clients,
// grounded on the corpus's name-indexed client-lifecycle map
// (plugins/client/api.Client's Start/Close pair, generalized from one
// shared plugin instance to many named node connections).
type UBI struct {
	mu    sync.RWMutex
	nodes map[string]*node
	log   *logrus.Entry
}

// New constructs an empty UBI.
func New() *UBI {
	return &UBI{nodes: make(map[string]*node), log: log.Component("ubi")}
}

// AddNode dials and registers a named Backend Node (spec.md §6:
// node-add <name> <ip> <port>).
func (u *UBI) AddNode(ctx context.Context, name, ip string, port int) error {
	u.mu.Lock()
	if _, exists := u.nodes[name]; exists {
		u.mu.Unlock()
		return rerrors.InvariantViolation("ubi: node %q already registered", name)
	}
	u.mu.Unlock()

	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	c := katcp.NewClient(addr)
	if err := c.Dial(ctx); err != nil {
		return rerrors.TransportError(name, err)
	}

	u.mu.Lock()
	u.nodes[name] = &node{name: name, addr: addr, client: c}
	u.mu.Unlock()
	return nil
}

// Address returns the bound (ip:port) address of a named node, for the
// CAM server's backend-address command.
func (u *UBI) Address(name string) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	n, ok := u.nodes[name]
	if !ok {
		return "", false
	}
	return n.addr, true
}

// RemoveNode closes and deregisters a node.
func (u *UBI) RemoveNode(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	n, ok := u.nodes[name]
	if !ok {
		return rerrors.InvariantViolation("ubi: unknown node %q", name)
	}
	_ = n.client.Close()
	delete(u.nodes, name)
	return nil
}

// ListNodes returns every registered node's name.
func (u *UBI) ListNodes() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, 0, len(u.nodes))
	for name := range u.nodes {
		names = append(names, name)
	}
	return names
}

func (u *UBI) snapshot() map[string]*node {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]*node, len(u.nodes))
	for k, v := range u.nodes {
		out[k] = v
	}
	return out
}

// fanOutRequired runs verb against every node with timeout, one
// goroutine per node under errgroup.WithContext (no concurrency limit
// is set): any child failure fails the
// whole call (used by Configure, where spec §4.4/§4.5 require the
// entire call to fail on a per-node RPC error).
func (u *UBI) fanOutRequired(ctx context.Context, verb string, timeout time.Duration, args ...string) error {
	nodes := u.snapshot()
	g, gctx := errgroup.WithContext(ctx)
	for name, n := range nodes {
		name, n := name, n
		g.Go(func() error {
			start := time.Now()
			reqCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			res, err := n.client.Request(reqCtx, verb, args...)
			metrics.FanOutLatencySeconds.WithLabelValues(verb).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.FanOutFailuresTotal.WithLabelValues(verb, name).Inc()
				return rerrors.TransportError(name, err)
			}
			if !res.Ok {
				metrics.FanOutFailuresTotal.WithLabelValues(verb, name).Inc()
				return fmt.Errorf("ubi: node %s: %s failed: %v", name, verb, res.Args)
			}
			return nil
		})
	}
	return g.Wait()
}

// fanOutBestEffort runs verb against every node, collecting
// per-node errors without failing the aggregate call (used by
// Start/Stop/Deconfigure, which the command table always replies ok
// to once the fan-out has completed).
func (u *UBI) fanOutBestEffort(ctx context.Context, verb string, timeout time.Duration, args ...string) map[string]error {
	nodes := u.snapshot()
	results := make(map[string]error, len(nodes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, n := range nodes {
		wg.Add(1)
		go func(name string, n *node) {
			defer wg.Done()
			start := time.Now()
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			res, err := n.client.Request(reqCtx, verb, args...)
			metrics.FanOutLatencySeconds.WithLabelValues(verb).Observe(time.Since(start).Seconds())
			if err == nil && !res.Ok {
				err = fmt.Errorf("%v", res.Args)
			}
			if err != nil {
				metrics.FanOutFailuresTotal.WithLabelValues(verb, name).Inc()
			}
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, n)
	}
	wg.Wait()
	return results
}

// Configure fans configure(config, sensors) out to every node with a
// 30s per-child timeout (spec §5); any failure fails the whole call.
func (u *UBI) Configure(ctx context.Context, escapedConfig, escapedSensors string) error {
	return u.fanOutRequired(ctx, "configure", configureTimeout, escapedConfig, escapedSensors)
}

// Start fans start out to every node, best-effort.
func (u *UBI) Start(ctx context.Context) map[string]error {
	return u.fanOutBestEffort(ctx, "start", defaultTimeout)
}

// Stop fans stop out to every node, best-effort.
func (u *UBI) Stop(ctx context.Context) map[string]error {
	return u.fanOutBestEffort(ctx, "stop", defaultTimeout)
}

// Deconfigure fans deconfigure out to every node, best-effort.
func (u *UBI) Deconfigure(ctx context.Context) map[string]error {
	return u.fanOutBestEffort(ctx, "deconfigure", defaultTimeout)
}

// Health is a single node's probed health.
type Health int

const (
	HealthOK Health = iota
	HealthDegraded
	HealthFail
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthDegraded:
		return "degraded"
	default:
		return "fail"
	}
}

// DeviceStatus probes every node's status with a 2s timeout and
// aggregates tri-valued health: one failure degrades the aggregate,
// two or more fail it (spec §9 Open Question, resolved: "one failure
// → degraded, two or more → fail").
func (u *UBI) DeviceStatus(ctx context.Context) Health {
	results := u.fanOutBestEffort(ctx, "status", healthTimeout)
	failures := 0
	for _, err := range results {
		if err != nil {
			failures++
		}
	}
	switch {
	case failures >= 2:
		return HealthFail
	case failures == 1:
		return HealthDegraded
	default:
		return HealthOK
	}
}
