// Package cliutil implements the admin-channel client shared by every
// Reynard binary's status/stop/reload subcommands, grounded on the
// teacher's command.UDSClient (dial, send one request, read one
// reply) but riding the KATCP transport instead of JSON-RPC over a
// Unix socket, per spec.md §6.1's shared control-plane admin channel.
package cliutil

import (
	"context"
	"fmt"
	"time"

	"github.com/mpifr-bdr/reynard/internal/katcp"
)

// DefaultTimeout bounds one admin round-trip.
const DefaultTimeout = 10 * time.Second

// AdminClient sends status/stop/reload requests to a running daemon's
// control-plane listener.
type AdminClient struct {
	addr    string
	timeout time.Duration
}

// NewAdminClient builds a client bound to a daemon's KATCP listen
// address (its Control.Listen config value).
func NewAdminClient(addr string, timeout time.Duration) *AdminClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AdminClient{addr: addr, timeout: timeout}
}

// call dials, issues one request, and closes the connection — mirrors
// UDSClient.Call's one-shot-connection idiom rather than holding a
// persistent client, since admin commands are infrequent operator
// actions, not a hot path.
func (c *AdminClient) call(ctx context.Context, verb string, args ...string) (katcp.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := katcp.NewClient(c.addr)
	if err := client.Dial(ctx); err != nil {
		return katcp.Result{}, fmt.Errorf("cliutil: connect to %s: %w", c.addr, err)
	}
	defer client.Close()

	return client.Request(ctx, verb, args...)
}

// Status requests the daemon's device-status.
func (c *AdminClient) Status(ctx context.Context) (string, error) {
	res, err := c.call(ctx, "device-status")
	if err != nil {
		return "", err
	}
	if !res.Ok || len(res.Args) == 0 {
		return "", fmt.Errorf("cliutil: device-status failed: %v", res.Args)
	}
	return res.Args[0], nil
}

// Stop requests graceful shutdown of the running daemon.
func (c *AdminClient) Stop(ctx context.Context) error {
	res, err := c.call(ctx, "daemon-stop")
	if err != nil {
		return err
	}
	if !res.Ok {
		return fmt.Errorf("cliutil: daemon-stop failed: %v", res.Args)
	}
	return nil
}

// Reload requests a configuration reload of the running daemon.
func (c *AdminClient) Reload(ctx context.Context) error {
	res, err := c.call(ctx, "daemon-reload")
	if err != nil {
		return err
	}
	if !res.Ok {
		return fmt.Errorf("cliutil: daemon-reload failed: %v", res.Args)
	}
	return nil
}
