package katcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a long-lived control-plane connection to a KATCP server,
// matching the corpus's "named child client with a persistent
// connection" shape (plugins/client in the teacher).
type Client struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Scanner
}

// NewClient returns an unconnected Client bound to addr.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Dial establishes the connection. Re-dialling an already-connected
// Client first closes the stale connection.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("katcp: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewScanner(conn)
	c.reader.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client currently holds a live socket.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Result is the outcome of a Request round-trip: the informs observed
// before the reply, whether the reply status was "ok", and the reply's
// unescaped arguments.
type Result struct {
	Informs []Message
	Ok      bool
	Args    []string
}

// Request sends one request and blocks until the matching reply or ctx
// expiry. It is not safe to call concurrently on the same Client — a
// caller that needs concurrent round-trips should hold one Client per
// goroutine, as the UBI fan-out does (one Client per node).
func (c *Client) Request(ctx context.Context, verb string, args ...string) (Result, error) {
	c.mu.Lock()
	conn := c.conn
	reader := c.reader
	c.mu.Unlock()
	if conn == nil {
		return Result{}, fmt.Errorf("katcp: client for %s is not connected", c.addr)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	if _, err := fmt.Fprintf(conn, "%s\n", NewRequest(verb, args...).Render()); err != nil {
		return Result{}, fmt.Errorf("katcp: write request: %w", err)
	}

	var res Result
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if !reader.Scan() {
			if err := reader.Err(); err != nil {
				return Result{}, fmt.Errorf("katcp: read reply: %w", err)
			}
			return Result{}, fmt.Errorf("katcp: connection closed before reply")
		}
		msg, ok := ParseLine(reader.Text())
		if !ok || msg.Verb != verb {
			continue
		}
		switch msg.Type {
		case TypeInform:
			res.Informs = append(res.Informs, Message{Type: msg.Type, Verb: msg.Verb, Args: msg.UnescapedArgs()})
		case TypeReply:
			args := msg.UnescapedArgs()
			if len(args) == 0 {
				return Result{}, fmt.Errorf("katcp: malformed reply to %s", verb)
			}
			res.Ok = args[0] == Ok
			res.Args = args[1:]
			return res, nil
		}
	}
}
