package katcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the per-request timeout applied when a handler has
// not registered an override (spec §5: 20s default).
const DefaultTimeout = 20 * time.Second

// Reply is what a Handler hands back to the dispatch loop: zero or more
// informs, followed by exactly one reply.
type Reply struct {
	Informs []Message
	Status  string
	Args    []string
}

// Failf builds a failing Reply with a formatted message as its sole arg.
func Failf(format string, a ...any) Reply {
	return Reply{Status: Fail, Args: []string{fmt.Sprintf(format, a...)}}
}

// Okay builds a successful Reply.
func Okay(args ...string) Reply {
	return Reply{Status: Ok, Args: args}
}

// Handler handles one request's unescaped arguments and returns its
// reply. A Handler that needs to emit informs appends them to
// Reply.Informs; the dispatch loop writes them before the reply line.
type Handler func(ctx context.Context, args []string) Reply

// Dispatcher maps verbs to Handlers, populated with an explicit
// Register call at service-start (the corpus's dynamic-registry
// idiom), and a per-verb timeout table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeouts map[string]time.Duration
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		timeouts: make(map[string]time.Duration),
	}
}

// Register adds a verb handler. Re-registering the same verb replaces
// the previous handler; a service builds its verb table once at start.
func (d *Dispatcher) Register(verb string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[verb] = h
}

// SetTimeout overrides the per-request timeout for a verb.
func (d *Dispatcher) SetTimeout(verb string, timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeouts[verb] = timeout
}

func (d *Dispatcher) lookup(verb string) (Handler, time.Duration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[verb]
	if !ok {
		return nil, 0, false
	}
	timeout := d.timeouts[verb]
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return h, timeout, true
}

// Server accepts KATCP connections and dispatches each request line to
// the Dispatcher's verb table, one connection-serving goroutine per
// client, mirroring the teacher's accept-loop/per-conn-goroutine shape.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	log        *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to addr, dispatching through d.
func NewServer(addr string, d *Dispatcher, log *logrus.Entry) *Server {
	return &Server{
		addr:       addr,
		dispatcher: d,
		log:        log,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start begins accepting connections; it returns once the listener is
// bound, and serves in a background goroutine until ctx is cancelled or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("katcp: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	go s.acceptLoop(ctx)
	s.log.WithField("addr", ln.Addr().String()).Info("katcp server listening")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Warn("katcp accept error")
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		msg, ok := ParseLine(scanner.Text())
		if !ok || msg.Type != TypeRequest {
			continue
		}
		s.handle(ctx, conn, msg)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, msg Message) {
	handler, timeout, ok := s.dispatcher.lookup(msg.Verb)
	if !ok {
		writeLine(conn, NewReply(msg.Verb, Fail, "unknown request"))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Reply, 1)
	go func() {
		done <- handler(reqCtx, msg.UnescapedArgs())
	}()

	select {
	case reply := <-done:
		for _, inf := range reply.Informs {
			inf.Verb = msg.Verb
			inf.Type = TypeInform
			writeLine(conn, inf)
		}
		writeLine(conn, NewReply(msg.Verb, reply.Status, reply.Args...))
	case <-reqCtx.Done():
		writeLine(conn, NewReply(msg.Verb, Fail, "timed out"))
	}
}

func writeLine(conn net.Conn, msg Message) {
	fmt.Fprintf(conn, "%s\n", msg.Render())
}

// Addr returns the listener's bound address, or nil if Start has not
// been called yet. Useful for tests and for logging the resolved port
// when addr was given as "host:0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all live connections; it is idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
