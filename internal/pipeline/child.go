package pipeline

import (
	"context"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// saltChildName appends a short random suffix to a logical child name
// so concurrent pipeline instances on one host do not collide in the
// container namespace (spec §4.3 Child spawn policy).
func saltChildName(logicalName string) string {
	return logicalName + "-" + uuid.NewString()[:8]
}

// child is a spawned external process handle. The actual container
// launch mechanism (docker/exec invocation of dada_db/dspsr/etc.) is
// out of scope per spec.md §1; Reynard models the child only at its
// interface: name, exit code, PID, and a Wait() that publishes a
// Termination event on completion.
type child struct {
	LogicalName string
	SaltedName  string

	mu      sync.Mutex
	cmd     *exec.Cmd
	pid     int
	running bool
}

func newChild(spec ChildSpec) *child {
	return &child{LogicalName: spec.Name, SaltedName: saltChildName(spec.Name)}
}

// spawn starts the child's process. An empty Cmd (the common case in a
// development build without the external images available) is treated
// as an immediately-running no-op child so the state machine can be
// exercised without real containers.
func (c *child) spawn(ctx context.Context, spec ChildSpec, onExit func(exitCode int)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if spec.Cmd == "" {
		c.running = true
		return nil
	}

	cmd := exec.CommandContext(ctx, spec.Cmd, spec.Args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.running = true

	go func() {
		err := cmd.Wait()
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		onExit(exitCode)
	}()
	return nil
}

// stop terminates the child process if still running.
func (c *child) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil || !c.running {
		return nil
	}
	return c.cmd.Process.Kill()
}

// Status is a snapshot of one child's observable state (spec §4.3
// status(): "per-child {name, status, recent-log-tail, process-table
// snapshot}"). Log-tail/process-table collection is left to the
// caller's environment; the runtime itself only tracks liveness/PID.
type Status struct {
	Name    string
	Running bool
	PID     int
}

func (c *child) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Name: c.SaltedName, Running: c.running, PID: c.pid}
}
