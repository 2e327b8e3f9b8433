// Package rerrors defines Reynard's error taxonomy (spec §7): sentinel
// errors wrapped with fmt.Errorf("%w", ...) at the point of failure, the
// same plain-stdlib wrapping style the corpus uses throughout
// internal/task and internal/daemon — no third-party errors package is
// wired in, since the corpus never reaches for one either.
package rerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors, wrapped by the constructors below so callers can
// match the failure kind with errors.Is.
var (
	// ErrConfig is a missing template or malformed JSON. Never retried.
	ErrConfig = errors.New("config error")
	// ErrNodeUnavailable is an allocation failure.
	ErrNodeUnavailable = errors.New("node unavailable")
	// ErrTransport is an RPC timeout or dropped connection.
	ErrTransport = errors.New("transport error")
	// ErrPipelineFailure is a state-machine transition that could not
	// complete.
	ErrPipelineFailure = errors.New("pipeline failure")
	// ErrInvariantViolation is a caller-visible programming error:
	// double-configure, duplicate name, unknown receiver.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ConfigError wraps ErrConfig with context.
func ConfigError(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, a...)...)
}

// NodeUnavailable reports an allocation shortfall (spec §8 property 5).
type NodeUnavailableError struct {
	Requested int
	Available int
}

func (e *NodeUnavailableError) Error() string {
	return fmt.Sprintf("node unavailable: requested %d, available %d", e.Requested, e.Available)
}

func (e *NodeUnavailableError) Unwrap() error { return ErrNodeUnavailable }

// NewNodeUnavailable builds a NodeUnavailableError.
func NewNodeUnavailable(requested, available int) error {
	return &NodeUnavailableError{Requested: requested, Available: available}
}

// TransportError wraps ErrTransport with the remote name/address.
func TransportError(target string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, target, err)
}

// PipelineFailure wraps ErrPipelineFailure with the offending transition.
func PipelineFailure(name, transition string, err error) error {
	return fmt.Errorf("%w: pipeline %s: %s: %v", ErrPipelineFailure, name, transition, err)
}

// InvariantViolation wraps ErrInvariantViolation with a description.
func InvariantViolation(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, a...)...)
}
