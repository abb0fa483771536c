// Package eventchain provides the event-driven core of event-chain Monte
// Carlo runs.
package eventchain

import (
	"errors"
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
)

// Sentinel errors for run control.
var (
	// ErrEndOfRun is returned by a mediation callback to end the run.
	// Run treats it as clean termination, finalizes the outputs, and
	// reports success.
	ErrEndOfRun = errors.New("end of run")

	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNotResender indicates a handler returned an unconfirmed event but
	// does not implement Resender, so the race cannot continue.
	ErrNotResender = errors.New("unconfirmed event from a handler without resend support")
)

// ConfigurationError reports an inconsistent mediator setup: a handler kind
// without the argument constructor its arity demands, an output name nothing
// is registered under, a missing snapshot store.
type ConfigurationError struct {
	// Component names the part of the setup that is inconsistent.
	Component string
	// Reason describes the inconsistency.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration of %s: %s", e.Component, e.Reason)
}

// AmbiguousDispatchError reports a dispatch kind bound twice, counting the
// built-in bindings. Every kind resolves to exactly one Dispatch.
type AmbiguousDispatchError struct {
	// Kind is the dispatch kind with more than one binding.
	Kind string
}

// Error implements the error interface.
func (e *AmbiguousDispatchError) Error() string {
	return fmt.Sprintf("dispatch kind %q bound twice", e.Kind)
}

// HandlerError wraps an error with event-handler context.
type HandlerError struct {
	// Handler is the pooled handler's stable name (tagger tag and slot).
	Handler string
	// Kind is the handler's dispatch kind.
	Kind string
	// Op is the phase that failed ("arguments", "resend", "mediate").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s (%s): %s: %v", e.Handler, e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// SchedulerError wraps scheduler failures with the operation that hit them.
// Every one of them is a kernel invariant violation; the run cannot
// continue.
type SchedulerError struct {
	// Op is the scheduler operation that failed ("push", "peek", "cancel",
	// "restore").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// ResendOrderError reports a resent candidate scheduled before the rejected
// one. Resent candidates must never move backwards in time.
type ResendOrderError struct {
	// Handler is the pooled handler's stable name.
	Handler string
	// Rejected is the event time of the rejected candidate.
	Rejected simtime.Time
	// Resent is the earlier time the handler produced.
	Resent simtime.Time
}

// Error implements the error interface.
func (e *ResendOrderError) Error() string {
	return fmt.Sprintf("handler %s resent %s, before the rejected candidate at %s",
		e.Handler, e.Resent, e.Rejected)
}

// CancellationError captures where a run stopped on context cancellation.
// The mediator stays consistent; a snapshot taken afterwards resumes the run
// at the cancelled leg.
type CancellationError struct {
	// Legs is the number of committed events at cancellation.
	Legs uint64
	// Cause is the underlying cancellation cause.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled after %d legs: %v", e.Legs, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// SnapshotError wraps failures while capturing, persisting, or restoring a
// run snapshot.
type SnapshotError struct {
	// Op is the operation that failed ("capture", "marshal", "save",
	// "restore").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SnapshotError) Unwrap() error {
	return e.Err
}
