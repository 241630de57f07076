package domain

import (
	"errors"
	"fmt"
)

// ErrConversationNotFound is returned when a conversation id cannot be
// resolved. The text surfaces verbatim at the API boundary.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrConversationExists is returned by Create when the id is already taken.
var ErrConversationExists = errors.New("conversation already exists")

// ErrNoCheckpoint is returned when a conversation has no checkpoint yet.
var ErrNoCheckpoint = errors.New("no checkpoint")

// ErrEmptyMessage is returned when a turn is started with a blank message.
var ErrEmptyMessage = errors.New("message must not be empty")

// StaleWriteError reports a lost commit race: the step counter the delta was
// built against no longer matches the store. The supervisor resolves it by
// reloading and re-routing; it never surfaces to callers.
type StaleWriteError struct {
	ConversationID string
	ExpectedStep   uint64
	ActualStep     uint64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write on conversation %s: expected step %d, store at step %d",
		e.ConversationID, e.ExpectedStep, e.ActualStep)
}

// IsStaleWrite reports whether err is a StaleWriteError.
func IsStaleWrite(err error) bool {
	var s *StaleWriteError
	return errors.As(err, &s)
}

// RoutingError reports an invalid or absent routing decision: an unknown
// actor, a step mismatch, or a policy that errored or timed out. It is fatal
// for the current turn.
type RoutingError struct {
	Reason string
	Step   uint64
	Actor  string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing failed at step %d: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("routing failed at step %d: %s", e.Step, e.Reason)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// FailureKind classifies executor failures. Failures are committed steps:
// the conversation records them and routing decides whether to retry.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureCapability    FailureKind = "capability_error"
	FailureInvalidOutput FailureKind = "invalid_output"
)

// ExecutorFailure is the typed result of a failed executor run.
type ExecutorFailure struct {
	Executor string
	Kind     FailureKind
	Detail   string
	Err      error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("executor %s failed (%s): %s", e.Executor, e.Kind, e.Detail)
}

func (e *ExecutorFailure) Unwrap() error { return e.Err }

// AsExecutorFailure unwraps err into an ExecutorFailure if it is one.
func AsExecutorFailure(err error) (*ExecutorFailure, bool) {
	var f *ExecutorFailure
	ok := errors.As(err, &f)
	return f, ok
}

// CapabilityFailureKind classifies capability-call failures.
type CapabilityFailureKind string

const (
	CapabilityNotFound    CapabilityFailureKind = "not_found"
	CapabilityTimeout     CapabilityFailureKind = "timeout"
	CapabilityInvalidArgs CapabilityFailureKind = "invalid_args"
	CapabilityUpstream    CapabilityFailureKind = "upstream_error"
)

// CapabilityFailure is the typed failure a capability call reports instead
// of an untyped error, so executors can fold it into their own failure.
type CapabilityFailure struct {
	Capability string
	Kind       CapabilityFailureKind
	Detail     string
	Err        error
}

func (e *CapabilityFailure) Error() string {
	return fmt.Sprintf("capability %s failed (%s): %s", e.Capability, e.Kind, e.Detail)
}

func (e *CapabilityFailure) Unwrap() error { return e.Err }

// AsCapabilityFailure unwraps err into a CapabilityFailure if it is one.
func AsCapabilityFailure(err error) (*CapabilityFailure, bool) {
	var f *CapabilityFailure
	ok := errors.As(err, &f)
	return f, ok
}
