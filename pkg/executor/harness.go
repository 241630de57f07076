package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// DefaultRunTimeout bounds one executor run.
const DefaultRunTimeout = 30 * time.Second

// Harness runs exactly one executor per step under a deadline. Every
// outcome leaves as either a result or a *domain.ExecutorFailure with one
// of the three failure kinds; nothing untyped escapes to the supervisor.
type Harness struct {
	timeout time.Duration
	logger  *slog.Logger
}

// HarnessOption configures a Harness.
type HarnessOption func(*Harness)

// WithRunTimeout sets the per-run deadline.
func WithRunTimeout(d time.Duration) HarnessOption {
	return func(h *Harness) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the harness logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHarness creates a Harness.
func NewHarness(opts ...HarnessOption) *Harness {
	h := &Harness{
		timeout: DefaultRunTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Timeout reports the configured per-run deadline.
func (h *Harness) Timeout() time.Duration { return h.timeout }

type runOutcome struct {
	result *ports.ExecutorResult
	err    error
}

// Run executes one executor for one step. The deadline is enforced from the
// outside: an executor that ignores its context still cannot hold the step
// loop past the timeout, its goroutine is abandoned and its late result
// discarded.
func (h *Harness) Run(ctx context.Context, exec ports.Executor, task ports.Task) (*ports.ExecutorResult, *domain.ExecutorFailure) {
	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	outcomes := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomes <- runOutcome{err: &domain.ExecutorFailure{
					Executor: exec.Name(),
					Kind:     domain.FailureInvalidOutput,
					Detail:   fmt.Sprintf("executor panicked: %v", r),
				}}
			}
		}()
		result, err := exec.Execute(runCtx, task)
		outcomes <- runOutcome{result: result, err: err}
	}()

	var outcome runOutcome
	select {
	case outcome = <-outcomes:
	case <-runCtx.Done():
		h.logger.Warn("executor run timed out",
			"executor", exec.Name(),
			"conversation_id", task.ConversationID,
			"step", task.Step,
			"timeout", h.timeout)
		return nil, &domain.ExecutorFailure{
			Executor: exec.Name(),
			Kind:     domain.FailureTimeout,
			Detail:   fmt.Sprintf("run exceeded %s", h.timeout),
			Err:      runCtx.Err(),
		}
	}

	elapsed := time.Since(start)
	if outcome.err != nil {
		failure := h.classify(exec.Name(), outcome.err)
		h.logger.Info("executor run failed",
			"executor", exec.Name(),
			"conversation_id", task.ConversationID,
			"step", task.Step,
			"kind", string(failure.Kind),
			"duration", elapsed)
		return nil, failure
	}

	if failure := validateResult(exec.Name(), outcome.result); failure != nil {
		return nil, failure
	}

	h.logger.Debug("executor run completed",
		"executor", exec.Name(),
		"conversation_id", task.ConversationID,
		"step", task.Step,
		"duration", elapsed)
	return outcome.result, nil
}

// classify maps any executor error onto the closed failure taxonomy.
func (h *Harness) classify(executor string, err error) *domain.ExecutorFailure {
	var failure *domain.ExecutorFailure
	if errors.As(err, &failure) {
		if failure.Executor == "" {
			failure.Executor = executor
		}
		return failure
	}

	// a capability timeout is a dependency failure, not the executor's own
	// deadline, so it stays capability_error
	var capFailure *domain.CapabilityFailure
	if errors.As(err, &capFailure) {
		return &domain.ExecutorFailure{
			Executor: executor,
			Kind:     domain.FailureCapability,
			Detail:   capFailure.Detail,
			Err:      capFailure,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ExecutorFailure{
			Executor: executor,
			Kind:     domain.FailureTimeout,
			Detail:   fmt.Sprintf("run exceeded %s", h.timeout),
			Err:      err,
		}
	}

	return &domain.ExecutorFailure{
		Executor: executor,
		Kind:     domain.FailureInvalidOutput,
		Detail:   err.Error(),
		Err:      err,
	}
}

// validateResult enforces the output contract: a run must produce something
// (a message or scratch), and its messages must be attributable.
func validateResult(executor string, result *ports.ExecutorResult) *domain.ExecutorFailure {
	if result == nil {
		return &domain.ExecutorFailure{
			Executor: executor,
			Kind:     domain.FailureInvalidOutput,
			Detail:   "executor returned no result",
		}
	}
	if len(result.Messages) == 0 && result.Scratch == nil {
		return &domain.ExecutorFailure{
			Executor: executor,
			Kind:     domain.FailureInvalidOutput,
			Detail:   "executor produced neither messages nor scratch",
		}
	}
	for i := range result.Messages {
		if result.Messages[i].Text == "" {
			return &domain.ExecutorFailure{
				Executor: executor,
				Kind:     domain.FailureInvalidOutput,
				Detail:   fmt.Sprintf("message %d has empty text", i),
			}
		}
		if result.Messages[i].Role == "" {
			result.Messages[i].Role = domain.RoleAssistant
		}
		if result.Messages[i].Executor == "" {
			result.Messages[i].Executor = executor
		}
	}
	return nil
}
