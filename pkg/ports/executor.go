package ports

import (
	"context"

	"github.com/droverlabs/drover/pkg/domain"
)

// Task is the read-only work order handed to an executor: the conversation
// as of the step the routing decision was computed against. State is a
// clone; executors may read it freely and mutate nothing.
type Task struct {
	ConversationID string
	TurnID         string
	Step           uint64
	UserMessage    string
	Rationale      string
	State          *domain.ConversationState
}

// ExecutorResult is what a successful run produces: transcript messages to
// append and the executor's new scratch payload. The supervisor folds it
// into a single step delta; executors never touch the store.
type ExecutorResult struct {
	Messages []domain.Message
	Scratch  map[string]any
	// Summary is a short progress line carried on the completion event.
	Summary string
}

// Executor defines the interface for a worker in the known executor set.
//
// Execute runs under a deadline set by the harness; implementations must
// honor ctx cancellation. A typed *domain.ExecutorFailure return is recorded
// as a failure step; any other error is wrapped as one.
type Executor interface {
	// Name returns the executor's routing name.
	Name() string

	// Execute performs the work for one routed step.
	Execute(ctx context.Context, task Task) (*ExecutorResult, error)
}

// Progress reports incremental executor output. Executors that want to
// stream progress events type-assert their context against this through
// ProgressFromContext.
type Progress interface {
	// Report emits one progress line for the running executor.
	Report(ctx context.Context, message string, data map[string]any)
}

type progressKey struct{}

// WithProgress attaches a progress reporter to the context handed to an
// executor.
func WithProgress(ctx context.Context, p Progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

// ProgressFromContext returns the attached progress reporter, or a no-op.
func ProgressFromContext(ctx context.Context) Progress {
	if p, ok := ctx.Value(progressKey{}).(Progress); ok && p != nil {
		return p
	}
	return nopProgress{}
}

type nopProgress struct{}

func (nopProgress) Report(context.Context, string, map[string]any) {}
