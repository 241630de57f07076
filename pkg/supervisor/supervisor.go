// Package supervisor drives conversations through the routing loop: message
// intake, routing decisions, executor runs and terminal responses, each
// committed as exactly one step against the conversation store.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/checkpoint"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/emitter"
	"github.com/droverlabs/drover/pkg/executor"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/routing"
)

const (
	// DefaultRepeatBound is how often one executor may run within a single
	// turn before the turn is forced to clarification.
	DefaultRepeatBound = 3
	// DefaultRoutingTimeout bounds a single routing decision.
	DefaultRoutingTimeout = 5 * time.Second
	// DefaultLockTTL is the distributed turn-lock lifetime.
	DefaultLockTTL = 30 * time.Second
)

// ErrTurnActive is returned by Handle when the conversation was left
// mid-turn, usually by a crashed process. Resume finishes the turn first.
var ErrTurnActive = errors.New("conversation has an unfinished turn; resume it before sending new input")

// TurnRequest is one inbound user message. An empty ConversationID starts a
// new conversation.
type TurnRequest struct {
	ConversationID string
	Message        string
	UserID         string
}

// TurnResult reports how a turn ended. Outcome is the committed phase after
// the final step. Err is set when the turn reached the failed phase; the
// turn itself still completed, so Handle does not return it as its error.
type TurnResult struct {
	ConversationID string
	// Response is the assistant message that closed the turn, empty when
	// the turn failed without one.
	Response string
	Outcome  domain.Phase
	// Steps is the number of steps committed by this call.
	Steps        int
	MessageCount int
	State        *domain.ConversationState
	Err          error
}

// Supervisor owns the step loop. All mutations go through single-step
// commits; per-conversation turn locks serialize concurrent callers.
type Supervisor struct {
	store       ports.ConversationStore
	checkpoints *checkpoint.Checkpointer
	policy      ports.RoutingPolicy
	registry    *executor.Registry
	harness     *executor.Harness
	emitter     *emitter.Emitter
	guard       *turnGuard
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	metrics     *Metrics

	checkpointStore ports.CheckpointStore
	locker          ports.DistributedLocker
	lockTTL         time.Duration
	repeatBound     int
	routingTimeout  time.Duration
}

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithCheckpointStore sets the durable checkpoint backend. Defaults to the
// in-memory store.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(s *Supervisor) {
		s.checkpointStore = store
	}
}

// WithPolicy sets the routing policy. Defaults to the keyword rules policy.
func WithPolicy(policy ports.RoutingPolicy) Option {
	return func(s *Supervisor) {
		s.policy = policy
	}
}

// WithRegistry sets the executor registry. Defaults to the known executor
// set backed by an in-memory capability gateway.
func WithRegistry(registry *executor.Registry) Option {
	return func(s *Supervisor) {
		s.registry = registry
	}
}

// WithHarness sets the run harness that applies executor deadlines.
func WithHarness(h *executor.Harness) Option {
	return func(s *Supervisor) {
		s.harness = h
	}
}

// WithEmitter sets the event emitter. The supervisor closes it on Close.
func WithEmitter(e *emitter.Emitter) Option {
	return func(s *Supervisor) {
		s.emitter = e
	}
}

// WithDistributedLocker enables cross-replica turn locking.
func WithDistributedLocker(locker ports.DistributedLocker) Option {
	return func(s *Supervisor) {
		s.locker = locker
	}
}

// WithLockTTL sets the distributed lock lifetime.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Supervisor) {
		s.lockTTL = ttl
	}
}

// WithHooks registers lifecycle callbacks observing the step loop.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Supervisor) {
		s.hooks = hooks
	}
}

// WithLogger sets a structured logger for the supervisor and the components
// it builds by default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithRepeatBound overrides how often one executor may run per turn.
func WithRepeatBound(n int) Option {
	return func(s *Supervisor) {
		s.repeatBound = n
	}
}

// WithRoutingTimeout bounds each routing decision.
func WithRoutingTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.routingTimeout = d
	}
}

// New creates a Supervisor on the given conversation store. Every other
// dependency has a working default so the zero-config engine runs entirely
// in memory.
func New(store ports.ConversationStore, opts ...Option) (*Supervisor, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}

	s := &Supervisor{store: store}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.emitter == nil {
		s.emitter = emitter.New(emitter.WithLogger(s.logger))
	}
	if s.checkpointStore == nil {
		s.checkpointStore = memory.NewCheckpointStore()
	}
	s.checkpoints = checkpoint.New(s.checkpointStore, checkpoint.WithLogger(s.logger))
	if s.policy == nil {
		s.policy = routing.NewRules()
	}
	if s.registry == nil {
		gateway := capability.NewGateway(capability.WithLogger(s.logger))
		capability.RegisterBuiltins(gateway, afero.NewMemMapFs())
		s.registry = executor.NewDefaultRegistry(gateway)
	}
	if s.harness == nil {
		s.harness = executor.NewHarness(executor.WithLogger(s.logger))
	}
	if s.repeatBound <= 0 {
		s.repeatBound = DefaultRepeatBound
	}
	if s.routingTimeout <= 0 {
		s.routingTimeout = DefaultRoutingTimeout
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	s.guard = newTurnGuard(s.locker, s.lockTTL, s.logger)

	return s, nil
}

// Handle runs one full turn: it commits the user message, then routes and
// executes until the policy ends the turn. The conversation is created on
// first contact.
//
// A turn that reaches the failed phase is still a completed turn: Handle
// returns its TurnResult with Err set rather than an error.
func (s *Supervisor) Handle(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.ErrEmptyMessage
	}

	id := req.ConversationID
	if id == "" {
		id = domain.NewConversationID()
	}

	var result *TurnResult
	err := s.guard.withTurn(ctx, id, func(ctx context.Context) error {
		var err error
		result, err = s.runTurn(ctx, id, req.UserID, message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resume finishes a turn that was interrupted mid-loop. It reconciles the
// store against the latest checkpoint first; if the conversation is not
// mid-turn it just reports the current state.
func (s *Supervisor) Resume(ctx context.Context, id string) (*TurnResult, error) {
	var result *TurnResult
	err := s.guard.withTurn(ctx, id, func(ctx context.Context) error {
		state, divergence, err := s.checkpoints.Reconcile(ctx, s.store, id)
		if err != nil {
			return err
		}
		if divergence != nil {
			s.logger.Warn("checkpoint divergence detected",
				"conversation_id", id,
				"divergence", divergence.String(),
			)
			s.emit(ctx, domain.ExecutionEvent{
				Type:           domain.EventError,
				ConversationID: id,
				Message:        "checkpoint divergence: " + divergence.String(),
				Data:           map[string]any{"warning": true},
			})
		}

		if state.Phase != domain.PhaseRouting {
			result = &TurnResult{
				ConversationID: id,
				Response:       state.LastAssistantMessage(),
				Outcome:        state.Phase,
				MessageCount:   state.MessageCount(),
				State:          state,
			}
			return nil
		}

		turnRuns := make(map[string]int)
		for _, rec := range state.Routing {
			if rec.TurnID == state.TurnID && domain.KnownExecutor(rec.Actor) {
				turnRuns[rec.Actor]++
			}
		}
		result, err = s.stepLoop(ctx, state, state.TurnID, state.LastUserMessage(), turnRuns, state.Step)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a defensive copy of the conversation.
func (s *Supervisor) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	return s.store.Get(ctx, id)
}

// List returns summaries of all conversations, most recently updated first.
func (s *Supervisor) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	return s.store.List(ctx)
}

// Delete removes the conversation and its checkpoints. It waits for any
// running turn to finish first.
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	return s.guard.withTurn(ctx, id, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		return s.checkpoints.Purge(ctx, id)
	})
}

// Checkpoints lists the conversation's checkpoints in ascending step order.
func (s *Supervisor) Checkpoints(ctx context.Context, id string) ([]*domain.Checkpoint, error) {
	return s.checkpoints.List(ctx, id)
}

// Events exposes the emitter for transports to subscribe on.
func (s *Supervisor) Events() *emitter.Emitter {
	return s.emitter
}

// Executors lists the registered executor names.
func (s *Supervisor) Executors() []string {
	return s.registry.Names()
}

// RepeatBound reports the per-executor run limit per turn.
func (s *Supervisor) RepeatBound() int {
	return s.repeatBound
}

// Close shuts the event emitter down, detaching all subscribers.
func (s *Supervisor) Close() {
	s.emitter.Close()
}

func (s *Supervisor) emit(ctx context.Context, event domain.ExecutionEvent) {
	s.emitter.Emit(ctx, event)
}
