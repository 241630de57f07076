package supervisor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/emitter"
	"github.com/droverlabs/drover/pkg/executor"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/supervisor"
)

func engineOn(t *testing.T, store ports.ConversationStore, opts ...supervisor.Option) (*supervisor.Supervisor, *memory.CheckpointStore) {
	t.Helper()
	checkpoints := memory.NewCheckpointStore()
	base := []supervisor.Option{
		supervisor.WithLogger(logging.NewNop()),
		supervisor.WithCheckpointStore(checkpoints),
		supervisor.WithEmitter(emitter.New(
			emitter.WithLogger(logging.NewNop()),
			emitter.WithBuffer(64),
		)),
	}
	sup, err := supervisor.New(store, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(sup.Close)
	return sup, checkpoints
}

func newEngine(t *testing.T, opts ...supervisor.Option) (*supervisor.Supervisor, *memory.Store, *memory.CheckpointStore) {
	t.Helper()
	store := memory.NewStore()
	sup, checkpoints := engineOn(t, store, opts...)
	return sup, store, checkpoints
}

func drainEvents(ch <-chan domain.ExecutionEvent) []domain.ExecutionEvent {
	var events []domain.ExecutionEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countKind(events []domain.ExecutionEvent, kind domain.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

// stubExecutor succeeds immediately with a scratch payload.
type stubExecutor struct {
	name string
}

func (s stubExecutor) Name() string { return s.name }

func (s stubExecutor) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	return &ports.ExecutorResult{
		Scratch: map[string]any{"ran_at_step": task.Step},
		Summary: "stub finished",
	}, nil
}

// flakyExecutor fails a fixed number of times before delegating.
type flakyExecutor struct {
	inner ports.Executor

	mu       sync.Mutex
	failures int
}

func (f *flakyExecutor) Name() string { return f.inner.Name() }

func (f *flakyExecutor) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, &domain.ExecutorFailure{
			Executor: f.inner.Name(),
			Kind:     domain.FailureTimeout,
			Detail:   "simulated timeout",
		}
	}
	f.mu.Unlock()
	return f.inner.Execute(ctx, task)
}

// countingExecutor records how many times Execute actually ran.
type countingExecutor struct {
	inner ports.Executor

	mu    sync.Mutex
	calls int
}

func (c *countingExecutor) Name() string { return c.inner.Name() }

func (c *countingExecutor) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Execute(ctx, task)
}

func (c *countingExecutor) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testRegistry(t *testing.T, override ...ports.Executor) *executor.Registry {
	t.Helper()
	gateway := capability.NewGateway(capability.WithLogger(logging.NewNop()))
	capability.RegisterBuiltins(gateway, afero.NewMemMapFs())

	registry := executor.NewRegistry()
	registry.Register(executor.NewIngestion(gateway))
	registry.Register(executor.NewAnalysis())
	registry.Register(executor.NewReport())
	registry.Register(executor.NewQueryTranslation())
	registry.Register(executor.NewNotification(gateway))
	for _, exec := range override {
		registry.Register(exec)
	}
	return registry
}

func TestReportRequestRunsPipeline(t *testing.T) {
	sup, _, _ := newEngine(t, supervisor.WithMetrics(supervisor.NewMetrics(prometheus.NewRegistry())))
	ctx := context.Background()

	events, cancel := sup.Events().Subscribe("conv-pipeline")
	defer cancel()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-pipeline",
		Message:        "Generate a report on the sales numbers",
		UserID:         "user-1",
	})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.PhaseResponding, result.Outcome)
	assert.Contains(t, result.Response, "# Summary Report: sales")
	assert.Equal(t, 5, result.Steps) // intake, three executors, response

	state := result.State
	assert.Equal(t, uint64(5), state.Step)
	assert.Equal(t, domain.PhaseResponding, state.Phase)
	assert.Equal(t, "Generate a report on the sales numbers", state.Title)
	require.Len(t, state.Messages, 5)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, state.Messages[4].Role)

	for _, name := range []string{domain.ExecutorIngestion, domain.ExecutorAnalysis, domain.ExecutorReport} {
		es := state.Executors[name]
		assert.Equal(t, domain.ExecCompleted, es.Status, name)
		assert.Equal(t, 1, es.Runs, name)
	}

	wantActors := []string{domain.ExecutorIngestion, domain.ExecutorAnalysis, domain.ExecutorReport, domain.ActorRespond}
	require.Len(t, state.Routing, len(wantActors))
	for i, rec := range state.Routing {
		assert.Equal(t, wantActors[i], rec.Actor)
		assert.Equal(t, state.Routing[0].TurnID, rec.TurnID)
		assert.Equal(t, uint64(i+1), rec.Step)
		assert.NotEmpty(t, rec.Rationale)
	}

	checkpoints, err := sup.Checkpoints(ctx, "conv-pipeline")
	require.NoError(t, err)
	require.Len(t, checkpoints, 5)
	for i, cp := range checkpoints {
		assert.Equal(t, uint64(i+1), cp.Step)
	}

	got := drainEvents(events)
	require.NotEmpty(t, got)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Seq, "event %d out of sequence", i)
	}
	assert.Equal(t, domain.EventAgentStarted, got[0].Type)
	assert.Equal(t, domain.ExecutorIngestion, got[0].AgentName)
	last := got[len(got)-1]
	assert.Equal(t, domain.EventAgentCompleted, last.Type)
	assert.Equal(t, "supervisor", last.AgentName)
	assert.Equal(t, result.Response, last.Message)

	assert.Equal(t, 3, countKind(got, domain.EventAgentStarted))
	assert.Equal(t, 4, countKind(got, domain.EventAgentCompleted))
	assert.Zero(t, countKind(got, domain.EventError))
	assert.GreaterOrEqual(t, countKind(got, domain.EventAgentProgress), 1)
}

func TestExecutorTimeoutRetriesThenSucceeds(t *testing.T) {
	flaky := &flakyExecutor{inner: executor.NewAnalysis(), failures: 1}
	sup, _, _ := newEngine(t, supervisor.WithRegistry(testRegistry(t, flaky)))
	ctx := context.Background()

	events, cancel := sup.Events().Subscribe("conv-retry")
	defer cancel()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-retry",
		Message:        "analyze the sales figures",
	})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.PhaseResponding, result.Outcome)
	assert.Contains(t, result.Response, "Analysis complete")
	assert.Equal(t, 5, result.Steps) // intake, ingestion, failure, retry, response

	es := result.State.Executors[domain.ExecutorAnalysis]
	assert.Equal(t, domain.ExecCompleted, es.Status)
	assert.Equal(t, 2, es.Runs)
	assert.Zero(t, es.Failures)
	assert.Empty(t, es.LastError)

	wantActors := []string{domain.ExecutorIngestion, domain.ExecutorAnalysis, domain.ExecutorAnalysis, domain.ActorRespond}
	require.Len(t, result.State.Routing, len(wantActors))
	for i, rec := range result.State.Routing {
		assert.Equal(t, wantActors[i], rec.Actor)
	}
	assert.Contains(t, result.State.Routing[2].Rationale, "retrying attempt 2 of 2")

	got := drainEvents(events)
	started, completed := 0, 0
	for _, ev := range got {
		if ev.AgentName != domain.ExecutorAnalysis {
			continue
		}
		switch ev.Type {
		case domain.EventAgentStarted:
			started++
		case domain.EventAgentCompleted:
			completed++
		}
	}
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, completed)
	require.Equal(t, 1, countKind(got, domain.EventError))
	for _, ev := range got {
		if ev.Type == domain.EventError {
			assert.Equal(t, domain.ExecutorAnalysis, ev.AgentName)
			assert.Equal(t, "simulated timeout", ev.Message)
			assert.Equal(t, string(domain.FailureTimeout), ev.Data["kind"])
		}
	}
}

func TestRepeatBoundForcesClarification(t *testing.T) {
	policy := ports.RoutingPolicyFunc(func(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
		return &domain.RoutingDecision{
			Actor:     domain.ExecutorAnalysis,
			Rationale: "keep digging",
			Step:      view.Step,
		}, nil
	})
	registry := executor.NewRegistry()
	registry.Register(stubExecutor{name: domain.ExecutorAnalysis})
	sup, _, _ := newEngine(t, supervisor.WithPolicy(policy), supervisor.WithRegistry(registry))

	result, err := sup.Handle(context.Background(), supervisor.TurnRequest{
		ConversationID: "conv-loop",
		Message:        "keep going until done",
	})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.PhaseClarifying, result.Outcome)
	assert.Contains(t, result.Response, "tried analysis 3 times")
	assert.Equal(t, supervisor.DefaultRepeatBound, result.State.Executors[domain.ExecutorAnalysis].Runs)
	assert.Equal(t, 5, result.Steps) // intake, three runs, clarification

	last := result.State.Routing[len(result.State.Routing)-1]
	assert.Equal(t, domain.ActorClarify, last.Actor)
	assert.Contains(t, last.Rationale, "already ran 3 times")
}

func TestUnknownExecutorFailsTurn(t *testing.T) {
	policy := ports.RoutingPolicyFunc(func(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
		return &domain.RoutingDecision{Actor: "mystery", Step: view.Step}, nil
	})
	sup, _, _ := newEngine(t, supervisor.WithPolicy(policy))
	ctx := context.Background()

	events, cancel := sup.Events().Subscribe("conv-unknown")
	defer cancel()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-unknown",
		Message:        "do something",
	})
	require.NoError(t, err)
	require.Error(t, result.Err)

	var rerr *domain.RoutingError
	require.ErrorAs(t, result.Err, &rerr)
	assert.Contains(t, rerr.Reason, `unknown executor "mystery"`)
	assert.Equal(t, domain.PhaseFailed, result.Outcome)
	assert.Equal(t, domain.PhaseFailed, result.State.Phase)

	require.NotEmpty(t, result.State.Routing)
	assert.Equal(t, domain.ActorFail, result.State.Routing[len(result.State.Routing)-1].Actor)
	for _, m := range result.State.Messages {
		assert.NotEqual(t, domain.RoleAssistant, m.Role, "a failed routing decision must not fabricate a response")
	}

	got := drainEvents(events)
	require.Equal(t, 1, countKind(got, domain.EventError))

	// the failed phase still accepts the next message
	second, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-unknown",
		Message:        "try again",
	})
	require.NoError(t, err)
	assert.Greater(t, second.State.Step, result.State.Step)
}

func TestRoutingTimeoutFailsTurn(t *testing.T) {
	slow := ports.RoutingPolicyFunc(func(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
		time.Sleep(500 * time.Millisecond)
		return &domain.RoutingDecision{Actor: domain.ActorRespond, Step: view.Step, Answer: "too late"}, nil
	})
	sup, _, _ := newEngine(t,
		supervisor.WithPolicy(slow),
		supervisor.WithRoutingTimeout(50*time.Millisecond),
	)

	result, err := sup.Handle(context.Background(), supervisor.TurnRequest{
		ConversationID: "conv-slow",
		Message:        "anything at all",
	})
	require.NoError(t, err)
	require.Error(t, result.Err)

	var rerr *domain.RoutingError
	require.ErrorAs(t, result.Err, &rerr)
	assert.Contains(t, rerr.Reason, "routing timed out")
	assert.Equal(t, domain.PhaseFailed, result.Outcome)
}

func TestConcurrentTurnsSerialize(t *testing.T) {
	sup, _, _ := newEngine(t)
	const id = "conv-concurrent"

	var wg sync.WaitGroup
	results := make([]*supervisor.TurnResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sup.Handle(context.Background(), supervisor.TurnRequest{
				ConversationID: id,
				Message:        "load the sales data",
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	state, err := sup.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResponding, state.Phase)
	assert.Equal(t, int(state.Step), results[0].Steps+results[1].Steps)

	users := 0
	for _, m := range state.Messages {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	assert.Equal(t, 2, users)

	// the second turn reused the committed ingestion result
	assert.Equal(t, 1, state.Executors[domain.ExecutorIngestion].Runs)

	turnIDs := make(map[string]bool)
	for _, rec := range state.Routing {
		turnIDs[rec.TurnID] = true
	}
	assert.Len(t, turnIDs, 2)
}

// racingStore sneaks an out-of-band commit in front of the first executor
// commit, forcing the supervisor down the stale-write retry path.
type racingStore struct {
	ports.ConversationStore

	mu    sync.Mutex
	raced bool
}

func (r *racingStore) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
	r.mu.Lock()
	race := !r.raced && delta.Executor != ""
	if race {
		r.raced = true
	}
	r.mu.Unlock()

	if race {
		if _, err := r.ConversationStore.Commit(ctx, id, expectedStep, domain.Delta{Phase: domain.PhaseRouting}); err != nil {
			return nil, err
		}
	}
	return r.ConversationStore.Commit(ctx, id, expectedStep, delta)
}

func TestStaleCommitReappliesWithoutRerunningExecutor(t *testing.T) {
	gateway := capability.NewGateway(capability.WithLogger(logging.NewNop()))
	capability.RegisterBuiltins(gateway, afero.NewMemMapFs())
	counting := &countingExecutor{inner: executor.NewIngestion(gateway)}
	registry := executor.NewRegistry()
	registry.Register(counting)

	store := &racingStore{ConversationStore: memory.NewStore()}
	sup, _ := engineOn(t, store, supervisor.WithRegistry(registry))

	result, err := sup.Handle(context.Background(), supervisor.TurnRequest{
		ConversationID: "conv-race",
		Message:        "load the sales data",
	})
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.PhaseResponding, result.Outcome)
	assert.Equal(t, 1, counting.Calls(), "the executor must not rerun after a stale commit")
	assert.Equal(t, 1, result.State.Executors[domain.ExecutorIngestion].Runs)

	// intake, the sneaked step, the re-applied ingestion step, the response
	assert.Equal(t, uint64(4), result.State.Step)

	var ingestionRec *domain.RoutingRecord
	for i := range result.State.Routing {
		if result.State.Routing[i].Actor == domain.ExecutorIngestion {
			ingestionRec = &result.State.Routing[i]
		}
	}
	require.NotNil(t, ingestionRec)
	assert.Equal(t, uint64(2), ingestionRec.Step, "the record lands where the delta was re-applied")
}

func TestEmptyMessageRejected(t *testing.T) {
	sup, _, _ := newEngine(t)

	_, err := sup.Handle(context.Background(), supervisor.TurnRequest{Message: "   "})
	require.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestUnknownConversationIsNotFound(t *testing.T) {
	sup, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := sup.Get(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.EqualError(t, err, "conversation not found")

	require.ErrorIs(t, sup.Delete(ctx, "ghost"), domain.ErrConversationNotFound)

	_, err = sup.Resume(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestHandleRejectsMidTurnConversation(t *testing.T) {
	sup, store, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, domain.NewConversation("conv-stuck", "user-1")))
	_, err := store.Commit(ctx, "conv-stuck", 0, domain.Delta{
		Messages: []domain.Message{{Role: domain.RoleUser, Text: "analyze the sales figures"}},
		Phase:    domain.PhaseRouting,
		TurnID:   "turn-stuck",
	})
	require.NoError(t, err)

	_, err = sup.Handle(ctx, supervisor.TurnRequest{ConversationID: "conv-stuck", Message: "hello?"})
	require.ErrorIs(t, err, supervisor.ErrTurnActive)
}

func TestResumeContinuesInterruptedTurn(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	// A previous process committed the intake and the ingestion step, then
	// died before routing again.
	require.NoError(t, store.Create(ctx, domain.NewConversation("conv-resume", "user-1")))
	_, err := store.Commit(ctx, "conv-resume", 0, domain.Delta{
		Messages: []domain.Message{{Role: domain.RoleUser, Text: "analyze the sales figures"}},
		Phase:    domain.PhaseRouting,
		TurnID:   "turn-interrupted",
		Title:    "analyze the sales figures",
	})
	require.NoError(t, err)
	_, err = store.Commit(ctx, "conv-resume", 1, domain.Delta{
		Messages: []domain.Message{{
			Role:     domain.RoleAssistant,
			Text:     "Ingested 2 records from sales.",
			Executor: domain.ExecutorIngestion,
		}},
		Executor: domain.ExecutorIngestion,
		Status:   domain.ExecCompleted,
		Scratch: map[string]any{
			"records": []map[string]any{
				{"region": "north", "amount": 1200.0},
				{"region": "south", "amount": 450.0},
			},
			"count":  2,
			"source": "sales",
		},
		Routing: &domain.RoutingRecord{TurnID: "turn-interrupted", Actor: domain.ExecutorIngestion},
		Phase:   domain.PhaseRouting,
	})
	require.NoError(t, err)

	sup, _ := engineOn(t, store)
	result, err := sup.Resume(ctx, "conv-resume")
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, domain.PhaseResponding, result.Outcome)
	assert.Contains(t, result.Response, "Analysis complete over 2 records")
	assert.Contains(t, result.Response, "north")
	assert.Equal(t, 2, result.Steps) // analysis plus the response

	state := result.State
	assert.Equal(t, uint64(4), state.Step)
	assert.Equal(t, domain.ExecCompleted, state.Executors[domain.ExecutorAnalysis].Status)
	for _, rec := range state.Routing {
		assert.Equal(t, "turn-interrupted", rec.TurnID)
	}
}

func TestResumeIdleConversationReportsState(t *testing.T) {
	sup, _, _ := newEngine(t)
	ctx := context.Background()

	first, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-idle",
		Message:        "load the sales data",
	})
	require.NoError(t, err)

	resumed, err := sup.Resume(ctx, "conv-idle")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResponding, resumed.Outcome)
	assert.Zero(t, resumed.Steps)
	assert.Equal(t, first.Response, resumed.Response)
	assert.Equal(t, first.State.Step, resumed.State.Step)
}

func TestResumeWarnsOnCheckpointDivergence(t *testing.T) {
	sup, store, checkpoints := newEngine(t)
	ctx := context.Background()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-diverged",
		Message:        "load the sales data",
	})
	require.NoError(t, err)

	// forge a checkpoint claiming steps the store never saw
	forged := result.State.Clone()
	forged.Step = result.State.Step + 3
	require.NoError(t, checkpoints.Save(ctx, domain.NewCheckpoint(forged)))

	events, cancel := sup.Events().Subscribe("conv-diverged")
	defer cancel()

	resumed, err := sup.Resume(ctx, "conv-diverged")
	require.NoError(t, err)

	// the store wins over the checkpoint
	assert.Equal(t, result.State.Step, resumed.State.Step)
	stored, err := store.Get(ctx, "conv-diverged")
	require.NoError(t, err)
	assert.Equal(t, result.State.Step, stored.Step)

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventError, got[0].Type)
	assert.Equal(t, true, got[0].Data["warning"])
	assert.Contains(t, got[0].Message, "checkpoint divergence")
}

func TestLifecycleHookOrder(t *testing.T) {
	var calls []string
	record := func(s string) { calls = append(calls, s) }
	hooks := domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, s *domain.ConversationState) { record("turn_start") },
		OnDecision: func(ctx context.Context, id string, d domain.RoutingDecision) {
			record("decision:" + d.Actor)
		},
		OnExecutorStart: func(ctx context.Context, id, name string, step uint64) {
			record("exec_start:" + name)
		},
		OnExecutorEnd: func(ctx context.Context, id, name string, step uint64, err error) {
			record("exec_end:" + name)
		},
		OnStepCommit: func(ctx context.Context, s *domain.ConversationState) {
			record(fmt.Sprintf("commit:%d", s.Step))
		},
		OnTurnEnd: func(ctx context.Context, s *domain.ConversationState, outcome domain.Phase) {
			record("turn_end:" + string(outcome))
		},
	}
	sup, _, _ := newEngine(t, supervisor.WithHooks(hooks))

	_, err := sup.Handle(context.Background(), supervisor.TurnRequest{
		ConversationID: "conv-hooks",
		Message:        "load the sales data",
	})
	require.NoError(t, err)

	want := []string{
		"commit:1",
		"turn_start",
		"decision:" + domain.ExecutorIngestion,
		"exec_start:" + domain.ExecutorIngestion,
		"commit:2",
		"exec_end:" + domain.ExecutorIngestion,
		"decision:" + domain.ActorRespond,
		"commit:3",
		"turn_end:" + string(domain.PhaseResponding),
	}
	assert.Equal(t, want, calls)
}

func TestHandleGeneratesConversationID(t *testing.T) {
	sup, _, _ := newEngine(t)
	ctx := context.Background()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{Message: "load the sales data"})
	require.NoError(t, err)
	require.NotEmpty(t, result.ConversationID)

	state, err := sup.Get(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "load the sales data", state.Title)

	summaries, err := sup.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, result.ConversationID, summaries[0].ID)
}

func TestDeleteRemovesConversationAndCheckpoints(t *testing.T) {
	sup, _, _ := newEngine(t)
	ctx := context.Background()

	result, err := sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: "conv-delete",
		Message:        "load the sales data",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.ConversationID)

	require.NoError(t, sup.Delete(ctx, "conv-delete"))

	_, err = sup.Get(ctx, "conv-delete")
	require.ErrorIs(t, err, domain.ErrConversationNotFound)

	checkpoints, err := sup.Checkpoints(ctx, "conv-delete")
	require.NoError(t, err)
	assert.Empty(t, checkpoints)
}
