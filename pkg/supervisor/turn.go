package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// maxCommitAttempts bounds the stale-write retry loop. Losing the step race
// this often in a row means something is systematically re-committing.
const maxCommitAttempts = 5

func (s *Supervisor) runTurn(ctx context.Context, id, userID, message string) (*TurnResult, error) {
	state, err := s.loadOrStart(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !state.Phase.AcceptsInput() {
		return nil, fmt.Errorf("%w: conversation %s is %s at step %d", ErrTurnActive, id, state.Phase, state.Step)
	}

	turnID := domain.NewTurnID()
	baseStep := state.Step

	intake := domain.Delta{
		Messages: []domain.Message{{Role: domain.RoleUser, Text: message}},
		Phase:    domain.PhaseRouting,
		TurnID:   turnID,
	}
	if len(state.Messages) == 0 {
		intake.Title = domain.TitleFromMessage(message)
	}
	state, err = s.commit(ctx, state, intake)
	if err != nil {
		return nil, err
	}
	s.logger.Info("turn started",
		"conversation_id", id,
		"turn_id", turnID,
		"step", state.Step,
	)
	if s.hooks.OnTurnStart != nil {
		s.hooks.OnTurnStart(ctx, state.Clone())
	}

	return s.stepLoop(ctx, state, turnID, message, make(map[string]int), baseStep)
}

func (s *Supervisor) loadOrStart(ctx context.Context, id, userID string) (*domain.ConversationState, error) {
	state, err := s.store.Get(ctx, id)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return nil, err
	}

	state = domain.NewConversation(id, userID)
	if err := s.store.Create(ctx, state); err != nil {
		if errors.Is(err, domain.ErrConversationExists) {
			// Lost the creation race against another replica.
			return s.store.Get(ctx, id)
		}
		return nil, err
	}
	s.logger.Info("conversation started", "conversation_id", id, "user_id", userID)
	return state, nil
}

// stepLoop routes and executes until the policy ends the turn. Every
// iteration commits at most one step; the loop re-routes from the committed
// state after each one.
func (s *Supervisor) stepLoop(ctx context.Context, state *domain.ConversationState, turnID, userMessage string, turnRuns map[string]int, baseStep uint64) (*TurnResult, error) {
	// The repeat guard alone ends every turn; the hard cap is the backstop
	// against a policy that keeps naming executors past it.
	maxExecutorSteps := s.repeatBound*len(domain.ExecutorNames) + 2

	executorSteps := 0
	for {
		decision, rerr := s.route(ctx, state, turnID, userMessage, turnRuns)
		if rerr != nil {
			return s.finishFailed(ctx, state, turnID, baseStep, rerr)
		}
		s.metrics.decisionMade(decision.Actor)
		if s.hooks.OnDecision != nil {
			s.hooks.OnDecision(ctx, state.ID, *decision)
		}

		if !decision.Terminal() && turnRuns[decision.Actor] >= s.repeatBound {
			s.metrics.repeatGuardTripped()
			s.logger.Warn("repeat bound reached, forcing clarification",
				"conversation_id", state.ID,
				"executor", decision.Actor,
				"runs", turnRuns[decision.Actor],
			)
			decision = &domain.RoutingDecision{
				Actor:     domain.ActorClarify,
				Step:      decision.Step,
				Rationale: fmt.Sprintf("%s already ran %d times this turn", decision.Actor, turnRuns[decision.Actor]),
				Answer: fmt.Sprintf("I've tried %s %d times this turn without getting further. Could you rephrase or narrow down the request?",
					decision.Actor, turnRuns[decision.Actor]),
			}
		}

		if decision.Terminal() {
			return s.finishTerminal(ctx, state, turnID, baseStep, decision)
		}

		executorSteps++
		if executorSteps > maxExecutorSteps {
			return s.finishFailed(ctx, state, turnID, baseStep, &domain.RoutingError{
				Reason: fmt.Sprintf("step budget exhausted after %d executor steps", maxExecutorSteps),
				Step:   state.Step,
				Actor:  decision.Actor,
			})
		}

		next, err := s.executeStep(ctx, state, turnID, userMessage, decision, turnRuns)
		if err != nil {
			return nil, err
		}
		state = next
	}
}

// route asks the policy for the next actor under the routing timeout and
// validates the decision against the committed step counter.
func (s *Supervisor) route(ctx context.Context, state *domain.ConversationState, turnID, userMessage string, turnRuns map[string]int) (*domain.RoutingDecision, *domain.RoutingError) {
	snapshot := state.Clone()
	runs := make(map[string]int, len(turnRuns))
	for name, n := range turnRuns {
		runs[name] = n
	}
	view := domain.RoutingView{
		ConversationID: snapshot.ID,
		TurnID:         turnID,
		Step:           snapshot.Step,
		UserMessage:    userMessage,
		Messages:       snapshot.Messages,
		Executors:      snapshot.Executors,
		TurnRuns:       runs,
	}

	type outcome struct {
		decision *domain.RoutingDecision
		err      error
	}
	results := make(chan outcome, 1)
	decideCtx, cancel := context.WithTimeout(ctx, s.routingTimeout)
	defer cancel()
	go func() {
		d, err := s.policy.Decide(decideCtx, view)
		results <- outcome{decision: d, err: err}
	}()

	var res outcome
	select {
	case res = <-results:
	case <-decideCtx.Done():
		return nil, &domain.RoutingError{
			Reason: fmt.Sprintf("routing timed out after %s", s.routingTimeout),
			Step:   state.Step,
			Err:    decideCtx.Err(),
		}
	}
	if res.err != nil {
		var rerr *domain.RoutingError
		if errors.As(res.err, &rerr) {
			return nil, rerr
		}
		return nil, &domain.RoutingError{
			Reason: "policy error",
			Step:   state.Step,
			Err:    res.err,
		}
	}
	if err := res.decision.Validate(state.Step); err != nil {
		var rerr *domain.RoutingError
		errors.As(err, &rerr)
		return nil, rerr
	}
	if !res.decision.Terminal() {
		if _, ok := s.registry.Get(res.decision.Actor); !ok {
			return nil, &domain.RoutingError{
				Reason: fmt.Sprintf("executor %q is not registered", res.decision.Actor),
				Step:   state.Step,
				Actor:  res.decision.Actor,
			}
		}
	}
	return res.decision, nil
}

// executeStep runs one executor and commits its outcome. Failures are
// committed steps like successes; the next routing pass decides recovery.
func (s *Supervisor) executeStep(ctx context.Context, state *domain.ConversationState, turnID, userMessage string, decision *domain.RoutingDecision, turnRuns map[string]int) (*domain.ConversationState, error) {
	name := decision.Actor
	exec, ok := s.registry.Get(name)
	if !ok {
		// route already vetted membership; registries are append-only.
		return nil, fmt.Errorf("executor %q disappeared from the registry", name)
	}

	s.emit(ctx, domain.ExecutionEvent{
		Type:           domain.EventAgentStarted,
		ConversationID: state.ID,
		AgentName:      name,
		Message:        decision.Rationale,
		Data:           map[string]any{"step": state.Step},
	})
	if s.hooks.OnExecutorStart != nil {
		s.hooks.OnExecutorStart(ctx, state.ID, name, state.Step)
	}
	s.logger.Info("executor started",
		"conversation_id", state.ID,
		"executor", name,
		"step", state.Step,
	)

	task := ports.Task{
		ConversationID: state.ID,
		TurnID:         turnID,
		Step:           state.Step,
		UserMessage:    userMessage,
		Rationale:      decision.Rationale,
		State:          state.Clone(),
	}
	runCtx := ports.WithProgress(ctx, &progressReporter{supervisor: s, conversationID: state.ID, executor: name})

	started := time.Now().UTC()
	result, failure := s.harness.Run(runCtx, exec, task)
	completed := time.Now().UTC()
	elapsed := completed.Sub(started)

	turnRuns[name]++

	delta := domain.Delta{
		Executor:    name,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMS:  elapsed.Milliseconds(),
		Phase:       domain.PhaseRouting,
		Routing: &domain.RoutingRecord{
			TurnID:    turnID,
			Actor:     name,
			Rationale: decision.Rationale,
		},
	}
	if failure != nil {
		delta.Status = domain.ExecFailed
		delta.Failure = fmt.Sprintf("%s: %s", failure.Kind, failure.Detail)
	} else {
		delta.Status = domain.ExecCompleted
		delta.Messages = result.Messages
		delta.Scratch = result.Scratch
	}

	next, err := s.commit(ctx, state, delta)
	if err != nil {
		return nil, err
	}

	if failure != nil {
		s.metrics.executorRan(name, "failed", elapsed)
		s.logger.Warn("executor failed",
			"conversation_id", next.ID,
			"executor", name,
			"kind", string(failure.Kind),
			"err", failure,
		)
		s.emit(ctx, domain.ExecutionEvent{
			Type:           domain.EventError,
			ConversationID: next.ID,
			AgentName:      name,
			Message:        failure.Detail,
			Data: map[string]any{
				"kind": string(failure.Kind),
				"step": next.Step,
			},
		})
		if s.hooks.OnExecutorEnd != nil {
			s.hooks.OnExecutorEnd(ctx, next.ID, name, next.Step, failure)
		}
		return next, nil
	}

	s.metrics.executorRan(name, "completed", elapsed)
	summary := result.Summary
	if summary == "" && len(result.Messages) > 0 {
		summary = result.Messages[0].Text
	}
	s.logger.Info("executor completed",
		"conversation_id", next.ID,
		"executor", name,
		"step", next.Step,
		"duration_ms", elapsed.Milliseconds(),
	)
	s.emit(ctx, domain.ExecutionEvent{
		Type:           domain.EventAgentCompleted,
		ConversationID: next.ID,
		AgentName:      name,
		Message:        summary,
		Data: map[string]any{
			"step":        next.Step,
			"duration_ms": elapsed.Milliseconds(),
		},
	})
	if s.hooks.OnExecutorEnd != nil {
		s.hooks.OnExecutorEnd(ctx, next.ID, name, next.Step, nil)
	}
	return next, nil
}

// finishTerminal commits the decision that ends the turn: a final answer,
// a clarifying question, or a policy-decided escalation to failed.
func (s *Supervisor) finishTerminal(ctx context.Context, state *domain.ConversationState, turnID string, baseStep uint64, decision *domain.RoutingDecision) (*TurnResult, error) {
	var phase domain.Phase
	switch decision.Actor {
	case domain.ActorRespond:
		phase = domain.PhaseResponding
	case domain.ActorClarify:
		phase = domain.PhaseClarifying
	case domain.ActorFail:
		phase = domain.PhaseFailed
	}

	answer := decision.Answer
	if answer == "" {
		switch decision.Actor {
		case domain.ActorRespond:
			answer = "Done."
		case domain.ActorClarify:
			answer = "Could you tell me more about what you need?"
		}
	}

	delta := domain.Delta{
		Phase: phase,
		Routing: &domain.RoutingRecord{
			TurnID:    turnID,
			Actor:     decision.Actor,
			Rationale: decision.Rationale,
		},
	}
	if answer != "" {
		delta.Messages = []domain.Message{{Role: domain.RoleAssistant, Text: answer}}
	}
	next, err := s.commit(ctx, state, delta)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		ConversationID: next.ID,
		Response:       answer,
		Outcome:        phase,
		Steps:          int(next.Step - baseStep),
		MessageCount:   next.MessageCount(),
		State:          next,
	}

	if phase == domain.PhaseFailed {
		result.Err = fmt.Errorf("turn escalated to failure: %s", decision.Rationale)
		s.logger.Error("turn failed",
			"conversation_id", next.ID,
			"turn_id", turnID,
			"rationale", decision.Rationale,
		)
		s.emit(ctx, domain.ExecutionEvent{
			Type:           domain.EventError,
			ConversationID: next.ID,
			Message:        answer,
			Data: map[string]any{
				"outcome":   string(phase),
				"rationale": decision.Rationale,
			},
		})
	} else {
		s.logger.Info("turn finished",
			"conversation_id", next.ID,
			"turn_id", turnID,
			"outcome", string(phase),
			"steps", result.Steps,
		)
		s.emit(ctx, domain.ExecutionEvent{
			Type:           domain.EventAgentCompleted,
			ConversationID: next.ID,
			AgentName:      "supervisor",
			Message:        answer,
			Data:           map[string]any{"outcome": string(phase)},
		})
	}

	s.metrics.turnFinished(string(phase))
	if s.hooks.OnTurnEnd != nil {
		s.hooks.OnTurnEnd(ctx, next.Clone(), phase)
	}
	return result, nil
}

// finishFailed commits the failed phase after an unrecoverable routing
// error. The conversation accepts new input afterwards; nothing about the
// turn is rolled back.
func (s *Supervisor) finishFailed(ctx context.Context, state *domain.ConversationState, turnID string, baseStep uint64, rerr *domain.RoutingError) (*TurnResult, error) {
	delta := domain.Delta{
		Phase: domain.PhaseFailed,
		Routing: &domain.RoutingRecord{
			TurnID:    turnID,
			Actor:     domain.ActorFail,
			Rationale: rerr.Reason,
		},
	}
	next, err := s.commit(ctx, state, delta)
	if err != nil {
		return nil, err
	}

	s.logger.Error("turn failed",
		"conversation_id", next.ID,
		"turn_id", turnID,
		"err", rerr,
	)
	s.emit(ctx, domain.ExecutionEvent{
		Type:           domain.EventError,
		ConversationID: next.ID,
		Message:        rerr.Error(),
		Data: map[string]any{
			"outcome": string(domain.PhaseFailed),
			"step":    next.Step,
		},
	})
	s.metrics.turnFinished(string(domain.PhaseFailed))
	if s.hooks.OnTurnEnd != nil {
		s.hooks.OnTurnEnd(ctx, next.Clone(), domain.PhaseFailed)
	}

	return &TurnResult{
		ConversationID: next.ID,
		Outcome:        domain.PhaseFailed,
		Steps:          int(next.Step - baseStep),
		MessageCount:   next.MessageCount(),
		State:          next,
		Err:            rerr,
	}, nil
}

// commit applies one delta under compare-and-swap on the step counter. A
// stale write means another committer landed a step first; the delta is
// re-applied on the fresh state so finished work is never redone. Every
// successful commit is checkpointed.
func (s *Supervisor) commit(ctx context.Context, state *domain.ConversationState, delta domain.Delta) (*domain.ConversationState, error) {
	id := state.ID
	expected := state.Step
	for attempt := 1; ; attempt++ {
		next, err := s.store.Commit(ctx, id, expected, delta)
		if err == nil {
			s.metrics.stepCommitted()
			s.checkpoints.Record(ctx, next)
			if s.hooks.OnStepCommit != nil {
				s.hooks.OnStepCommit(ctx, next.Clone())
			}
			return next, nil
		}

		var stale *domain.StaleWriteError
		if !errors.As(err, &stale) || attempt >= maxCommitAttempts {
			return nil, err
		}
		s.metrics.staleWrite()
		s.logger.Warn("stale step commit, re-applying delta",
			"conversation_id", id,
			"expected_step", stale.ExpectedStep,
			"actual_step", stale.ActualStep,
		)
		fresh, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected = fresh.Step
	}
}

// progressReporter forwards executor progress lines as agent_progress
// events.
type progressReporter struct {
	supervisor     *Supervisor
	conversationID string
	executor       string
}

func (p *progressReporter) Report(ctx context.Context, message string, data map[string]any) {
	p.supervisor.emit(ctx, domain.ExecutionEvent{
		Type:           domain.EventAgentProgress,
		ConversationID: p.conversationID,
		AgentName:      p.executor,
		Message:        message,
		Data:           data,
	})
}
