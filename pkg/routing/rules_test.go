package routing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/routing"
)

func view(message string, step uint64) domain.RoutingView {
	return domain.RoutingView{
		ConversationID: "conv-1",
		Step:           step,
		UserMessage:    message,
		Executors:      map[string]domain.ExecutorState{},
		TurnRuns:       map[string]int{},
	}
}

func decide(t *testing.T, v domain.RoutingView) *domain.RoutingDecision {
	t.Helper()
	decision, err := routing.NewRules().Decide(context.Background(), v)
	require.NoError(t, err)
	require.NoError(t, decision.Validate(v.Step))
	return decision
}

func TestPipelineProgression(t *testing.T) {
	const request = "Summarize our q3 sales pipeline"

	v := view(request, 1)
	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorIngestion, decision.Actor, "fresh request starts at ingestion")

	v.Executors[domain.ExecutorIngestion] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"count": 3},
	}
	v.TurnRuns[domain.ExecutorIngestion] = 1
	v.Step = 2
	decision = decide(t, v)
	assert.Equal(t, domain.ExecutorAnalysis, decision.Actor, "ingested data flows to analysis")

	v.Executors[domain.ExecutorAnalysis] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"metrics": map[string]any{"record_count": 3, "top_region": "north"}},
	}
	v.TurnRuns[domain.ExecutorAnalysis] = 1
	v.Step = 3
	decision = decide(t, v)
	assert.Equal(t, domain.ExecutorReport, decision.Actor, "analysis flows to report")

	v.Executors[domain.ExecutorReport] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"report": "# Summary Report\n\nRecords analyzed: 3"},
	}
	v.TurnRuns[domain.ExecutorReport] = 1
	v.Step = 4
	decision = decide(t, v)
	assert.Equal(t, domain.ActorRespond, decision.Actor, "complete pipeline responds")
	assert.Contains(t, decision.Answer, "# Summary Report")
}

func TestDecisionCarriesViewStep(t *testing.T) {
	v := view("summarize the sales data", 9)
	decision := decide(t, v)
	assert.Equal(t, uint64(9), decision.Step)
}

func TestRetryThenEscalate(t *testing.T) {
	v := view("analyze the sales numbers", 5)
	v.Executors[domain.ExecutorIngestion] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"count": 3},
	}
	v.Executors[domain.ExecutorAnalysis] = domain.ExecutorState{
		Status:    domain.ExecFailed,
		LastError: "run exceeded 30s",
	}
	v.TurnRuns[domain.ExecutorAnalysis] = 1

	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorAnalysis, decision.Actor, "first failure retries")
	assert.Contains(t, decision.Rationale, "attempt 2 of 2")

	v.TurnRuns[domain.ExecutorAnalysis] = 2
	decision = decide(t, v)
	assert.Equal(t, domain.ActorFail, decision.Actor, "attempt budget exhausted escalates")
	assert.Contains(t, decision.Answer, "analysis")
}

func TestUnrecognizedRequestClarifies(t *testing.T) {
	decision := decide(t, view("purple monkey dishwasher", 0))
	assert.Equal(t, domain.ActorClarify, decision.Actor)
	assert.Contains(t, decision.Answer, "purple monkey dishwasher")
	assert.Contains(t, decision.Answer, "ingest data")
}

func TestQuestionRoutesToQueryTranslation(t *testing.T) {
	v := view("what is the total revenue in the north region?", 1)
	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorQuery, decision.Actor)

	v.Executors[domain.ExecutorQuery] = domain.ExecutorState{
		Status: domain.ExecCompleted,
		Scratch: map[string]any{
			"question": "what is the total revenue in the north region?",
			"query":    map[string]any{"operation": "sum", "field": "amount", "filters": map[string]any{"region": "north"}},
		},
	}
	v.TurnRuns[domain.ExecutorQuery] = 1
	v.Step = 2
	decision = decide(t, v)
	assert.Equal(t, domain.ActorRespond, decision.Actor)
	assert.Contains(t, decision.Answer, "sum(amount)")
	assert.Contains(t, decision.Answer, "region = north")
}

func TestNotificationRequestExtendsPipeline(t *testing.T) {
	v := view("email me a report on the sales data", 1)
	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorIngestion, decision.Actor,
		"notifying about results implies producing them first")

	v.Executors[domain.ExecutorIngestion] = domain.ExecutorState{Status: domain.ExecCompleted, Scratch: map[string]any{"count": 3}}
	v.Executors[domain.ExecutorAnalysis] = domain.ExecutorState{Status: domain.ExecCompleted, Scratch: map[string]any{"metrics": map[string]any{"record_count": 3}}}
	v.Executors[domain.ExecutorReport] = domain.ExecutorState{Status: domain.ExecCompleted, Scratch: map[string]any{"report": "# Summary Report"}}
	v.TurnRuns = map[string]int{
		domain.ExecutorIngestion: 1,
		domain.ExecutorAnalysis:  1,
		domain.ExecutorReport:    1,
	}
	v.Step = 4
	decision = decide(t, v)
	assert.Equal(t, domain.ExecutorNotify, decision.Actor, "notification runs after the report exists")

	v.Executors[domain.ExecutorNotify] = domain.ExecutorState{Status: domain.ExecCompleted, Scratch: map[string]any{"channel": "email", "delivered": true}}
	v.TurnRuns[domain.ExecutorNotify] = 1
	v.Step = 5
	decision = decide(t, v)
	assert.Equal(t, domain.ActorRespond, decision.Actor)
	assert.Contains(t, decision.Answer, "via email")
}

// Results persist across turns: a second request that needs already-ingested
// data skips straight to the new work.
func TestCompletedStagesAreNotRerunAcrossTurns(t *testing.T) {
	v := view("now analyze those sales numbers", 7)
	v.Executors[domain.ExecutorIngestion] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"count": 12},
	}
	// the ingestion run happened in an earlier turn
	v.TurnRuns = map[string]int{}

	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorAnalysis, decision.Actor)
}

func TestQuestionsAreReaskedEachTurn(t *testing.T) {
	v := view("how many records do we have?", 11)
	v.Executors[domain.ExecutorQuery] = domain.ExecutorState{
		Status:  domain.ExecCompleted,
		Scratch: map[string]any{"query": map[string]any{"operation": "sum", "field": "amount"}},
	}
	// completed in a previous turn, not this one
	v.TurnRuns = map[string]int{}

	decision := decide(t, v)
	assert.Equal(t, domain.ExecutorQuery, decision.Actor,
		"a fresh question needs a fresh translation")
}
