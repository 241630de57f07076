package routing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/routing"
)

func completionGateway(t *testing.T, complete capability.CompleterFunc) *capability.Gateway {
	t.Helper()
	g := capability.NewGateway(capability.WithLogger(logging.NewNop()))
	capability.RegisterCompleter(g, complete)
	return g
}

func staticCompletion(completion string) capability.CompleterFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return completion, nil
	}
}

func TestModelPolicyDecodesFencedDecision(t *testing.T) {
	completion := "Next step reasoning.\n```json\n{\"actor\": \"analysis\", \"rationale\": \"metrics are missing\"}\n```"
	policy := routing.NewModelPolicy(completionGateway(t, staticCompletion(completion)))

	decision, err := policy.Decide(context.Background(), domain.RoutingView{
		Step:        3,
		UserMessage: "analyze the sales figures",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutorAnalysis, decision.Actor)
	assert.Equal(t, "metrics are missing", decision.Rationale)
	assert.Equal(t, uint64(3), decision.Step)
}

func TestModelPolicyCarriesTerminalAnswer(t *testing.T) {
	completion := `{"actor": "respond", "rationale": "done", "answer": "All finished."}`
	policy := routing.NewModelPolicy(completionGateway(t, staticCompletion(completion)))

	decision, err := policy.Decide(context.Background(), domain.RoutingView{Step: 5})
	require.NoError(t, err)

	assert.Equal(t, domain.ActorRespond, decision.Actor)
	assert.Equal(t, "All finished.", decision.Answer)
}

func TestModelPolicyRejectsProseOnlyCompletion(t *testing.T) {
	policy := routing.NewModelPolicy(completionGateway(t, staticCompletion("I think analysis should run next.")))

	_, err := policy.Decide(context.Background(), domain.RoutingView{Step: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestModelPolicyPropagatesCompleterError(t *testing.T) {
	policy := routing.NewModelPolicy(completionGateway(t, func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model unavailable")
	}))

	_, err := policy.Decide(context.Background(), domain.RoutingView{Step: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestModelPolicyStampsViewStep(t *testing.T) {
	// the decision must carry the step of the view it was computed from,
	// even when the completion claims another one
	completion := `{"actor": "report", "step": 99}`
	policy := routing.NewModelPolicy(completionGateway(t, staticCompletion(completion)))

	decision, err := policy.Decide(context.Background(), domain.RoutingView{Step: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), decision.Step)
}

func TestModelPolicyPromptCarriesExecutorState(t *testing.T) {
	var seen string
	policy := routing.NewModelPolicy(completionGateway(t, func(ctx context.Context, prompt string) (string, error) {
		seen = prompt
		return `{"actor": "data_ingestion"}`, nil
	}))

	_, err := policy.Decide(context.Background(), domain.RoutingView{
		Step:        2,
		UserMessage: "build the report",
		Executors: map[string]domain.ExecutorState{
			domain.ExecutorIngestion: {Status: domain.ExecFailed, LastError: "timeout: run exceeded 30s"},
		},
		TurnRuns: map[string]int{domain.ExecutorIngestion: 1},
	})
	require.NoError(t, err)

	for _, want := range []string{
		"build the report",
		"data_ingestion: failed",
		"runs this turn: 1",
		"timeout: run exceeded 30s",
	} {
		assert.Contains(t, seen, want)
	}
}
