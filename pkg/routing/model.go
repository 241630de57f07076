package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// ModelPolicy routes by asking the model_complete capability for the next
// actor. The completion must contain one JSON object naming the actor; a
// completion that cannot be decoded fails the decision rather than
// defaulting to an executor.
type ModelPolicy struct {
	gateway ports.CapabilityGateway
}

// NewModelPolicy creates a completion-backed policy on the given gateway.
// The gateway must have a model_complete capability registered.
func NewModelPolicy(gateway ports.CapabilityGateway) *ModelPolicy {
	return &ModelPolicy{gateway: gateway}
}

var _ ports.RoutingPolicy = (*ModelPolicy)(nil)

// Decide implements ports.RoutingPolicy.
func (p *ModelPolicy) Decide(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
	payload, err := p.gateway.Call(ctx, capability.CapModelComplete, map[string]any{
		"prompt": routingPrompt(view),
	})
	if err != nil {
		return nil, fmt.Errorf("completion routing: %w", err)
	}
	result, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("completion routing: unexpected payload %T", payload)
	}
	completion, _ := result["completion"].(string)

	raw := jsonObject(completion)
	if raw == "" {
		return nil, fmt.Errorf("completion routing: no JSON object in completion %q", completion)
	}
	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("completion routing: %w", err)
	}

	var wire struct {
		Actor     string `mapstructure:"actor"`
		Rationale string `mapstructure:"rationale"`
		Answer    string `mapstructure:"answer"`
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &wire,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(loose); err != nil {
		return nil, fmt.Errorf("completion routing: %w", err)
	}

	return &domain.RoutingDecision{
		Actor:     wire.Actor,
		Rationale: wire.Rationale,
		Answer:    wire.Answer,
		Step:      view.Step,
	}, nil
}

// routingPrompt renders the view into a deterministic prompt. Only the
// fields a router needs go in: the request, executor statuses and the
// per-turn run counts.
func routingPrompt(view domain.RoutingView) string {
	var b strings.Builder
	b.WriteString("You are the routing supervisor for a data assistant.\n")
	b.WriteString("Pick the next actor for the conversation and answer with one JSON object like\n")
	b.WriteString(`{"actor": "...", "rationale": "...", "answer": "..."}`)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Actors: %s, %s, %s, %s.\n",
		strings.Join(domain.ExecutorNames, ", "), domain.ActorRespond, domain.ActorClarify, domain.ActorFail)
	b.WriteString("Use answer only with respond, clarify or fail.\n\n")
	fmt.Fprintf(&b, "User request: %s\n", view.UserMessage)

	var lines []string
	for _, name := range domain.ExecutorNames {
		es, ok := view.Executors[name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("- %s: %s (runs this turn: %d", name, es.Status, view.Ran(name))
		if es.LastError != "" {
			line += ", last error: " + es.LastError
		}
		lines = append(lines, line+")")
	}
	if len(lines) > 0 {
		b.WriteString("Executor state:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// jsonObject cuts the outermost JSON object out of a completion, tolerating
// prose or code fences around it.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
