package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
)

// CapModelComplete is the prompt-completion capability name.
const CapModelComplete = "model_complete"

// Completer produces a completion for a prompt. It abstracts whatever model
// endpoint a deployment wires in; routing policies and executors only ever
// see the capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type modelCompleteArgs struct {
	Prompt string `mapstructure:"prompt"`
}

// RegisterCompleter exposes the completer as the model_complete capability.
func RegisterCompleter(g *Gateway, completer Completer) {
	g.Register(Capability{
		Name:        CapModelComplete,
		Description: "Complete a prompt with the configured model",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in modelCompleteArgs
			if err := decodeArgs(CapModelComplete, args, &in); err != nil {
				return nil, err
			}
			if in.Prompt == "" {
				return nil, InvalidArgs(CapModelComplete, "prompt is required")
			}
			text, err := completer.Complete(ctx, in.Prompt)
			if err != nil {
				return nil, &domain.CapabilityFailure{
					Capability: CapModelComplete,
					Kind:       domain.CapabilityUpstream,
					Detail:     err.Error(),
					Err:        err,
				}
			}
			return map[string]any{"completion": text}, nil
		},
	})
}

// HTTPCompleter calls an HTTP completion endpoint with a JSON body of
// {"model": ..., "prompt": ...} and expects {"completion": ...} back.
type HTTPCompleter struct {
	client *http.Client
	url    string
	model  string
}

// NewHTTPCompleter creates a completer against the given endpoint.
func NewHTTPCompleter(client *http.Client, url, model string) *HTTPCompleter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPCompleter{client: client, url: url, model: model}
}

// Complete implements Completer.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"model":  c.model,
		"prompt": prompt,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	var out struct {
		Completion string `json:"completion"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	return out.Completion, nil
}
