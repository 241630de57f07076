package drover_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/droverlabs/drover"
	"github.com/droverlabs/drover/pkg/domain"
)

func TestFacadeRunsTurn(t *testing.T) {
	engine, err := drover.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	result, err := engine.Handle(ctx, drover.TurnRequest{
		Message: "Generate a report on the sales numbers",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Outcome != domain.PhaseResponding {
		t.Errorf("Outcome = %s, want %s", result.Outcome, domain.PhaseResponding)
	}
	if result.Response == "" {
		t.Error("expected a response")
	}

	state, err := engine.Get(ctx, result.ConversationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Phase != domain.PhaseResponding {
		t.Errorf("stored phase = %s, want %s", state.Phase, domain.PhaseResponding)
	}
	if state.UserID != "user-1" {
		t.Errorf("stored user = %q, want user-1", state.UserID)
	}
}

func TestRunnerChatLoop(t *testing.T) {
	engine, err := drover.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	var out bytes.Buffer
	runner := &drover.Runner{
		Input:  strings.NewReader("load the sales data\nexit\n"),
		Output: &out,
	}
	if err := runner.Run(context.Background(), engine); err != nil {
		t.Fatalf("Run: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "Bye!") {
		t.Errorf("expected exit banner, got: %q", output)
	}
	if runner.ConversationID == "" {
		t.Error("expected the runner to hold the conversation id after a turn")
	}

	state, err := engine.Get(context.Background(), runner.ConversationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Phase != domain.PhaseResponding {
		t.Errorf("phase = %s, want %s", state.Phase, domain.PhaseResponding)
	}
}

func TestRunnerHeadlessHandlesEOF(t *testing.T) {
	engine, err := drover.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	var out bytes.Buffer
	runner := &drover.Runner{
		// no trailing newline; the final line still runs as a turn
		Input:    strings.NewReader("load the sales data"),
		Output:   &out,
		Headless: true,
	}
	if err := runner.Run(context.Background(), engine); err != nil {
		t.Fatalf("Run: %v", err)
	}

	output := out.String()
	if strings.Contains(output, "---") {
		t.Errorf("headless run printed the banner: %q", output)
	}
	if strings.TrimSpace(output) == "" {
		t.Error("expected the response to be printed")
	}
}

func TestRunnerRendererRewritesResponse(t *testing.T) {
	engine, err := drover.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	var out bytes.Buffer
	runner := &drover.Runner{
		Input:    strings.NewReader("load the sales data\n"),
		Output:   &out,
		Headless: true,
		Renderer: func(s string) (string, error) {
			return "rendered: " + s, nil
		},
	}
	if err := runner.Run(context.Background(), engine); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "rendered: ") {
		t.Errorf("renderer not applied: %q", out.String())
	}
}
