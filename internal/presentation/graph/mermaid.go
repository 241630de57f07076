// Package graph renders a conversation's routing history as a Mermaid
// flowchart, for inspection from the CLI or a pasted-into-docs diagram.
package graph

import (
	"fmt"
	"strings"

	"github.com/droverlabs/drover/pkg/domain"
)

// GenerateMermaid produces Mermaid flowchart syntax for the conversation's
// routing history. Semantic shapes:
//   - supervisor: ((circle))
//   - executors: [[subroutine]]
//   - respond/clarify/fail terminals: [/parallelogram/]
//
// Executor nodes carry an overlay class from their last-known status, so a
// failed stage stands out in the rendered chart.
func GenerateMermaid(state *domain.ConversationState) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    supervisor((\"supervisor\"))\n")

	declared := map[string]bool{"supervisor": true}
	declare := func(actor string) string {
		safeID := sanitizeMermaidID(actor)
		if declared[safeID] {
			return safeID
		}
		declared[safeID] = true

		opener, closer := "[[", "]]"
		if isTerminal(actor) {
			opener, closer = "[/", "/]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, actor, closer))
		return safeID
	}

	lastTurn := ""
	for _, record := range state.Routing {
		safeTo := declare(record.Actor)

		// A dashed hand-off marks the first decision of each new turn.
		arrow := "-->"
		if record.TurnID != lastTurn {
			arrow = "-.->"
			lastTurn = record.TurnID
		}

		label := fmt.Sprintf("step %d", record.Step)
		if record.Rationale != "" {
			label = strings.ReplaceAll(record.Rationale, "\"", "'")
		}
		sb.WriteString(fmt.Sprintf("    supervisor %s|\"%s\"| %s\n", arrow, label, safeTo))

		// Executors return control to the supervisor; terminals end the turn.
		if !isTerminal(record.Actor) {
			sb.WriteString(fmt.Sprintf("    %s --> supervisor\n", safeTo))
		}
	}

	writeOverlay(&sb, state, declared)
	return sb.String()
}

// writeOverlay styles executor nodes by their last-known status.
func writeOverlay(sb *strings.Builder, state *domain.ConversationState, declared map[string]bool) {
	if len(state.Executors) == 0 {
		return
	}
	sb.WriteString("\n    %% Status Styles\n")
	// Force black text for contrast regardless of the viewer theme.
	sb.WriteString("    classDef completed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffebee,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef running fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	for _, name := range domain.ExecutorNames {
		es, ok := state.Executors[name]
		safeID := sanitizeMermaidID(name)
		if !ok || !declared[safeID] {
			continue
		}
		switch es.Status {
		case domain.ExecCompleted:
			sb.WriteString(fmt.Sprintf("    class %s completed;\n", safeID))
		case domain.ExecFailed:
			sb.WriteString(fmt.Sprintf("    class %s failed;\n", safeID))
		case domain.ExecRunning:
			sb.WriteString(fmt.Sprintf("    class %s running;\n", safeID))
		}
	}
}

func isTerminal(actor string) bool {
	switch actor {
	case domain.ActorRespond, domain.ActorClarify, domain.ActorFail:
		return true
	}
	return false
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
