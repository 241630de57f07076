package routing

import (
	"fmt"
	"strings"

	"github.com/droverlabs/drover/pkg/domain"
)

// composeAnswer builds the final response once every requested stage holds
// a result, preferring the richest artifact the turn produced.
func composeAnswer(view domain.RoutingView, in intent) string {
	if in.wants[domain.ExecutorReport] {
		if report, ok := view.Scratch(domain.ExecutorReport)["report"].(string); ok && report != "" {
			answer := report
			if in.wants[domain.ExecutorNotify] {
				answer += "\n\n" + notifyConfirmation(view)
			}
			return answer
		}
	}

	if in.wants[domain.ExecutorQuery] {
		if plan := view.Scratch(domain.ExecutorQuery); plan != nil {
			if question, ok := plan["question"].(string); ok && question != "" {
				return fmt.Sprintf("Here is the query plan for %q: %s", question, planSummary(plan))
			}
			return "Here is the query plan: " + planSummary(plan)
		}
	}

	var lines []string
	if in.wants[domain.ExecutorAnalysis] {
		if line := analysisSummary(view); line != "" {
			lines = append(lines, line)
		}
	}
	if in.wants[domain.ExecutorIngestion] && len(lines) == 0 {
		if count, ok := view.Scratch(domain.ExecutorIngestion)["count"]; ok {
			lines = append(lines, fmt.Sprintf("Ingestion finished with %v records ready.", count))
		}
	}
	if in.wants[domain.ExecutorNotify] {
		lines = append(lines, notifyConfirmation(view))
	}
	if len(lines) == 0 {
		lines = append(lines, "Done. Everything you asked for is complete.")
	}
	return strings.Join(lines, " ")
}

func analysisSummary(view domain.RoutingView) string {
	metrics, ok := view.Scratch(domain.ExecutorAnalysis)["metrics"].(map[string]any)
	if !ok {
		return ""
	}
	line := fmt.Sprintf("Analysis complete over %v records.", metrics["record_count"])
	if top, ok := metrics["top_region"].(string); ok && top != "" {
		line += fmt.Sprintf(" Top region: %s.", top)
	}
	return line
}

func notifyConfirmation(view domain.RoutingView) string {
	if channel, ok := view.Scratch(domain.ExecutorNotify)["channel"].(string); ok && channel != "" {
		return fmt.Sprintf("Notification sent via %s with the results.", channel)
	}
	return "Notification sent with the results."
}

func planSummary(plan map[string]any) string {
	query, ok := plan["query"].(map[string]any)
	if !ok {
		return "no plan available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%v(%v)", query["operation"], query["field"])
	if filters, ok := query["filters"].(map[string]any); ok {
		for field, value := range filters {
			fmt.Fprintf(&b, " where %s = %v", field, value)
		}
	}
	if groupBy, ok := query["group_by"].(string); ok && groupBy != "" {
		fmt.Fprintf(&b, " grouped by %s", groupBy)
	}
	return b.String()
}

// clarifyQuestion asks the user to restate a request the rules could not
// map to any stage.
func clarifyQuestion(view domain.RoutingView) string {
	if strings.TrimSpace(view.UserMessage) == "" {
		return "What would you like me to do? I can ingest data, run analysis, build reports, translate questions into queries, or send notifications."
	}
	return fmt.Sprintf("I could not tell what you need from %q. I can ingest data, run analysis, build reports, translate questions into queries, or send notifications. Which should it be?",
		strings.TrimSpace(view.UserMessage))
}
