package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// QueryTranslation turns a natural-language question into a structured
// query plan other systems can execute: an aggregate operation, a target
// field, optional filters and grouping.
type QueryTranslation struct{}

// NewQueryTranslation creates the query translation executor.
func NewQueryTranslation() *QueryTranslation { return &QueryTranslation{} }

// Name implements ports.Executor.
func (e *QueryTranslation) Name() string { return domain.ExecutorQuery }

var operationKeywords = []struct {
	operation string
	keywords  []string
}{
	{"sum", []string{"total", "sum", "overall"}},
	{"mean", []string{"average", "mean", "typical"}},
	{"max", []string{"highest", "largest", "max", "top", "best"}},
	{"min", []string{"lowest", "smallest", "min", "worst"}},
	{"count", []string{"how many", "count", "number of"}},
}

var fieldKeywords = []struct {
	field    string
	keywords []string
}{
	{"amount", []string{"amount", "revenue", "sales", "value", "deal"}},
	{"closed", []string{"closed", "won", "complete"}},
	{"id", []string{"record", "entry", "row"}},
}

var knownRegions = []string{"north", "south", "east", "west"}

// Execute implements ports.Executor.
func (e *QueryTranslation) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	question := strings.TrimSpace(task.UserMessage)
	if question == "" {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureInvalidOutput,
			Detail:   "no question to translate",
		}
	}
	lower := strings.ToLower(question)

	ports.ProgressFromContext(ctx).Report(ctx, "translating question", nil)

	operation := "count"
	for _, entry := range operationKeywords {
		if containsAny(lower, entry.keywords) {
			operation = entry.operation
			break
		}
	}

	field := "amount"
	for _, entry := range fieldKeywords {
		if containsAny(lower, entry.keywords) {
			field = entry.field
			break
		}
	}

	filters := map[string]any{}
	for _, region := range knownRegions {
		if strings.Contains(lower, region) {
			filters["region"] = region
			break
		}
	}

	groupBy := ""
	if strings.Contains(lower, "by region") || strings.Contains(lower, "per region") ||
		strings.Contains(lower, "each region") {
		groupBy = "region"
	}

	plan := map[string]any{
		"operation": operation,
		"field":     field,
	}
	if len(filters) > 0 {
		plan["filters"] = filters
	}
	if groupBy != "" {
		plan["group_by"] = groupBy
	}

	return &ports.ExecutorResult{
		Messages: []domain.Message{{
			Role: domain.RoleAssistant,
			Text: fmt.Sprintf("Translated the question into a query plan: %s.", describePlan(plan)),
		}},
		Scratch: map[string]any{
			scratchQuery: plan,
			"question":   question,
		},
		Summary: fmt.Sprintf("translated question to %s(%s)", operation, field),
	}, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func describePlan(plan map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", plan["operation"], plan["field"])
	if filters, ok := plan["filters"].(map[string]any); ok {
		for field, value := range filters {
			fmt.Fprintf(&b, " where %s = %v", field, value)
		}
	}
	if groupBy, ok := plan["group_by"].(string); ok {
		fmt.Fprintf(&b, " grouped by %s", groupBy)
	}
	return b.String()
}
