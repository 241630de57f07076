package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Report renders the analysis metrics into a readable markdown summary.
type Report struct {
	printer *message.Printer
}

// NewReport creates the report generation executor.
func NewReport() *Report {
	return &Report{printer: message.NewPrinter(language.English)}
}

// Name implements ports.Executor.
func (e *Report) Name() string { return domain.ExecutorReport }

// Execute implements ports.Executor.
func (e *Report) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	analyzed := task.State.Executors[domain.ExecutorAnalysis]
	metrics := metricsFrom(analyzed.Scratch)
	if metrics == nil {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureInvalidOutput,
			Detail:   "no analysis metrics to report on; analysis must run first",
		}
	}

	ports.ProgressFromContext(ctx).Report(ctx, "rendering report", nil)

	report := e.render(task, metrics)
	return &ports.ExecutorResult{
		Messages: []domain.Message{{
			Role: domain.RoleAssistant,
			Text: report,
		}},
		Scratch: map[string]any{
			scratchReport:  report,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
		Summary: "report generated",
	}, nil
}

func (e *Report) render(task ports.Task, metrics map[string]any) string {
	var b strings.Builder

	source := "dataset"
	if ingested := task.State.Executors[domain.ExecutorIngestion]; ingested.Scratch != nil {
		if s, ok := ingested.Scratch[scratchSource].(string); ok && s != "" {
			source = s
		}
	}
	fmt.Fprintf(&b, "# Summary Report: %s\n\n", source)

	if count, ok := numberFrom(metrics["record_count"]); ok {
		fmt.Fprintf(&b, "Records analyzed: %s\n\n", e.printer.Sprintf("%d", int64(count)))
	}

	if fields, ok := metrics["fields"].(map[string]any); ok && len(fields) > 0 {
		b.WriteString("## Metrics\n\n")
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stats, ok := fields[name].(map[string]any)
			if !ok {
				continue
			}
			sum, _ := numberFrom(stats["sum"])
			mean, _ := numberFrom(stats["mean"])
			min, _ := numberFrom(stats["min"])
			max, _ := numberFrom(stats["max"])
			fmt.Fprintf(&b, "- **%s**: total %s, mean %s, range %s to %s\n",
				name,
				e.printer.Sprintf("%.2f", sum),
				e.printer.Sprintf("%.2f", mean),
				e.printer.Sprintf("%.2f", min),
				e.printer.Sprintf("%.2f", max))
		}
		b.WriteString("\n")
	}

	if groups := groupsFrom(metrics["by_region"]); len(groups) > 0 {
		b.WriteString("## By Region\n\n")
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, e.printer.Sprintf("%.2f", groups[name]))
		}
		if top, ok := metrics["top_region"].(string); ok && top != "" {
			fmt.Fprintf(&b, "\nTop region: **%s**\n", top)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// groupsFrom reads region totals back regardless of store decoding.
func groupsFrom(raw any) map[string]float64 {
	switch v := raw.(type) {
	case map[string]float64:
		return v
	case map[string]any:
		out := make(map[string]float64, len(v))
		for name, val := range v {
			if n, ok := numberFrom(val); ok {
				out[name] = n
			}
		}
		return out
	}
	return nil
}
