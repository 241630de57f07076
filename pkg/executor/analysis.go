package executor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Analysis computes summary statistics over the records the ingestion
// executor left in scratch: per-field count, sum, mean, min and max, plus
// group totals when records carry a region.
type Analysis struct{}

// NewAnalysis creates the statistical analysis executor.
func NewAnalysis() *Analysis { return &Analysis{} }

// Name implements ports.Executor.
func (e *Analysis) Name() string { return domain.ExecutorAnalysis }

// Execute implements ports.Executor.
func (e *Analysis) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	ingested := task.State.Executors[domain.ExecutorIngestion]
	records := recordsFrom(ingested.Scratch)
	if len(records) == 0 {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureInvalidOutput,
			Detail:   "no ingested records to analyze; data_ingestion must run first",
		}
	}

	ports.ProgressFromContext(ctx).Report(ctx,
		fmt.Sprintf("analyzing %d records", len(records)),
		map[string]any{"records": len(records)})

	fields := fieldStats(records)
	metrics := map[string]any{
		"record_count": len(records),
		"fields":       fields,
	}
	if groups := groupTotals(records, "region", "amount"); len(groups) > 0 {
		metrics["by_region"] = groups
		metrics["top_region"] = topGroup(groups)
	}

	fieldNames := make([]string, 0, len(fields))
	for name := range fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	return &ports.ExecutorResult{
		Messages: []domain.Message{{
			Role: domain.RoleAssistant,
			Text: fmt.Sprintf("Analyzed %d records across %d numeric fields (%s).",
				len(records), len(fields), joinOr(fieldNames, "none")),
		}},
		Scratch: map[string]any{
			scratchMetrics: metrics,
			"analyzed":     len(records),
		},
		Summary: fmt.Sprintf("computed statistics for %d records", len(records)),
	}, nil
}

// fieldStats aggregates every numeric field found across the records.
func fieldStats(records []map[string]any) map[string]any {
	type agg struct {
		count    int
		sum      float64
		min, max float64
	}
	aggs := make(map[string]*agg)
	for _, record := range records {
		for field, value := range record {
			n, ok := numberFrom(value)
			if !ok {
				continue
			}
			a := aggs[field]
			if a == nil {
				a = &agg{min: math.Inf(1), max: math.Inf(-1)}
				aggs[field] = a
			}
			a.count++
			a.sum += n
			a.min = math.Min(a.min, n)
			a.max = math.Max(a.max, n)
		}
	}

	out := make(map[string]any, len(aggs))
	for field, a := range aggs {
		out[field] = map[string]any{
			"count": a.count,
			"sum":   a.sum,
			"mean":  a.sum / float64(a.count),
			"min":   a.min,
			"max":   a.max,
		}
	}
	return out
}

// groupTotals sums valueField per distinct groupField value.
func groupTotals(records []map[string]any, groupField, valueField string) map[string]float64 {
	totals := make(map[string]float64)
	for _, record := range records {
		group, ok := record[groupField].(string)
		if !ok || group == "" {
			continue
		}
		if n, ok := numberFrom(record[valueField]); ok {
			totals[group] += n
		}
	}
	return totals
}

// topGroup returns the group with the highest total, ties broken by name
// for determinism.
func topGroup(totals map[string]float64) string {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	var best string
	bestTotal := math.Inf(-1)
	for _, name := range names {
		if totals[name] > bestTotal {
			best, bestTotal = name, totals[name]
		}
	}
	return best
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	out := items[0]
	for _, item := range items[1:] {
		out += ", " + item
	}
	return out
}
