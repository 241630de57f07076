package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Ingestion loads raw records into the conversation's working set. It pulls
// from a dataset file when the user names one, falling back to the sample
// record capability otherwise.
type Ingestion struct {
	gateway ports.CapabilityGateway
}

// NewIngestion creates the data ingestion executor.
func NewIngestion(gateway ports.CapabilityGateway) *Ingestion {
	return &Ingestion{gateway: gateway}
}

// Name implements ports.Executor.
func (e *Ingestion) Name() string { return domain.ExecutorIngestion }

// Execute implements ports.Executor.
func (e *Ingestion) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	progress := ports.ProgressFromContext(ctx)

	source := datasetSource(task.UserMessage)
	var (
		payload any
		err     error
	)
	if source != "" {
		progress.Report(ctx, fmt.Sprintf("loading dataset %s", source), nil)
		payload, err = e.gateway.Call(ctx, capability.CapLoadDataset, map[string]any{"source": source})
	} else {
		source = datasetName(task.UserMessage)
		progress.Report(ctx, fmt.Sprintf("fetching %s records", source), nil)
		payload, err = e.gateway.Call(ctx, capability.CapFetchRecords, map[string]any{"dataset": source})
	}
	if err != nil {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureCapability,
			Detail:   err.Error(),
			Err:      err,
		}
	}

	result, ok := payload.(map[string]any)
	if !ok {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureInvalidOutput,
			Detail:   fmt.Sprintf("unexpected dataset payload %T", payload),
		}
	}
	records := recordsFrom(result)
	if len(records) == 0 {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureInvalidOutput,
			Detail:   fmt.Sprintf("dataset %s contained no records", source),
		}
	}

	return &ports.ExecutorResult{
		Messages: []domain.Message{{
			Role: domain.RoleAssistant,
			Text: fmt.Sprintf("Ingested %d records from %s.", len(records), source),
		}},
		Scratch: map[string]any{
			scratchRecords: records,
			scratchCount:   len(records),
			scratchSource:  source,
		},
		Summary: fmt.Sprintf("ingested %d records", len(records)),
	}, nil
}

// datasetSource finds an explicit dataset file in the message, e.g.
// "ingest q3_sales.csv" names q3_sales.csv.
func datasetSource(message string) string {
	for _, word := range strings.Fields(message) {
		word = strings.Trim(word, `.,;:'"()`)
		lower := strings.ToLower(word)
		if strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".json") {
			return word
		}
	}
	return ""
}

// datasetName picks a logical dataset from message keywords.
func datasetName(message string) string {
	lower := strings.ToLower(message)
	for _, name := range []string{"sales", "pipeline", "revenue", "leads", "orders"} {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return "sales"
}
