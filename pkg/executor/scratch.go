package executor

// Scratch keys shared between executors. Ingestion writes records, analysis
// writes metrics, report writes the rendered text; each later stage reads
// the earlier one's keys from the conversation state.
const (
	scratchRecords = "records"
	scratchCount   = "count"
	scratchSource  = "source"
	scratchMetrics = "metrics"
	scratchReport  = "report"
	scratchQuery   = "query"
)

// recordsFrom extracts the ingested record list from a scratch payload.
// Scratch that went through a JSON store comes back as []any, native
// in-memory scratch as []map[string]any; both shapes are accepted.
func recordsFrom(scratch map[string]any) []map[string]any {
	if scratch == nil {
		return nil
	}
	switch raw := scratch[scratchRecords].(type) {
	case []map[string]any:
		return raw
	case []any:
		records := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				records = append(records, m)
			}
		}
		return records
	}
	return nil
}

// metricsFrom extracts the analysis metrics from a scratch payload.
func metricsFrom(scratch map[string]any) map[string]any {
	if scratch == nil {
		return nil
	}
	if m, ok := scratch[scratchMetrics].(map[string]any); ok {
		return m
	}
	return nil
}

// numberFrom reads a numeric scratch value regardless of how the store
// decoded it.
func numberFrom(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
