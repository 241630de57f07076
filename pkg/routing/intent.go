package routing

import (
	"strings"

	"github.com/droverlabs/drover/pkg/domain"
)

// intent is the pipeline a message asks for, as an ordered stage list.
type intent struct {
	stages []string
	wants  map[string]bool
}

// parseIntent maps message keywords onto executor stages in dependency
// order: reporting needs analysis, analysis needs ingested data.
func parseIntent(message string) intent {
	lower := strings.ToLower(message)
	has := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	wants := map[string]bool{}
	switch {
	case has("report", "summary", "summarize", "summarise"):
		wants[domain.ExecutorIngestion] = true
		wants[domain.ExecutorAnalysis] = true
		wants[domain.ExecutorReport] = true
	case has("analyze", "analyse", "analysis", "statistics", "stats", "metrics"):
		wants[domain.ExecutorIngestion] = true
		wants[domain.ExecutorAnalysis] = true
	case has("ingest", "load", "import", "fetch", "pull in"):
		wants[domain.ExecutorIngestion] = true
	}

	if has("notify", "notification", "alert", "email", "slack", "send to") {
		wants[domain.ExecutorNotify] = true
		// notifying about results implies producing them first
		if len(wants) == 1 && mentionsData(lower) {
			wants[domain.ExecutorIngestion] = true
			wants[domain.ExecutorAnalysis] = true
			wants[domain.ExecutorReport] = true
		}
	}

	if len(wants) == 0 && isQuestion(lower) {
		wants[domain.ExecutorQuery] = true
	}

	ordered := make([]string, 0, len(wants))
	for _, stage := range []string{
		domain.ExecutorIngestion,
		domain.ExecutorAnalysis,
		domain.ExecutorReport,
		domain.ExecutorQuery,
		domain.ExecutorNotify,
	} {
		if wants[stage] {
			ordered = append(ordered, stage)
		}
	}
	return intent{stages: ordered, wants: wants}
}

func mentionsData(lower string) bool {
	for _, kw := range []string{"sales", "pipeline", "data", "revenue", "results", "numbers", "records"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isQuestion(lower string) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	for _, prefix := range []string{"what", "how", "which", "who", "when", "where", "show", "tell me"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
