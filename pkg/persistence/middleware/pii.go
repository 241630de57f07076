package middleware

import (
	"context"
	"regexp"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// maskValue replaces matched entries at rest.
const maskValue = "***"

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks scratch and metadata
// values whose keys match any of the patterns before they reach the store.
// Masking is one-way: reads return what was persisted.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Create(ctx context.Context, state *domain.ConversationState) error {
	// Mask a clone; the caller's in-memory state stays intact.
	cloned := state.Clone()
	for name, es := range cloned.Executors {
		es.Scratch = m.mask(es.Scratch)
		cloned.Executors[name] = es
	}
	cloned.Metadata = m.mask(cloned.Metadata)
	return m.next.Create(ctx, cloned)
}

func (m *piiMiddleware) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	return m.next.Get(ctx, id)
}

// Commit masks the delta's payload maps on the way in. The delta is a value,
// so reassigning its maps cannot reach the caller's copy.
func (m *piiMiddleware) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
	if delta.Scratch != nil {
		delta.Scratch = m.mask(delta.Scratch)
	}
	if delta.Metadata != nil {
		delta.Metadata = m.mask(delta.Metadata)
	}
	return m.next.Commit(ctx, id, expectedStep, delta)
}

func (m *piiMiddleware) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

// mask deep-copies the map and replaces values under matching keys,
// recursing into nested maps.
func (m *piiMiddleware) mask(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m.matches(k) {
			out[k] = maskValue
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[k] = m.mask(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
