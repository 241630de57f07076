package ports

import (
	"context"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
)

// ConversationSummary is the listing projection of a conversation.
type ConversationSummary struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id,omitempty"`
	Title        string       `json:"title"`
	Phase        domain.Phase `json:"phase"`
	Step         uint64       `json:"step"`
	MessageCount int          `json:"message_count"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Summarize projects a state into its listing form.
func Summarize(state *domain.ConversationState) ConversationSummary {
	return ConversationSummary{
		ID:           state.ID,
		UserID:       state.UserID,
		Title:        state.Title,
		Phase:        state.Phase,
		Step:         state.Step,
		MessageCount: state.MessageCount(),
		UpdatedAt:    state.UpdatedAt,
	}
}

// ConversationStore defines the interface for durable conversation state.
//
// Commit is the only mutation path after Create. It applies the delta
// atomically if and only if the stored step counter still equals
// expectedStep; otherwise it returns *domain.StaleWriteError carrying the
// actual counter and leaves the state untouched. Implementations must hand
// out defensive copies: no caller may reach the stored state through a
// returned pointer.
type ConversationStore interface {
	// Create persists a new conversation. Returns
	// domain.ErrConversationExists if the id is already taken.
	Create(ctx context.Context, state *domain.ConversationState) error

	// Get retrieves a conversation by id. Returns
	// domain.ErrConversationNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.ConversationState, error)

	// Commit applies one step delta under compare-and-swap on the step
	// counter and returns the resulting state.
	Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error)

	// List returns summaries of all conversations, most recently updated
	// first.
	List(ctx context.Context) ([]ConversationSummary, error)

	// Delete removes a conversation. Returns domain.ErrConversationNotFound
	// if it does not exist.
	Delete(ctx context.Context, id string) error
}
