package drover

import (
	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// Version is the library version. Overridden at release time via
// -ldflags "-X github.com/droverlabs/drover.Version=...".
var Version = "0.3.0"

// Engine is the assembled supervisor. The alias keeps embedding code on the
// root package; the full API lives in pkg/supervisor.
type Engine = supervisor.Supervisor

// TurnRequest and TurnResult are re-exported for the same reason.
type (
	TurnRequest = supervisor.TurnRequest
	TurnResult  = supervisor.TurnResult
	Option      = supervisor.Option
)

// New creates an engine with in-memory persistence and the default rules
// policy. Options pass through to the supervisor.
func New(opts ...Option) (*Engine, error) {
	return supervisor.New(memory.NewStore(), opts...)
}

// NewWithStore creates an engine on caller-provided persistence.
func NewWithStore(store ports.ConversationStore, opts ...Option) (*Engine, error) {
	return supervisor.New(store, opts...)
}
