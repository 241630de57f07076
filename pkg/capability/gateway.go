// Package capability implements the gateway executors use for every
// external effect: a named registry of capability functions with typed
// failures and per-call deadlines.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// DefaultCallTimeout bounds one capability call unless the capability
// declares its own.
const DefaultCallTimeout = 10 * time.Second

// Func is the signature for a capability implementation.
// It receives a context and a map of arguments, and returns a result or
// error. Errors should be *domain.CapabilityFailure; anything else is
// wrapped as an upstream failure.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Capability pairs a handler with its registration metadata.
type Capability struct {
	Name        string
	Description string
	Handler     Func
	// Timeout overrides DefaultCallTimeout when positive.
	Timeout time.Duration
}

// Gateway manages the available capabilities.
type Gateway struct {
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	caps map[string]Capability
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for call tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCallTimeout sets the default per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGateway creates an empty gateway.
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		logger:  slog.Default(),
		timeout: DefaultCallTimeout,
		caps:    make(map[string]Capability),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ ports.CapabilityGateway = (*Gateway)(nil)

// Register adds a capability to the gateway.
// If one with the same name exists, it is overwritten.
func (g *Gateway) Register(cap Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.caps[cap.Name] = cap
}

// RegisterFunc adds a bare handler under the given name.
func (g *Gateway) RegisterFunc(name string, fn Func) {
	g.Register(Capability{Name: name, Handler: fn})
}

// Call implements ports.CapabilityGateway. Every failure comes back as a
// *domain.CapabilityFailure so executors can fold it into their own typed
// failure without inspecting transport errors.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	g.mu.RLock()
	cap, ok := g.caps[name]
	g.mu.RUnlock()

	if !ok {
		return nil, &domain.CapabilityFailure{
			Capability: name,
			Kind:       domain.CapabilityNotFound,
			Detail:     fmt.Sprintf("capability not found: %s", name),
		}
	}

	timeout := g.timeout
	if cap.Timeout > 0 {
		timeout = cap.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := cap.Handler(callCtx, args)
	elapsed := time.Since(start)

	g.logger.Debug("capability call",
		"capability", name,
		"duration", elapsed,
		"err", err)

	if err == nil {
		return result, nil
	}

	var failure *domain.CapabilityFailure
	if errors.As(err, &failure) {
		return nil, failure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, &domain.CapabilityFailure{
			Capability: name,
			Kind:       domain.CapabilityTimeout,
			Detail:     fmt.Sprintf("call exceeded %s", timeout),
			Err:        err,
		}
	}
	return nil, &domain.CapabilityFailure{
		Capability: name,
		Kind:       domain.CapabilityUpstream,
		Detail:     err.Error(),
		Err:        err,
	}
}

// Capabilities implements ports.CapabilityGateway.
func (g *Gateway) Capabilities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.caps))
	for name := range g.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the registered metadata for a capability.
func (g *Gateway) Describe(name string) (Capability, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cap, ok := g.caps[name]
	return cap, ok
}

// InvalidArgs builds the typed failure capabilities return on bad input.
func InvalidArgs(capability, detail string) *domain.CapabilityFailure {
	return &domain.CapabilityFailure{
		Capability: capability,
		Kind:       domain.CapabilityInvalidArgs,
		Detail:     detail,
	}
}
