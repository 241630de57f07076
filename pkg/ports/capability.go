package ports

import "context"

// CapabilityGateway defines the interface executors use to reach the
// outside world. Every external effect goes through Call so failures come
// back typed (*domain.CapabilityFailure) instead of leaking transport
// errors into executor logic.
type CapabilityGateway interface {
	// Call invokes the named capability with the given arguments.
	Call(ctx context.Context, name string, args map[string]any) (any, error)

	// Capabilities lists the registered capability names, sorted.
	Capabilities() []string
}
