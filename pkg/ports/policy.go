package ports

import (
	"context"

	"github.com/droverlabs/drover/pkg/domain"
)

// RoutingPolicy defines the interface for routing decisions. The supervisor
// calls Decide after every committed step with a fresh view; the returned
// decision must carry the view's step counter or it will be rejected.
//
// Policies must be side-effect free: deciding must not mutate conversation
// state or call executors.
type RoutingPolicy interface {
	Decide(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error)
}

// RoutingPolicyFunc adapts a function to the RoutingPolicy interface.
type RoutingPolicyFunc func(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error)

// Decide implements RoutingPolicy.
func (f RoutingPolicyFunc) Decide(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
	return f(ctx, view)
}
