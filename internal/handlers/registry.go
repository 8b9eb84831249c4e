// Package handlers contains the built-in event handler registries: business
// reactions, audit trail derivation and the AI document pipeline.
package handlers

import (
	"context"
	"sync"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// Registry is a named group of related event handlers that registers itself
// on a bus and reports its own health.
type Registry interface {
	// Name identifies the registry in health reports and logs.
	Name() string

	// RegisterAll subscribes the registry's handlers on the bus.
	RegisterAll(b domain.Bus)

	// HealthCheck verifies the registry's dependencies are reachable.
	HealthCheck(ctx context.Context) error
}

// subscriptions tracks a registry's active bus subscriptions so they can be
// torn down together.
type subscriptions struct {
	mu   sync.Mutex
	subs []domain.Subscription
}

func (s *subscriptions) add(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

// stop unsubscribes everything the registry registered.
func (s *subscriptions) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}
