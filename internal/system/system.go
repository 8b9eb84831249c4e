// Package system wires the bus, store and handler registries together and
// exposes lifecycle and health operations.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/handlers"
)

// Health is the aggregate health report. Degraded components never fail the
// check itself; they flip flags and add detail.
type Health struct {
	Overall  bool              `json:"overall"`
	Bus      bool              `json:"bus"`
	Handlers bool              `json:"handlers"`
	Database bool              `json:"database"`
	Details  map[string]string `json:"details,omitempty"`
}

// System owns initialization order and shutdown of the event infrastructure.
type System struct {
	mu          sync.Mutex
	initialized bool

	bus        domain.Bus
	store      domain.EventStore
	registries []handlers.Registry
}

// New creates an uninitialized system.
func New(bus domain.Bus, store domain.EventStore, registries ...handlers.Registry) *System {
	return &System{
		bus:        bus,
		store:      store,
		registries: registries,
	}
}

// Initialize registers all handler registries on the bus. Idempotent: a
// second call logs and does nothing, so double wiring cannot duplicate
// subscriptions.
func (s *System) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		slog.Info("event system already initialized, skipping")
		return nil
	}

	if err := s.bus.Ping(ctx); err != nil {
		return fmt.Errorf("bus is not available: %w", err)
	}

	for _, registry := range s.registries {
		registry.RegisterAll(s.bus)
		slog.Info("handler registry registered", "registry", registry.Name())
	}

	s.initialized = true
	slog.Info("event system initialized", "registries", len(s.registries))
	return nil
}

// Initialized reports whether Initialize has completed.
func (s *System) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// HealthCheck probes every component. It never returns an error: failures
// degrade the report instead, so a broken store still yields a usable answer
// about the rest of the system.
func (s *System) HealthCheck(ctx context.Context) *Health {
	health := &Health{
		Bus:      true,
		Handlers: true,
		Database: true,
		Details:  make(map[string]string),
	}

	if err := s.bus.Ping(ctx); err != nil {
		health.Bus = false
		health.Details["bus"] = err.Error()
	}

	for _, registry := range s.registries {
		if err := registry.HealthCheck(ctx); err != nil {
			health.Handlers = false
			health.Details["handlers:"+registry.Name()] = err.Error()
		}
	}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			health.Database = false
			health.Details["database"] = err.Error()
		}
	}

	health.Overall = health.Bus && health.Handlers && health.Database
	return health
}

// Shutdown tears down the registries and closes the bus and store.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	for _, registry := range s.registries {
		if stopper, ok := registry.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}

	var firstErr error
	if err := s.bus.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close bus: %w", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close store: %w", err)
		}
	}

	s.initialized = false
	slog.Info("event system shut down")
	return firstErr
}
