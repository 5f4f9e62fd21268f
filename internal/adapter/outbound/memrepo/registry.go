package memrepo

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/i2y/sqlgenmcp/internal/domain"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

// OperationRegistry is an in-memory, two-phase implementation of usecase.OperationRegistry.
// Operations are registered during startup; Freeze ends that phase and from
// then on the registry is read-only and safe for concurrent readers.
type OperationRegistry struct {
	mu      sync.Mutex // guards registration only
	frozen  bool
	entries []usecase.Registration // registration order
	byName  map[string]int         // name -> index into entries
	logger  *slog.Logger
}

// NewOperationRegistry creates an empty registry in its registration phase.
func NewOperationRegistry(logger *slog.Logger) *OperationRegistry {
	return &OperationRegistry{
		byName: make(map[string]int),
		logger: logger.With("component", "operation_registry"),
	}
}

// Register adds an operation and its handler.
func (r *OperationRegistry) Register(op domain.Operation, handler usecase.OperationHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.logger.With(slog.String("operation", op.Name))
	if r.frozen {
		log.Error("Registration attempted after freeze")
		return fmt.Errorf("register %q: %w", op.Name, usecase.ErrRegistryFrozen)
	}
	if op.Name == "" {
		return fmt.Errorf("register: %w: operation name must not be empty", usecase.ErrInvalidRegistration)
	}
	if handler == nil {
		return fmt.Errorf("register %q: %w: handler must not be nil", op.Name, usecase.ErrInvalidRegistration)
	}
	if _, ok := r.byName[op.Name]; ok {
		log.Error("Duplicate operation name")
		return fmt.Errorf("register %q: %w", op.Name, usecase.ErrDuplicateOperation)
	}
	if err := op.InputShape.Check(); err != nil {
		log.Error("Operation input shape is invalid", slog.Any("error", err))
		return fmt.Errorf("register %q: %w", op.Name, err)
	}

	r.byName[op.Name] = len(r.entries)
	r.entries = append(r.entries, usecase.Registration{Operation: op, Handler: handler})
	log.Info("Registered operation", slog.Int("total_operations", len(r.entries)))
	return nil
}

// Freeze ends the registration phase. It is idempotent.
func (r *OperationRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frozen {
		r.frozen = true
		r.logger.Info("Registry frozen", slog.Int("operations", len(r.entries)))
	}
}

// Frozen reports whether the registration phase has ended.
func (r *OperationRegistry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// List returns all registered operations in registration order.
func (r *OperationRegistry) List() []domain.Operation {
	list := make([]domain.Operation, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e.Operation)
	}
	return list
}

// Resolve retrieves an operation and its handler by exact name.
func (r *OperationRegistry) Resolve(name string) (usecase.Registration, error) {
	i, ok := r.byName[name]
	if !ok {
		r.logger.Debug("Operation not found", slog.String("operation", name))
		return usecase.Registration{}, fmt.Errorf("%q: %w", name, usecase.ErrOperationNotFound)
	}
	return r.entries[i], nil
}
