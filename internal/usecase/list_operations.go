package usecase

import (
	"log/slog"

	"github.com/i2y/sqlgenmcp/internal/domain"
)

// ListOperationsUseCase provides the functionality to list available operations.
type ListOperationsUseCase struct {
	registry OperationRegistry
	logger   *slog.Logger
}

// NewListOperationsUseCase creates a new ListOperationsUseCase.
func NewListOperationsUseCase(registry OperationRegistry, logger *slog.Logger) *ListOperationsUseCase {
	return &ListOperationsUseCase{
		registry: registry,
		logger:   logger.With("usecase", "ListOperations"),
	}
}

// Execute returns every registered operation in registration order.
// The listing comes straight from the registry the dispatcher resolves against,
// so everything listed is dispatchable and vice versa.
func (uc *ListOperationsUseCase) Execute() []domain.Operation {
	ops := uc.registry.List()
	uc.logger.Debug("Listed operations", slog.Int("count", len(ops)))
	return ops
}
