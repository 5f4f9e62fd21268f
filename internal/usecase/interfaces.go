package usecase

import (
	"context"
	"errors"

	"github.com/i2y/sqlgenmcp/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
)

// Standard errors returned by use cases and adapters.
var (
	ErrOperationNotFound   = errors.New("operation not found")
	ErrDuplicateOperation  = errors.New("operation already registered")
	ErrRegistryFrozen      = errors.New("registry is frozen")
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrInvalidArguments is wrapped by handlers whose arguments passed shape
	// validation but still cannot be processed. The dispatcher reports it as
	// InvalidParams; every other handler error is reported as InternalError.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// --- Operation Handling ---

// OperationHandler executes one operation with arguments that already match
// the operation's input shape.
type OperationHandler interface {
	Handle(ctx context.Context, args map[string]any) ([]domain.Content, error)
}

// HandlerFunc adapts a plain function to OperationHandler.
type HandlerFunc func(ctx context.Context, args map[string]any) ([]domain.Content, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, args map[string]any) ([]domain.Content, error) {
	return f(ctx, args)
}

// Registration pairs an operation descriptor with the handler that serves it.
type Registration struct {
	Operation domain.Operation
	Handler   OperationHandler
}

// OperationRegistry defines the read side of the operation registry used while serving.
type OperationRegistry interface {
	// List returns every registered operation in registration order.
	List() []domain.Operation

	// Resolve finds an operation by exact name. It returns ErrOperationNotFound
	// when no operation has that name.
	Resolve(name string) (Registration, error)
}

// CallDispatcher turns a decoded call into a structured result.
type CallDispatcher interface {
	HandleCall(ctx context.Context, req domain.CallRequest) domain.CallResult
}

// --- MCP Server Abstraction ---

// MCPServerAdapter defines the interface required by the PublishOperationsUseCase
// to interact with the underlying MCP server (like mcp-go).
// This avoids direct dependency on a specific server implementation in the use case.
type MCPServerAdapter interface {
	// AddTool registers a tool and its handler with the server.
	AddTool(tool mcp.Tool, handlerFunc mcpGoServer.ToolHandlerFunc)
}
