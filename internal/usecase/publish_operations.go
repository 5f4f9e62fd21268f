package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/sqlgenmcp/internal/domain"
)

// PublishOperationsUseCase exposes every registered operation as an MCP tool.
// Tool handlers route through the dispatcher, so MCP clients get the same
// validation and error shaping as every other transport.
type PublishOperationsUseCase struct {
	registry   OperationRegistry
	dispatcher CallDispatcher
	mcpServer  MCPServerAdapter
	logger     *slog.Logger
}

// NewPublishOperationsUseCase creates a new PublishOperationsUseCase.
func NewPublishOperationsUseCase(
	registry OperationRegistry,
	dispatcher CallDispatcher,
	mcpServer MCPServerAdapter,
	logger *slog.Logger,
) *PublishOperationsUseCase {
	return &PublishOperationsUseCase{
		registry:   registry,
		dispatcher: dispatcher,
		mcpServer:  mcpServer,
		logger:     logger.With("usecase", "PublishOperations"),
	}
}

// Execute registers one MCP tool per registry operation, in registration order.
func (uc *PublishOperationsUseCase) Execute(ctx context.Context) error {
	ops := uc.registry.List()
	uc.logger.Info("Publishing operations as MCP tools", slog.Int("count", len(ops)))

	for _, op := range ops {
		tool, err := ToMCPTool(op)
		if err != nil {
			uc.logger.Error("Failed to convert operation to MCP tool", slog.String("operation", op.Name), slog.Any("error", err))
			return err
		}
		uc.mcpServer.AddTool(tool, uc.toolHandler())
		uc.logger.Debug("Published tool", slog.String("tool_name", op.Name))
	}

	uc.logger.Info("Successfully published operations", slog.Int("count", len(ops)))
	return nil
}

func (uc *PublishOperationsUseCase) toolHandler() mcpGoServer.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := uc.dispatcher.HandleCall(ctx, domain.CallRequest{
			OperationName: request.Params.Name,
			Arguments:     request.Params.Arguments,
		})
		return ToCallToolResult(result), nil
	}
}

// ToMCPTool converts an operation descriptor into an mcp-go tool definition,
// advertising its input shape verbatim as the tool's input schema.
func ToMCPTool(op domain.Operation) (mcp.Tool, error) {
	schema, err := json.Marshal(op.InputShape)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to marshal input shape of %s: %w", op.Name, err)
	}
	return mcp.NewToolWithRawSchema(op.Name, op.Description, schema), nil
}

// ToCallToolResult converts a dispatcher result into an MCP tool result.
// Failures become error results whose text is "<ErrorKind>: <message>".
func ToCallToolResult(result domain.CallResult) *mcp.CallToolResult {
	if result.Failure != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", result.Failure.Kind, result.Failure.Message))
	}
	content := make([]mcp.Content, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, mcp.NewTextContent(c.Text))
	}
	return &mcp.CallToolResult{Content: content}
}
