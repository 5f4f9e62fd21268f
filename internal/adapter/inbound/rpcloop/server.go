package rpcloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/i2y/sqlgenmcp/internal/domain"
	"github.com/i2y/sqlgenmcp/internal/usecase"
	"github.com/i2y/sqlgenmcp/pkg/shared/mcpjsonrpc"
)

// Forwarder answers the messages a Server does not handle itself.
// *server.MCPServer from mcp-go satisfies it.
type Forwarder interface {
	HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage
}

// Server answers tools/list and tools/call requests arriving on a Channel.
// Requests are handled strictly one at a time.
type Server struct {
	channel    Channel
	listUC     *usecase.ListOperationsUseCase
	dispatcher usecase.CallDispatcher
	forwarder  Forwarder
	logger     *slog.Logger
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithForwarder puts the Server in front of fwd. The Server then answers only
// tools/call requests naming an unregistered operation, reporting them as
// MethodNotFound, and hands every other message to fwd unchanged.
func WithForwarder(fwd Forwarder) ServerOption {
	return func(s *Server) { s.forwarder = fwd }
}

// NewServer creates a new Server.
func NewServer(
	channel Channel,
	listUC *usecase.ListOperationsUseCase,
	dispatcher usecase.CallDispatcher,
	logger *slog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		channel:    channel,
		listUC:     listUC,
		dispatcher: dispatcher,
		logger:     logger.With("component", "rpcloop"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads, dispatches and answers requests until the channel reports EOF
// (returns nil), ctx is cancelled (returns ctx.Err()) or the channel fails.
// Call failures never end the loop.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Serving JSON-RPC channel")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := s.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("Channel closed by peer")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Error("Failed to receive message", slog.Any("error", err))
			return fmt.Errorf("receive: %w", err)
		}

		resp := s.respond(ctx, raw)
		if resp == nil {
			continue
		}
		if err := s.channel.Send(ctx, resp); err != nil {
			s.logger.Error("Failed to send response", slog.Any("error", err))
			return fmt.Errorf("send: %w", err)
		}
	}
}

// respond returns the message to send for raw, or nil when there is none.
func (s *Server) respond(ctx context.Context, raw json.RawMessage) any {
	if s.forwarder == nil {
		if resp := s.HandleMessage(ctx, raw); resp != nil {
			return resp
		}
		return nil
	}
	if req, ok := s.unknownToolCall(raw); ok {
		return s.callTool(ctx, req)
	}
	if msg := s.forwarder.HandleMessage(ctx, raw); msg != nil {
		return msg
	}
	return nil
}

// unknownToolCall reports whether raw is a tools/call request for an
// operation the registry does not list.
func (s *Server) unknownToolCall(raw json.RawMessage) (mcpjsonrpc.Request, bool) {
	var req mcpjsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Method != mcpjsonrpc.MethodToolsCall || req.IsNotification() {
		return req, false
	}
	var params mcpjsonrpc.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return req, false
	}
	for _, op := range s.listUC.Execute() {
		if op.Name == params.Name {
			return req, false
		}
	}
	s.logger.Debug("Intercepted call to unregistered tool", slog.String("tool_name", params.Name))
	return req, true
}

// HandleMessage processes one raw JSON-RPC message and returns the response
// to send, or nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) *mcpjsonrpc.Response {
	var req mcpjsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("Failed to parse message", slog.Any("error", err))
		return errorResponse(mcpjsonrpc.NullID, mcpjsonrpc.CodeParseError, "parse error: "+err.Error(), nil)
	}

	log := s.logger.With(slog.String("method", req.Method))
	if req.Version != mcpjsonrpc.Version || req.Method == "" {
		log.Warn("Invalid request", slog.String("jsonrpc", req.Version))
		return errorResponse(responseID(req), mcpjsonrpc.CodeInvalidRequest, "invalid request", nil)
	}
	if req.IsNotification() {
		log.Debug("Ignoring notification")
		return nil
	}

	switch req.Method {
	case mcpjsonrpc.MethodToolsList:
		return resultResponse(req.ID, s.listTools())
	case mcpjsonrpc.MethodToolsCall:
		return s.callTool(ctx, req)
	case mcpjsonrpc.MethodPing:
		return resultResponse(req.ID, struct{}{})
	default:
		log.Warn("Unknown method")
		return errorResponse(req.ID, mcpjsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

func (s *Server) listTools() mcpjsonrpc.ListToolsResult {
	ops := s.listUC.Execute()
	result := mcpjsonrpc.ListToolsResult{Tools: make([]mcpjsonrpc.ToolDescriptor, 0, len(ops))}
	for _, op := range ops {
		result.Tools = append(result.Tools, mcpjsonrpc.ToolDescriptor{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputShape,
		})
	}
	return result
}

func (s *Server) callTool(ctx context.Context, req mcpjsonrpc.Request) *mcpjsonrpc.Response {
	var params mcpjsonrpc.CallToolParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, mcpjsonrpc.CodeInvalidParams, "missing params", nil)
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, mcpjsonrpc.CodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Name == "" {
		return errorResponse(req.ID, mcpjsonrpc.CodeInvalidParams, "missing tool name", nil)
	}

	result := s.dispatcher.HandleCall(ctx, domain.CallRequest{OperationName: params.Name, Arguments: params.Arguments})
	if result.Failure != nil {
		return errorResponse(req.ID, CodeForKind(result.Failure.Kind), result.Failure.Message,
			mcpjsonrpc.ErrorData{ErrorKind: string(result.Failure.Kind)})
	}

	blocks := make([]mcpjsonrpc.ContentBlock, 0, len(result.Content))
	for _, c := range result.Content {
		blocks = append(blocks, mcpjsonrpc.ContentBlock{Type: c.Type, Text: c.Text})
	}
	return resultResponse(req.ID, mcpjsonrpc.CallToolResult{Content: blocks})
}

// CodeForKind maps a call failure kind to its JSON-RPC error code.
func CodeForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindMethodNotFound:
		return mcpjsonrpc.CodeMethodNotFound
	case domain.ErrorKindInvalidParams:
		return mcpjsonrpc.CodeInvalidParams
	default:
		return mcpjsonrpc.CodeInternalError
	}
}

func responseID(req mcpjsonrpc.Request) json.RawMessage {
	if req.IsNotification() {
		return mcpjsonrpc.NullID
	}
	return req.ID
}

func resultResponse(id json.RawMessage, result any) *mcpjsonrpc.Response {
	return &mcpjsonrpc.Response{Version: mcpjsonrpc.Version, Result: result, ID: id}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *mcpjsonrpc.Response {
	return &mcpjsonrpc.Response{
		Version: mcpjsonrpc.Version,
		Error:   &mcpjsonrpc.Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
