package mcpjsonrpc

import "encoding/json"

// Based on JSON-RPC 2.0 Specification: https://www.jsonrpc.org/specification

// Version is the only protocol version accepted.
const Version = "2.0"

// Request represents a JSON-RPC request object.
type Request struct {
	Version string          `json:"jsonrpc"`          // MUST be "2.0"
	Method  string          `json:"method"`           // Method to be invoked
	Params  json.RawMessage `json:"params,omitempty"` // Parameters (structured value or array)
	ID      json.RawMessage `json:"id,omitempty"`     // Request identifier (string, number, or null)
}

// IsNotification reports whether the request carries no id and therefore expects no response.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response represents a JSON-RPC response object.
type Response struct {
	Version string          `json:"jsonrpc"`          // MUST be "2.0"
	Result  any             `json:"result,omitempty"` // Required on success
	Error   *Error          `json:"error,omitempty"`  // Required on error
	ID      json.RawMessage `json:"id"`               // Must match request ID (or null if could not be determined)
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`           // Error code
	Message string `json:"message"`        // Error message
	Data    any    `json:"data,omitempty"` // Additional data about the error
}

// Error codes (subset, based on JSON-RPC spec)
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Methods served by the native channel. Names follow MCP.
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
	MethodPing      = "ping"
)

// CallToolParams defines the structure for the "params" field
// when the method is "tools/call".
type CallToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// ToolDescriptor is one entry of a tools/list result.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ContentBlock is one typed block of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the successful result of tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
}

// ErrorData is attached to errors produced by a failed tools/call.
type ErrorData struct {
	ErrorKind string `json:"errorKind"`
}

// NullID is used in responses when the request id could not be determined.
var NullID = json.RawMessage("null")
