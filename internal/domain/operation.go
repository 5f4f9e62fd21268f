package domain

// Operation describes a remote-callable operation exposed by the server.
// Operations are created once at startup and never modified afterwards.
type Operation struct {
	// Name identifies the operation. It MUST be unique within the server
	// and is matched exactly (case-sensitive).
	Name string `json:"name"`

	// Description is a natural language explanation of what the operation does.
	Description string `json:"description"`

	// InputShape declares the structure the call arguments must have.
	InputShape Shape `json:"inputSchema"`
}

// CallRequest is a single decoded call: which operation and with what arguments.
type CallRequest struct {
	OperationName string
	Arguments     any // untyped until validated against the operation's InputShape
}

// ContentTypeText marks a plain text content block.
const ContentTypeText = "text"

// Content is one typed block of a successful call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent builds a text content block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	ErrorKindMethodNotFound ErrorKind = "MethodNotFound"
	ErrorKindInvalidParams  ErrorKind = "InvalidParams"
	ErrorKindInternalError  ErrorKind = "InternalError"
)

// Failure describes why a call did not succeed.
type Failure struct {
	Kind    ErrorKind `json:"errorKind"`
	Message string    `json:"message"`
}

// CallResult is the outcome of one call. Exactly one of Content or Failure is set.
type CallResult struct {
	Content []Content `json:"content,omitempty"`
	Failure *Failure  `json:"failure,omitempty"`
}

// Success wraps content blocks into a successful result.
func Success(content ...Content) CallResult {
	return CallResult{Content: content}
}

// Fail builds a failed result.
func Fail(kind ErrorKind, message string) CallResult {
	return CallResult{Failure: &Failure{Kind: kind, Message: message}}
}

// IsError reports whether the result is a failure.
func (r CallResult) IsError() bool {
	return r.Failure != nil
}
