// Package llm provides the model-facing client interface and the AI
// gateway implementation used by the agent driver.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the model. Content carries
// plain text; Parts carries a multimodal user message (text plus image
// or file attachments). At most one of the two is set.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
}

// PartKind discriminates multimodal message parts.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// Part is one piece of a multimodal user message. Image and file parts
// carry raw bytes plus a media type; the transport decides how to
// encode them on the wire (base64 data URLs for the gateway).
type Part struct {
	Kind      PartKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	Data      []byte   `json:"-"`
	MediaType string   `json:"media_type,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the provider-neutral response shape. Wire format
// conversion happens at the provider boundary (gateway.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int
}

// NewToolCall builds a ToolCall; mostly a convenience for tests and
// fake clients, since the Function field is an anonymous struct.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	tc := ToolCall{ID: id}
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

// TextMessage builds a plain-text message for the given role.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}
