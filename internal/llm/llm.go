// Package llm defines a provider-agnostic streaming chat interface,
// following spec.md §9's design note replacing "streaming handled by
// registering many callbacks on a single stream object" with a lazy
// finite sequence of events driven by one consumer. The concrete
// Anthropic-flavored implementation in anthropic.go is grounded loosely
// on ableton_client.py's async line-reading loop from
// original_source/ (a background reader routing framed messages to
// waiting callers), adapted from newline-delimited JSON over TCP to
// line-delimited SSE over HTTP, since that is the wire format
// Anthropic's Messages API streaming endpoint actually uses.
package llm

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is a tagged variant covering the block shapes a
// message can carry, replacing spec.md §9's "heterogeneous content
// fields typed as string-or-number-or-object" with one Kind
// discriminator.
type ContentBlock struct {
	Kind string // "text" or "tool_use" or "tool_result"

	Text string // Kind == "text"

	ToolUseID string         // Kind == "tool_use" or "tool_result"
	ToolName  string         // Kind == "tool_use"
	ToolInput map[string]any // Kind == "tool_use"

	ToolResultContent string // Kind == "tool_result"
	ToolResultIsError bool   // Kind == "tool_result"
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Kind: "text", Text: text} }

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Kind: "tool_use", ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: "tool_result", ToolUseID: toolUseID, ToolResultContent: content, ToolResultIsError: isError}
}

// Message is one turn in the rolling conversation history.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// Tool declares one callable function to the provider.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StreamEventKind discriminates a StreamEvent's payload.
type StreamEventKind string

const (
	StreamEventTextDelta StreamEventKind = "text_delta"
	StreamEventMessage   StreamEventKind = "message" // terminal: the complete assistant message
)

// StreamEvent is one item in the lazy sequence a streaming completion
// yields.
type StreamEvent struct {
	Kind  StreamEventKind
	Delta string  // StreamEventTextDelta
	Final Message // StreamEventMessage
}

// Stream is a lazy, finite sequence of StreamEvents, driven by one
// consumer with repeated Next calls. Its final event is always
// StreamEventMessage. Canceling the ctx passed to Client.Stream aborts
// the underlying HTTP call the way spec.md §5 requires ("the streaming
// call must be cancellable").
type Stream interface {
	Next() (StreamEvent, error)
}

// Client is a streaming chat completion provider.
type Client interface {
	Stream(ctx context.Context, system string, history []Message, tools []Tool) (Stream, error)
}
