// Package events implements the per-session event bus (C6, spec.md
// §4.6): a fan-in of typed events from multiple producers (agent,
// observer, indexer), fanned out to one subscriber, the client
// channel. Event payloads are modeled as a tagged sum type per spec.md
// §9's design note replacing "heterogeneous content fields typed as
// string-or-number-or-object" — a Kind discriminator plus one
// exported field per payload shape, mirroring a Command/Response/
// Event struct split (json tags with `omitempty`, optional-value
// pointer fields).
package events

import "github.com/boristopalov/abby/internal/model"

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	KindText             Kind = "text"
	KindFunctionCall     Kind = "function_call"
	KindFunctionResult   Kind = "function_result"
	KindEndMessage       Kind = "end_message"
	KindParameterChange  Kind = "parameter_change"
	KindIndexingStatus   Kind = "indexing_status"
	KindError            Kind = "error"
	KindApprovalRequired Kind = "approval_required"
)

// IndexingStatus is the payload of an indexing_status event.
type IndexingStatus struct {
	IsIndexing bool `json:"is_indexing"`
	Progress   *int `json:"progress,omitempty"`
}

// Event is one outbound message on the bus. Only the field matching
// Kind is populated; the rest are left at their zero value.
type Event struct {
	Kind Kind `json:"kind"`

	Text string `json:"text,omitempty"`

	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   model.ToolName `json:"tool_name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`

	ResultContent string `json:"result_content,omitempty"`
	IsError       bool   `json:"is_error,omitempty"`

	ParameterChange *model.ParameterChange `json:"parameter_change,omitempty"`

	Indexing *IndexingStatus `json:"indexing,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	Approvals []model.ApprovalRequest `json:"approvals,omitempty"`
}

// Text builds a text event.
func Text(delta string) Event { return Event{Kind: KindText, Text: delta} }

// FunctionCall builds a function_call event.
func FunctionCall(call model.ToolCall) Event {
	return Event{Kind: KindFunctionCall, ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Arguments}
}

// FunctionResult builds a function_result event.
func FunctionResult(result model.ToolResult) Event {
	return Event{Kind: KindFunctionResult, ToolCallID: result.CallID, ResultContent: result.Content, IsError: result.IsError}
}

// EndMessage builds the terminator event for a complete agent turn.
func EndMessage() Event { return Event{Kind: KindEndMessage} }

// ParameterChanged builds a parameter_change event.
func ParameterChanged(change model.ParameterChange) Event {
	return Event{Kind: KindParameterChange, ParameterChange: &change}
}

// Indexing builds an indexing_status event.
func Indexing(isIndexing bool, progress int) Event {
	p := progress
	return Event{Kind: KindIndexingStatus, Indexing: &IndexingStatus{IsIndexing: isIndexing, Progress: &p}}
}

// Error builds an error event.
func Error(message string) Event { return Event{Kind: KindError, ErrorMessage: message} }

// ApprovalRequired builds an approval_required event.
func ApprovalRequired(requests ...model.ApprovalRequest) Event {
	return Event{Kind: KindApprovalRequired, Approvals: requests}
}
