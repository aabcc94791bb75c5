// Package channel implements the client channel (C8, spec.md §4.8): a
// per-session duplex endpoint speaking newline-delimited JSON over a
// persistent net.Conn. Frame shapes follow a Command/Response/Event
// split — one struct per direction, optional fields as pointers with
// `omitempty` — adapted to abby's own attach/message/approvals/event
// vocabulary. The accept loop and per-connection goroutine follow a
// context-cancelable Accept loop with a sync.WaitGroup draining
// connection goroutines on Close.
package channel

import "github.com/boristopalov/abby/internal/events"

// Inbound is one client-to-server frame. Exactly one of its fields is
// populated per spec.md §4.8's discriminated-frame rule; unrecognized
// future kinds MUST be ignored rather than rejected, so this struct
// only names the kinds this build understands and anything else is
// silently absent from all of them.
type Inbound struct {
	// Attach selects the project for this connection; the first frame
	// on every connection MUST be an attach frame.
	Attach *AttachRequest `json:"attach,omitempty"`
	// Message is user chat input, forwarded to the agent loop.
	Message *string `json:"message,omitempty"`
	// Approvals answers a pending approval_required event, keyed by
	// tool_call_id.
	Approvals map[string]bool `json:"approvals,omitempty"`
}

// AttachRequest names the project and session a connection binds to.
// Field names are camelCase per spec.md §6's session/project
// convention.
type AttachRequest struct {
	SessionID string `json:"sessionId"`
	Project   string `json:"project"`
	// SystemPromptID selects a genre persona from the agent's prompt
	// registry (SPEC_FULL.md §4's per-session genre selection); empty
	// or unrecognized values fall back to the default prompt.
	SystemPromptID string `json:"systemPromptId,omitempty"`
}

// Outbound is one server-to-client frame: an event as defined in
// spec.md §4.6, serialized verbatim (kind spellings and field names
// are part of the wire contract).
type Outbound = events.Event

// errorFrame is sent for conditions the client channel itself detects
// outside the event bus (a failed attach, a full message queue),
// reusing the same error event shape as the event bus. Malformed
// frames after attach are logged, not answered.
func errorFrame(message string) Outbound {
	return events.Error(message)
}
