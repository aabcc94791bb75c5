// Package agent drives the multi-turn tool-using conversation loop of
// spec.md §4.7: it streams a completion, executes tool calls (gated
// by client approval for mutating calls), and emits events for every
// step. The loop structure follows agent.py's
// generate_function_response/process_message pair from the retrieved
// original_source/ (dispatch-by-name-with-recover, an is_error flag
// on failed tool results, a streaming generator yielding
// text/function_call/end_message events) reshaped into an explicit
// Go state machine per spec.md §9's design note.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/boristopalov/abby/internal/dawerr"
	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/llm"
	"github.com/boristopalov/abby/internal/mcptools"
	"github.com/boristopalov/abby/internal/model"
)

// ApprovalGate blocks a turn until the client answers a pending
// approval_required event, or the context is canceled.
type ApprovalGate interface {
	// Await registers req and blocks until the client sends matching
	// decisions or ctx is done. It returns one ApprovalDecision per
	// requested ToolCall, in the same order as req.Calls.
	Await(ctx context.Context, req model.ApprovalRequest) ([]model.ApprovalDecision, error)
}

// Loop drives one session's chat turns.
type Loop struct {
	client  llm.Client
	tools   *mcptools.Catalog
	bus     *events.Bus
	gate    ApprovalGate
	system  string
	logger  *slog.Logger
}

// Options configures a Loop.
type Options struct {
	System string
	Logger *slog.Logger
}

// New builds a Loop bound to one session's tool catalog and event bus.
func New(client llm.Client, tools *mcptools.Catalog, bus *events.Bus, gate ApprovalGate, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{client: client, tools: tools, bus: bus, gate: gate, system: opts.System, logger: logger.With("component", "agent")}
}

// toolDeclarations converts the catalog's mcp.Tool definitions into
// llm.Tool declarations for the provider.
func (l *Loop) toolDeclarations() []llm.Tool {
	defs := l.tools.Definitions()
	out := make([]llm.Tool, len(defs))
	for i, d := range defs {
		out[i] = llm.Tool{Name: d.Name, Description: d.Description, InputSchema: schemaToMap(d)}
	}
	return out
}

// Run executes the loop of spec.md §4.7 for one user message,
// mutating history in place via the supplied accessor functions.
// Cancellation of ctx aborts the current streaming completion and
// ends the turn without executing further tool calls (spec.md §4.7's
// "Cancellation").
func (l *Loop) Run(ctx context.Context, userMessage string, history []llm.Message, appendHistory func(...llm.Message)) []llm.Message {
	appendHistory(llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(userMessage)}})
	current := append(append([]llm.Message(nil), history...), llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(userMessage)}})

	for {
		stream, err := l.client.Stream(ctx, l.system, current, l.toolDeclarations())
		if err != nil {
			l.bus.Publish(events.Error(fmt.Sprintf("llm stream failed: %v", err)))
			return current
		}

		var assistant llm.Message
		for {
			ev, err := stream.Next()
			if err != nil {
				l.bus.Publish(events.Error(fmt.Sprintf("llm stream error: %v", err)))
				return current
			}
			if ev.Kind == llm.StreamEventTextDelta {
				l.bus.Publish(events.Text(ev.Delta))
				continue
			}
			assistant = ev.Final
			break
		}

		appendHistory(assistant)
		current = append(current, assistant)
		l.bus.Publish(events.EndMessage())

		toolUses := toolUseBlocks(assistant)
		if len(toolUses) == 0 {
			return current
		}

		results := l.executeToolCalls(ctx, toolUses)

		resultBlocks := make([]llm.ContentBlock, len(results))
		for i, r := range results {
			l.bus.Publish(events.FunctionCall(r.call))
			l.bus.Publish(events.FunctionResult(model.ToolResult{CallID: r.call.ID, Content: r.content, IsError: r.isError}))
			resultBlocks[i] = llm.ToolResultBlock(r.call.ID, r.content, r.isError)
		}

		turn := llm.Message{Role: llm.RoleUser, Content: resultBlocks}
		appendHistory(turn)
		current = append(current, turn)
	}
}

type toolOutcome struct {
	call    model.ToolCall
	content string
	isError bool
}

// executeToolCalls runs spec.md §4.7's approval-gating logic: mutating
// calls are held for a single combined approval_required event before
// any of them execute; non-mutating calls need no approval but run
// after that approval round too. Calls execute, and function_call/
// function_result are emitted, in the order tool uses appeared in the
// assistant message.
func (l *Loop) executeToolCalls(ctx context.Context, calls []model.ToolCall) []toolOutcome {
	decisions := make(map[string]bool)

	var mutating []model.ToolCall
	for _, c := range calls {
		if c.Name.Mutating() {
			mutating = append(mutating, c)
		}
	}

	if len(mutating) > 0 {
		req := model.ApprovalRequest{CorrelationID: uuid.NewString(), Calls: mutating}
		l.bus.Publish(events.ApprovalRequired(req))

		got, err := l.gate.Await(ctx, req)
		if err != nil {
			l.logger.Warn("approval await failed, denying all mutating calls", "error", err)
			for _, c := range mutating {
				decisions[c.ID] = false
			}
		} else {
			for _, d := range got {
				decisions[d.ToolCallID] = d.Approved
			}
		}
	}

	outcomes := make([]toolOutcome, len(calls))
	for i, c := range calls {
		if c.Name.Mutating() {
			if !decisions[c.ID] {
				outcomes[i] = toolOutcome{call: c, content: "denied by user", isError: false}
				continue
			}
		}
		outcomes[i] = l.execute(ctx, c)
	}
	return outcomes
}

// execute runs a single tool call and normalizes the mcp-go result
// into a tool_result content string, matching agent.py's
// try/except-wraps-into-is_error dispatch pattern.
func (l *Loop) execute(ctx context.Context, call model.ToolCall) toolOutcome {
	result, err := l.tools.Handle(ctx, call)
	if err != nil {
		return toolOutcome{call: call, content: fmt.Sprintf("%v: %v", dawerr.ErrTool, err), isError: true}
	}
	return toolOutcome{call: call, content: textOfResult(result), isError: result.IsError}
}

func toolUseBlocks(m llm.Message) []model.ToolCall {
	var calls []model.ToolCall
	for _, b := range m.Content {
		if b.Kind == "tool_use" {
			calls = append(calls, model.ToolCall{ID: b.ToolUseID, Name: model.ToolName(b.ToolName), Arguments: b.ToolInput})
		}
	}
	return calls
}

func schemaToMap(d any) map[string]any {
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if schema, ok := raw["inputSchema"]; ok {
		if m, ok := schema.(map[string]any); ok {
			return m
		}
	}
	return nil
}
