package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boristopalov/abby/internal/config"
	"github.com/boristopalov/abby/internal/dawerr"
)

// AnthropicClient speaks the Messages API's streaming SSE format
// (`text/event-stream`, `event: content_block_delta` etc.) — the
// concrete provider named by config.LLM.Provider's default.
type AnthropicClient struct {
	cfg        config.LLM
	httpClient *http.Client
}

// NewAnthropicClient builds a Client from LLM configuration.
func NewAnthropicClient(cfg config.LLM) *AnthropicClient {
	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Stream opens a streaming completion, returning a Stream whose Next
// calls parse one SSE event at a time from the response body.
func (c *AnthropicClient) Stream(ctx context.Context, system string, history []Message, tools []Tool) (Stream, error) {
	body := anthropicRequest{
		Model:     c.cfg.Model,
		System:    system,
		Messages:  toAnthropicMessages(history),
		Tools:     toAnthropicTools(tools),
		Stream:    true,
		MaxTokens: 4096,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey())
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: %w: %w", dawerr.ErrLLM, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("llm: %w: unexpected status %s", dawerr.ErrLLM, resp.Status)
	}

	return &sseStream{scanner: bufio.NewScanner(resp.Body), closer: resp.Body}, nil
}

func toAnthropicMessages(history []Message) []anthropicMessage {
	out := make([]anthropicMessage, len(history))
	for i, m := range history {
		blocks := make([]anthropicBlock, len(m.Content))
		for j, b := range m.Content {
			switch b.Kind {
			case "text":
				blocks[j] = anthropicBlock{Type: "text", Text: b.Text}
			case "tool_use":
				blocks[j] = anthropicBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput}
			case "tool_result":
				blocks[j] = anthropicBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.ToolResultContent, IsError: b.ToolResultIsError}
			}
		}
		out[i] = anthropicMessage{Role: string(m.Role), Content: blocks}
	}
	return out
}

func toAnthropicTools(tools []Tool) []anthropicTool {
	out := make([]anthropicTool, len(tools))
	for i, t := range tools {
		out[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return out
}

// sseStream parses one text/event-stream body into StreamEvents,
// accumulating text and tool_use blocks until the stream's terminal
// message_stop event, then yielding a single StreamEventMessage.
type sseStream struct {
	scanner *bufio.Scanner
	closer  interface{ Close() error }

	pendingText  strings.Builder
	blocks       []ContentBlock
	currentBlock *anthropicBlock
	inputJSON    strings.Builder

	done bool
}

func (s *sseStream) Next() (StreamEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var envelope struct {
			Type  string `json:"type"`
			Index int    `json:"index"`
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
			ContentBlock struct {
				Type  string         `json:"type"`
				ID    string         `json:"id"`
				Name  string         `json:"name"`
				Input map[string]any `json:"input"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			continue // ignore malformed keep-alive/comment lines
		}

		switch envelope.Type {
		case "content_block_start":
			s.currentBlock = &anthropicBlock{Type: envelope.ContentBlock.Type, ID: envelope.ContentBlock.ID, Name: envelope.ContentBlock.Name}
			s.inputJSON.Reset()
		case "content_block_delta":
			if envelope.Delta.Type == "text_delta" {
				s.pendingText.WriteString(envelope.Delta.Text)
				return StreamEvent{Kind: StreamEventTextDelta, Delta: envelope.Delta.Text}, nil
			}
			if envelope.Delta.Type == "input_json_delta" {
				s.inputJSON.WriteString(envelope.Delta.PartialJSON)
			}
		case "content_block_stop":
			if s.currentBlock != nil {
				block := s.finishBlock()
				s.blocks = append(s.blocks, block)
				s.currentBlock = nil
			}
		case "message_stop":
			s.done = true
			return StreamEvent{Kind: StreamEventMessage, Final: Message{Role: RoleAssistant, Content: s.blocks}}, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.closer.Close()
		return StreamEvent{}, fmt.Errorf("llm: %w: stream read: %w", dawerr.ErrLLM, err)
	}
	s.closer.Close()
	if !s.done {
		// stream closed without a message_stop: surface whatever text
		// accumulated as the terminal message rather than losing it.
		return StreamEvent{Kind: StreamEventMessage, Final: Message{Role: RoleAssistant, Content: s.blocks}}, nil
	}
	return StreamEvent{}, fmt.Errorf("llm: %w: stream closed after terminal message", dawerr.ErrLLM)
}

func (s *sseStream) finishBlock() ContentBlock {
	b := s.currentBlock
	switch b.Type {
	case "text":
		text := s.pendingText.String()
		s.pendingText.Reset()
		return TextBlock(text)
	case "tool_use":
		input := b.Input
		if input == nil && s.inputJSON.Len() > 0 {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(s.inputJSON.String()), &decoded); err == nil {
				input = decoded
			}
		}
		return ToolUseBlock(b.ID, b.Name, input)
	default:
		return ContentBlock{Kind: b.Type}
	}
}
