package llm

import "testing"

func TestToAnthropicMessagesPreservesBlockShapes(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("turn down the reverb")}},
		{Role: RoleAssistant, Content: []ContentBlock{
			TextBlock("Okay, reducing it now."),
			ToolUseBlock("tc1", "set_device_parameter", map[string]any{"track_id": 1.0}),
		}},
		{Role: RoleUser, Content: []ContentBlock{ToolResultBlock("tc1", `{"from":"0.6","to":"0.3"}`, false)}},
	}

	out := toAnthropicMessages(history)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if out[1].Content[1].Type != "tool_use" || out[1].Content[1].Name != "set_device_parameter" {
		t.Errorf("assistant tool_use block = %+v", out[1].Content[1])
	}
	if out[2].Content[0].Type != "tool_result" || out[2].Content[0].ToolUseID != "tc1" {
		t.Errorf("tool_result block = %+v", out[2].Content[0])
	}
}

func TestToAnthropicToolsMapsFields(t *testing.T) {
	tools := []Tool{{Name: "enumerate_mixer", Description: "list tracks", InputSchema: map[string]any{"type": "object"}}}
	out := toAnthropicTools(tools)
	if len(out) != 1 || out[0].Name != "enumerate_mixer" {
		t.Errorf("out = %+v", out)
	}
}
