package agent

import (
	"context"
	"testing"

	"github.com/boristopalov/abby/internal/llm"
)

func TestPromptRegistryLookupFallsBackToDefault(t *testing.T) {
	reg := NewPromptRegistry()

	if got := reg.Lookup(""); got != defaultPrompt {
		t.Errorf("Lookup(\"\") = %q, want default prompt", got)
	}
	if got := reg.Lookup("not-a-real-genre"); got != defaultPrompt {
		t.Errorf("Lookup(unknown) = %q, want default prompt", got)
	}
}

func TestPromptRegistryLookupSeededGenre(t *testing.T) {
	reg := NewPromptRegistry()

	got := reg.Lookup(tribalSciFiTechnoID)
	if got != tribalSciFiTechnoPrompt {
		t.Errorf("Lookup(%q) did not return the seeded prompt", tribalSciFiTechnoID)
	}
}

func TestPromptRegistryRegisterOverwrites(t *testing.T) {
	reg := NewPromptRegistry()
	reg.Register("custom", "be a ninja")
	reg.Register("custom", "be a pirate")

	if got := reg.Lookup("custom"); got != "be a pirate" {
		t.Errorf("Lookup(custom) = %q, want %q", got, "be a pirate")
	}
}

func TestGenerateSystemPromptParsesAndRegisters(t *testing.T) {
	response := "Here you go.\n\nGENRE_NAME: \"Glacial Dub Jazz\"\nPROMPT: \"\"\"\nKey Ableton devices:\n- Tension for icy plucks\n\"\"\"\n"
	client := &scriptedClient{turns: [][]llm.StreamEvent{textTurn(response)}}
	loop := New(client, nil, nil, nil, Options{})

	reg := NewPromptRegistry()
	id, err := loop.GenerateSystemPrompt(context.Background(), reg)
	if err != nil {
		t.Fatalf("GenerateSystemPrompt: %v", err)
	}
	if id != "glacial-dub-jazz" {
		t.Errorf("id = %q, want %q", id, "glacial-dub-jazz")
	}

	got := reg.Lookup(id)
	want := "Key Ableton devices:\n- Tension for icy plucks"
	if got != want {
		t.Errorf("registered prompt = %q, want %q", got, want)
	}
}

func TestGenerateSystemPromptRejectsUnparseableResponse(t *testing.T) {
	client := &scriptedClient{turns: [][]llm.StreamEvent{textTurn("I couldn't think of one, sorry.")}}
	loop := New(client, nil, nil, nil, Options{})

	if _, err := loop.GenerateSystemPrompt(context.Background(), NewPromptRegistry()); err == nil {
		t.Fatal("GenerateSystemPrompt: want error on unparseable response, got nil")
	}
}
