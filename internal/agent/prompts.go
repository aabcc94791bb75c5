package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/boristopalov/abby/internal/llm"
)

// DefaultPromptID is the system prompt a session gets when it doesn't
// request one, or requests one this process doesn't recognize
// (SPEC_FULL.md §4's "unknown IDs fall back to a default prompt").
const DefaultPromptID = "default"

const defaultPrompt = `You are abby, an assistant embedded in a live Ableton Live session.
You can enumerate the mixer, inspect a device's parameters, and set a device
parameter. Setting a parameter changes the live session and always requires
the operator's approval before it takes effect.`

// tribalSciFiTechnoID names the one seeded genre persona, carried over
// from shared.py's GENRE_SYSTEM_PROMPTS in the retrieved
// original_source/ as a worked example of the shape a generated genre
// takes.
const tribalSciFiTechnoID = "tribal-scifi-techno"

const tribalSciFiTechnoPrompt = `Key Ableton devices:
- Operator for tribal percussion synthesis
- Wavetable for sci-fi atmospheres
- Echo for tribal delay patterns
- Corpus for metallic resonances
- Drum Rack for layered percussion

Essential device chains:
1. Tribal Bass: Operator > Saturator > Auto Filter
2. Sci-fi Pads: Wavetable > Chorus > Echo
3. Tech Percussion: Drum Rack > Corpus > Erosion

Audio effect racks:
1. Tribal Space: Echo > Reverb > Utility
2. Future Distortion: Saturator > Amp > Cabinet
3. Metallic Resonator: Corpus > Frequency Shifter > Auto Pan

Mixing guidelines:
- Keep kick drum centered and prominent
- Pan tribal elements wide
- Use sends for sci-fi atmospheres
- Maintain clear separation between percussion and pads

Processing techniques:
- Use frequency shifting for metallic textures
- Apply tribal-inspired delay patterns
- Create evolving sci-fi textures with automation
- Layer organic and synthetic percussion`

// PromptRegistry looks up a session's system prompt by ID, falling
// back to DefaultPromptID for anything it doesn't recognize. It's
// also where Loop.GenerateSystemPrompt registers a freshly invented
// genre, so a later attach can request it by name.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]string
}

// NewPromptRegistry builds a registry seeded with the default prompt
// and the one built-in genre persona.
func NewPromptRegistry() *PromptRegistry {
	r := &PromptRegistry{prompts: make(map[string]string)}
	r.Register(DefaultPromptID, defaultPrompt)
	r.Register(tribalSciFiTechnoID, tribalSciFiTechnoPrompt)
	return r
}

// Register adds or replaces the prompt stored under id.
func (r *PromptRegistry) Register(id, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[id] = prompt
}

// Lookup returns the prompt for id, or the default prompt if id is
// empty or unrecognized.
func (r *PromptRegistry) Lookup(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.prompts[id]; id != "" && ok {
		return p
	}
	return r.prompts[DefaultPromptID]
}

// genrePrompt asks the model to invent a new experimental-genre
// persona, carried over verbatim in spirit from shared.py's
// GENRE_PROMPT in the retrieved original_source/.
const genrePrompt = `Create a new weird, niche, experimental music genre system prompt. The prompt should:

1. Have a unique genre name that combines 2-3 musical styles or concepts
2. Include detailed Ableton Live device chains with specific parameter values
3. Follow this structure:
   - Key ableton devices to use
   - Essential device chains
   - Audio effect racks
   - Mixing guidelines
   - Processing techniques
   - Remember to/guidelines section

Format the response as:
GENRE_NAME: "your genre name here"
PROMPT: """
your detailed prompt here
"""

Be creative but practical - the genre should be technically implementable in Ableton Live.`

var (
	genreNamePattern   = regexp.MustCompile(`GENRE_NAME:\s*"([^"]+)"`)
	genrePromptPattern = regexp.MustCompile(`(?s)PROMPT:\s*"""\n(.+?)"""`)
)

// GenerateSystemPrompt asks the model to invent a new genre persona,
// registers it in reg under a slug of its name, and returns that
// slug. This is best-effort supplemental color (SPEC_FULL.md §4), not
// part of the required turn loop: a caller that doesn't need it can
// ignore it entirely, and a malformed response is returned as an
// error rather than silently falling back to a default persona.
func (l *Loop) GenerateSystemPrompt(ctx context.Context, reg *PromptRegistry) (string, error) {
	req := []llm.Message{{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(genrePrompt)}}}
	stream, err := l.client.Stream(ctx, "", req, nil)
	if err != nil {
		return "", fmt.Errorf("agent: generate system prompt: %w", err)
	}

	var text strings.Builder
	for {
		ev, err := stream.Next()
		if err != nil {
			return "", fmt.Errorf("agent: generate system prompt: %w", err)
		}
		if ev.Kind == llm.StreamEventTextDelta {
			text.WriteString(ev.Delta)
		}
		if ev.Kind == llm.StreamEventMessage {
			break
		}
	}

	content := text.String()
	name := genreNamePattern.FindStringSubmatch(content)
	prompt := genrePromptPattern.FindStringSubmatch(content)
	if name == nil || prompt == nil {
		return "", fmt.Errorf("agent: generate system prompt: failed to parse model response")
	}

	id := slugify(name[1])
	reg.Register(id, strings.TrimSpace(prompt[1]))
	return id, nil
}

func slugify(name string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
