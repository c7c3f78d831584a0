package ollama

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Take describes a finished recording for naming.
type Take struct {
	Scale     string // display name, e.g. "Maqam Hijaz"
	Character string
	BPM       float64
	Duration  float64
	Voices    []string
}

var ErrUnusableTitle = errors.New("unusable title")

// TitleGenerator names finished takes with an LLM.
type TitleGenerator struct {
	client *Client

	mu   sync.Mutex
	last map[string]string // scale -> last title, to avoid repeats
}

func NewTitleGenerator(client *Client) *TitleGenerator {
	return &TitleGenerator{client: client, last: make(map[string]string)}
}

const titleSystemPrompt = `You name short ambient recordings built on Arabic maqam scales.

Given the maqam, its character, the tempo and the instruments, reply with one evocative title of 2-5 words.

Rules:
- Atmospheric, not literal; it may hint at place, light or time of day
- Do not repeat the maqam name or list instruments
- No numbers, no quotes, no "Untitled"
- Title case

Output ONLY the title.

/no_think`

// GenerateTitle asks the model for a title. Callers keep their own
// fallback title on error.
func (g *TitleGenerator) GenerateTitle(ctx context.Context, take Take) (string, error) {
	prompt := fmt.Sprintf("Maqam: %s\nCharacter: %s\nTempo: %.0f BPM\nLength: %.0f seconds\nInstruments: %s",
		take.Scale, take.Character, take.BPM, take.Duration, strings.Join(take.Voices, ", "))

	g.mu.Lock()
	if prev := g.last[take.Scale]; prev != "" {
		prompt += "\nPrevious title (do NOT repeat it): " + prev
	}
	g.mu.Unlock()

	raw, err := g.client.Generate(ctx, titleSystemPrompt, prompt, 24)
	if err != nil {
		return "", err
	}
	title := cleanResponse(raw)
	if title == "" || len(title) > 60 || strings.Count(title, " ") > 5 {
		return "", fmt.Errorf("%w: %q", ErrUnusableTitle, raw)
	}

	g.mu.Lock()
	g.last[take.Scale] = title
	g.mu.Unlock()
	log.Printf("LLM title [%s]: %s", take.Scale, title)
	return title, nil
}

// cleanResponse strips common LLM artifacts from output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// qwen3 thinking leakage
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = s[1 : len(s)-1]
	}
	lower := strings.ToLower(s)
	for _, p := range []string{"title:", "here's a title:", "here is a title:"} {
		if strings.HasPrefix(lower, p) {
			s = s[len(p):]
			break
		}
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
