package bot

import (
	"strings"
	"testing"

	"github.com/curvelaunch/botworker/internal/domain"
)

func TestBuildSystemPrompt_NoTraits(t *testing.T) {
	p := domain.Persona{
		SystemPrompt: "You are Moon Bot.",
		Tone:         "friendly",
	}

	prompt := BuildSystemPrompt(p)

	if strings.Contains(prompt, "Traits:") {
		t.Errorf("Expected no Traits line for empty traits, got %q", prompt)
	}
	if !strings.Contains(prompt, "\nTone: friendly") {
		t.Errorf("Expected Tone line, got %q", prompt)
	}
}

func TestBuildSystemPrompt_TraitsBeforeTone(t *testing.T) {
	p := domain.Persona{
		SystemPrompt: "You are Moon Bot.",
		Traits:       []string{"funny", "optimistic"},
		Tone:         "casual",
	}

	prompt := BuildSystemPrompt(p)

	want := "Traits: funny, optimistic"
	if strings.Count(prompt, want) != 1 {
		t.Fatalf("Expected exactly one %q, got %q", want, prompt)
	}

	traitsIdx := strings.Index(prompt, want)
	toneIdx := strings.Index(prompt, "Tone:")
	if toneIdx < traitsIdx {
		t.Errorf("Expected Traits before Tone, got %q", prompt)
	}
}

func TestBuildSystemPrompt_OptionalTopics(t *testing.T) {
	p := domain.Persona{
		SystemPrompt: "Base.",
		Tone:         "direct",
	}
	prompt := BuildSystemPrompt(p)
	if strings.Contains(prompt, "Allowed topics:") || strings.Contains(prompt, "Forbidden topics:") {
		t.Errorf("Expected no topic lines when unset, got %q", prompt)
	}

	p.AllowedTopics = []string{"tokenomics", "roadmap"}
	p.ForbiddenTopics = []string{"price predictions"}
	prompt = BuildSystemPrompt(p)

	if !strings.Contains(prompt, "\nAllowed topics: tokenomics, roadmap") {
		t.Errorf("Expected allowed topics line, got %q", prompt)
	}
	if !strings.Contains(prompt, "\nForbidden topics: price predictions") {
		t.Errorf("Expected forbidden topics line, got %q", prompt)
	}
}

func TestBuildSystemPrompt_BasePromptVerbatim(t *testing.T) {
	base := "Custom prompt\nwith newlines\tand tabs."
	prompt := BuildSystemPrompt(domain.Persona{SystemPrompt: base, Tone: "any"})

	if !strings.HasPrefix(prompt, base) {
		t.Errorf("Expected prompt to start with the verbatim base prompt, got %q", prompt)
	}
	if !strings.HasSuffix(prompt, closingInstruction) {
		t.Errorf("Expected prompt to end with the closing instruction, got %q", prompt)
	}
}
