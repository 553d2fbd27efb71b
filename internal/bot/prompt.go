package bot

import (
	"strings"

	"github.com/curvelaunch/botworker/internal/domain"
)

// closingInstruction is appended to every system prompt so the model
// stays in character regardless of what the user-owned prompt says.
const closingInstruction = "You are the official chat bot representing this token's community. Always stay in character and answer as the token's representative."

// BuildSystemPrompt assembles the persona system prompt. The output is
// order-fixed: base prompt, traits (only when present), tone (always),
// allowed topics, forbidden topics, closing instruction.
func BuildSystemPrompt(p domain.Persona) string {
	var b strings.Builder
	b.WriteString(p.SystemPrompt)

	if len(p.Traits) > 0 {
		b.WriteString("\n\nTraits: ")
		b.WriteString(strings.Join(p.Traits, ", "))
	}

	b.WriteString("\nTone: ")
	b.WriteString(p.Tone)

	if len(p.AllowedTopics) > 0 {
		b.WriteString("\nAllowed topics: ")
		b.WriteString(strings.Join(p.AllowedTopics, ", "))
	}
	if len(p.ForbiddenTopics) > 0 {
		b.WriteString("\nForbidden topics: ")
		b.WriteString(strings.Join(p.ForbiddenTopics, ", "))
	}

	b.WriteString("\n\n")
	b.WriteString(closingInstruction)

	return b.String()
}
