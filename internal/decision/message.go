package decision

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// questionSuffix is appended when the persona requires a question and the
// composed text has none.
const questionSuffix = " What's been your highlight this week?"

// renderTemplate substitutes the profile name into a message template.
// Unknown names fall back to a neutral address.
func renderTemplate(template, name string) string {
	if name == "" {
		name = "there"
	}
	return strings.ReplaceAll(template, "{{name}}", name)
}

// ComposeMessage renders the policy template for the current profile and
// normalizes it. Used by the deterministic policy, which never free-writes.
func ComposeMessage(profile config.ProfileConfig, features schemas.QualityFeatures) string {
	return NormalizeMessage("", profile, features)
}

// NormalizeMessage makes outbound text safe to send: empty input falls back
// to the rendered template, whitespace is collapsed, the persona's character
// budget is enforced by truncation with an ellipsis, and a question is
// appended when the persona requires one. Truncation counts runes, not
// bytes, so multi-byte names do not get split mid-character.
func NormalizeMessage(raw string, profile config.ProfileConfig, features schemas.QualityFeatures) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = renderTemplate(profile.Message.Template, features.ProfileName)
	}
	text = strings.Join(strings.Fields(text), " ")

	maxChars := profile.Persona.MaxMessageChars
	if runes := []rune(text); len(runes) > maxChars {
		text = trimTrailingSpace(string(runes[:maxChars-1])) + "…"
	}

	if profile.Persona.RequireQuestion && !strings.Contains(text, "?") {
		candidate := text + questionSuffix
		if len([]rune(candidate)) <= maxChars {
			text = candidate
		} else {
			keep := maxChars - len([]rune(questionSuffix)) - 1
			if keep < 0 {
				keep = 0
			}
			head := trimTrailingSpace(string([]rune(text)[:keep]))
			text = strings.TrimSpace(head + questionSuffix)
		}
	}
	return text
}

func trimTrailingSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
