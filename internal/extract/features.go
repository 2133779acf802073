// Package extract turns one observation into scored, structured content:
// quality features, interaction targets, a profile summary, and the packet
// fingerprint. Everything here is pure; the same observation always yields
// the same content.
package extract

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Photo labels end with a possessive "photo" suffix in either apostrophe
// form, e.g. "Priya's photo".
var photoSuffixes = []string{"'s photo", "’s photo"}

// ExtractFeatures scans the observation's visible strings for the quality
// signals the scorer weighs. First match wins for the profile name and the
// prompt answer; like targets accumulate; flags are a sorted set.
func ExtractFeatures(raw []string) schemas.QualityFeatures {
	var f schemas.QualityFeatures
	flags := make(map[string]struct{}, 3)

	for _, s := range raw {
		lowered := strings.ToLower(strings.TrimSpace(s))

		if f.ProfileName == "" {
			for _, suffix := range photoSuffixes {
				if strings.HasSuffix(lowered, suffix) {
					f.ProfileName = trimPhotoSuffix(s)
					break
				}
			}
		}

		if f.PromptAnswer == "" && strings.HasPrefix(lowered, "prompt:") && strings.Contains(lowered, "answer:") {
			prompt, answer := splitPromptAnswer(s)
			f.PromptText = prompt
			f.PromptAnswer = answer
		}

		if strings.HasPrefix(lowered, "like ") {
			f.LikeTargets = append(f.LikeTargets, s)
		}

		if strings.Contains(lowered, "selfie verified") {
			flags[schemas.FlagSelfieVerified] = struct{}{}
		}
		if strings.Contains(lowered, "active today") {
			flags[schemas.FlagActiveToday] = struct{}{}
		}
		if strings.Contains(lowered, "voice prompt") {
			flags[schemas.FlagVoicePrompt] = struct{}{}
		}
	}

	if len(flags) > 0 {
		f.Flags = make([]string, 0, len(flags))
		for flag := range flags {
			f.Flags = append(f.Flags, flag)
		}
		sort.Strings(f.Flags)
	}
	return f
}

// trimPhotoSuffix cuts everything from the possessive suffix onward,
// preserving the original casing of the name.
func trimPhotoSuffix(s string) string {
	for _, suffix := range []string{"'s photo", "’s photo"} {
		if idx := indexFold(s, suffix); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// splitPromptAnswer separates "Prompt: <question> Answer: <answer>". The
// answer is everything after the literal "Answer:" marker; when the marker
// is absent in that exact casing the whole string counts as the answer,
// which downstream treats the same as the source format does.
func splitPromptAnswer(s string) (prompt, answer string) {
	if idx := strings.Index(s, "Answer:"); idx >= 0 {
		answer = strings.TrimSpace(s[idx+len("Answer:"):])
		prompt = strings.TrimSpace(trimPromptPrefix(s[:idx]))
	} else {
		answer = strings.TrimSpace(s)
		prompt = ""
	}
	if answer == "" {
		return prompt, ""
	}
	return prompt, answer
}

func trimPromptPrefix(s string) string {
	if idx := indexFold(s, "prompt:"); idx >= 0 {
		return s[idx+len("prompt:"):]
	}
	return s
}

// indexFold is a case-insensitive strings.Index for ASCII-dominant labels.
func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
