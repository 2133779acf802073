package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Extract runs the full content pipeline for one observation: features,
// score, interaction targets, profile summary, and fingerprint. The score is
// returned separately so callers can log it next to the applied weights.
func Extract(obs *schemas.Observation, screenType schemas.ScreenType) (schemas.Content, int, []string) {
	content := schemas.Content{
		Features: ExtractFeatures(obs.RawStrings),
		Targets:  ExtractTargets(obs.Nodes),
	}
	content.LikeCandidates = FilterKind(content.Targets, schemas.TargetLikeButton)

	if summary := Summarize(content.Features); summary.SignalStrength > 0 {
		content.Profile = &summary
		content.ProfileFingerprint = Fingerprint(summary)
	}

	score, reasons := ScoreQuality(screenType, content.Features)
	return content, score, reasons
}

// Summarize folds extracted features into the packet's profile summary.
// SignalStrength counts how many fields carried real content.
func Summarize(f schemas.QualityFeatures) schemas.ProfileSummary {
	s := schemas.ProfileSummary{
		Name:         f.ProfileName,
		PromptText:   f.PromptText,
		PromptAnswer: f.PromptAnswer,
		Attributes:   f.Flags,
	}
	for _, present := range []bool{
		s.Name != "",
		s.PromptText != "",
		s.PromptAnswer != "",
		len(s.Attributes) > 0,
	} {
		if present {
			s.SignalStrength++
		}
	}
	return s
}

// Fingerprint hashes the canonical JSON form of a profile summary. Two
// captures of the same on-screen profile produce the same fingerprint even
// when the surrounding chrome differs.
func Fingerprint(summary schemas.ProfileSummary) string {
	canonical, err := json.ConfigCompatibleWithStandardLibrary.Marshal(summary)
	if err != nil {
		// A plain struct of strings cannot fail to marshal.
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// ScreenFingerprint keys the visible state of one screen for post-action
// change detection: the screen type, the headline profile features, and the
// first few raw strings. Only equality matters; the value never leaves the
// process.
func ScreenFingerprint(screenType schemas.ScreenType, f schemas.QualityFeatures, raw []string) string {
	flags := f.Flags
	if len(flags) > 6 {
		flags = flags[:6]
	}
	head := raw
	if len(head) > 12 {
		head = head[:12]
	}
	key := strings.Join([]string{
		string(screenType),
		f.ProfileName,
		f.PromptAnswer,
		strings.Join(flags, "|"),
		strings.Join(head, "|"),
	}, "||")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
