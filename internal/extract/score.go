package extract

import (
	"fmt"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// quality_score_v1 weights. The version string is stored with every packet,
// so these numbers must never change under the same version.
const (
	weightDiscoverSurface = 20
	weightSelfieVerified  = 20
	weightActiveToday     = 15
	weightVoicePrompt     = 10
	weightPromptAnswer    = 15
	weightPerLikeTarget   = 8
	maxScoredLikeTargets  = 3
	weightProfileName     = 8
)

// ScoreQuality computes the v1 quality score for one screen plus the list of
// applied weights, for the packet log. An empty matches screen is a hard
// zero regardless of features.
func ScoreQuality(screenType schemas.ScreenType, f schemas.QualityFeatures) (int, []string) {
	if screenType == schemas.ScreenMatchesEmpty {
		return 0, []string{"matches_empty=0"}
	}

	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, fmt.Sprintf("%s+%d", reason, points))
	}

	if screenType == schemas.ScreenDiscoverCard {
		add(weightDiscoverSurface, "discover_surface")
	}
	if f.HasFlag(schemas.FlagSelfieVerified) {
		add(weightSelfieVerified, schemas.FlagSelfieVerified)
	}
	if f.HasFlag(schemas.FlagActiveToday) {
		add(weightActiveToday, schemas.FlagActiveToday)
	}
	if f.HasFlag(schemas.FlagVoicePrompt) {
		add(weightVoicePrompt, schemas.FlagVoicePrompt)
	}
	if f.PromptAnswer != "" {
		add(weightPromptAnswer, "prompt_answer")
	}
	if n := len(f.LikeTargets); n > 0 {
		if n > maxScoredLikeTargets {
			n = maxScoredLikeTargets
		}
		add(n*weightPerLikeTarget, fmt.Sprintf("like_targets_x%d", n))
	}
	if f.ProfileName != "" {
		add(weightProfileName, "profile_name")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, reasons
}
