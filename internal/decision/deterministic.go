package decision

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/actionspace"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// State is the mutable run state the deterministic policy consults: quota
// counters, the validation failure streak, and small bits of navigation
// memory. One State lives for the whole run; DecideDeterministic only writes
// ForceActionConsumed and ExploreNavIndex.
type State struct {
	Likes                         int
	Passes                        int
	Messages                      int
	ConsecutiveValidationFailures int
	LastAction                    schemas.ActionID
	ExploreNavIndex               int
	ForceActionConsumed           bool
}

// exploreNavCycle is the tab rotation the explore goal walks through.
var exploreNavCycle = []schemas.ActionID{
	schemas.ActionGotoMatches,
	schemas.ActionGotoLikesYou,
	schemas.ActionGotoStandouts,
	schemas.ActionGotoProfileHub,
	schemas.ActionGotoDiscover,
}

// DecideDeterministic evaluates the fixed rule table for one packet. The
// precedence is: one-shot forced action (with routing toward its surface),
// then the explore goal, then the message goal, then the default swipe
// policy. Identical inputs always produce identical plans; ties inside a
// rule fall back to catalog order.
func DecideDeterministic(packet *schemas.Packet, profile config.ProfileConfig, directive *Directive, state *State) schemas.ActionPlan {
	has := func(id schemas.ActionID) bool {
		return actionspace.Contains(packet.AvailableActions, id)
	}
	plan := func(id schemas.ActionID, reason string) schemas.ActionPlan {
		return schemas.ActionPlan{ActionID: id, Reason: reason, Source: schemas.SourceDeterministic}
	}
	messagePlan := func(reason string) schemas.ActionPlan {
		text := ComposeMessage(profile, packet.QualityFeatures)
		return schemas.ActionPlan{
			ActionID:    schemas.ActionSendMessage,
			MessageText: &text,
			Reason:      reason,
			Source:      schemas.SourceDeterministic,
		}
	}

	screen := packet.ScreenType
	score := packet.QualityScore
	features := packet.QualityFeatures
	swipe := profile.Swipe
	message := profile.Message

	promptAnswer := strings.ToLower(features.PromptAnswer)
	blocked := false
	for _, kw := range swipe.BlockPromptKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(promptAnswer, kw) {
			blocked = true
			break
		}
	}
	hasRequiredFlags := true
	for _, flag := range swipe.RequireFlagsAll {
		if !features.HasFlag(flag) {
			hasRequiredFlags = false
			break
		}
	}

	if directive.ForceActionOnce != "" && !state.ForceActionConsumed {
		forced := directive.ForceActionOnce
		if has(forced) {
			state.ForceActionConsumed = true
			return plan(forced, "natural_language_forced_action")
		}

		// Route toward a surface where the forced action can become
		// available; the force stays pending until then.
		switch forced {
		case schemas.ActionSendMessage:
			if screen == schemas.ScreenRoseSheet || screen == schemas.ScreenLikePaywall {
				if has(schemas.ActionDismissOverlay) {
					return plan(schemas.ActionDismissOverlay, "forced_send_message_overlay_recovery_dismiss")
				}
				if has(schemas.ActionBack) {
					return plan(schemas.ActionBack, "forced_send_message_overlay_recovery_back")
				}
			}
			if has(schemas.ActionGotoDiscover) {
				return plan(schemas.ActionGotoDiscover, "forced_send_message_route_discover")
			}
			if has(schemas.ActionOpenThread) {
				return plan(schemas.ActionOpenThread, "forced_send_message_route_open_thread")
			}
			if has(schemas.ActionGotoMatches) {
				return plan(schemas.ActionGotoMatches, "forced_send_message_route_matches")
			}
		case schemas.ActionOpenThread:
			if has(schemas.ActionGotoMatches) {
				return plan(schemas.ActionGotoMatches, "forced_open_thread_route_matches")
			}
		case schemas.ActionLike, schemas.ActionPass:
			if has(schemas.ActionGotoDiscover) {
				return plan(schemas.ActionGotoDiscover, fmt.Sprintf("forced_%s_route_discover", forced))
			}
		}
	}

	if directive.Goal == GoalExplore {
		if screen == schemas.ScreenRoseSheet {
			if has(schemas.ActionDismissOverlay) {
				return plan(schemas.ActionDismissOverlay, "explore_overlay_recovery_dismiss")
			}
			if has(schemas.ActionBack) {
				return plan(schemas.ActionBack, "explore_overlay_recovery_back")
			}
		}
		if screen == schemas.ScreenDiscoverCard {
			if message.Enabled && state.Messages < message.MaxMessages &&
				has(schemas.ActionSendMessage) &&
				score >= message.MinQualityScoreToMessage &&
				hasRequiredFlags && !blocked {
				return messagePlan("explore_discover_message_opportunity")
			}
			if score >= swipe.MinQualityScoreLike && hasRequiredFlags && !blocked &&
				has(schemas.ActionLike) && state.Likes < swipe.MaxLikes {
				return plan(schemas.ActionLike, "explore_scored_like")
			}
			if has(schemas.ActionPass) && state.Passes < swipe.MaxPasses {
				return plan(schemas.ActionPass, "explore_fallback_pass")
			}
		}

		if message.Enabled && state.Messages < message.MaxMessages &&
			screen != schemas.ScreenDiscoverCard {
			if has(schemas.ActionSendMessage) {
				return messagePlan("explore_message_opportunity")
			}
			if has(schemas.ActionOpenThread) {
				return plan(schemas.ActionOpenThread, "explore_open_thread")
			}
		}

		for offset := 0; offset < len(exploreNavCycle); offset++ {
			idx := (state.ExploreNavIndex + offset) % len(exploreNavCycle)
			candidate := exploreNavCycle[idx]
			if has(candidate) && candidate != state.LastAction {
				state.ExploreNavIndex = (idx + 1) % len(exploreNavCycle)
				return plan(candidate, "explore_nav_cycle")
			}
		}

		for _, candidate := range packet.AvailableActions {
			if candidate != schemas.ActionWait && candidate != state.LastAction {
				return plan(candidate, "explore_any_available")
			}
		}
		return plan(schemas.ActionWait, "explore_wait")
	}

	if directive.Goal == GoalMessage {
		if state.ConsecutiveValidationFailures >= 2 {
			if screen == schemas.ScreenDiscoverCard && has(schemas.ActionBack) {
				return plan(schemas.ActionBack, "message_goal_validation_recovery_back")
			}
			if has(schemas.ActionGotoDiscover) {
				return plan(schemas.ActionGotoDiscover, "message_goal_validation_recovery_discover")
			}
		}
		if screen == schemas.ScreenRoseSheet {
			if has(schemas.ActionDismissOverlay) {
				return plan(schemas.ActionDismissOverlay, "message_goal_overlay_recovery_dismiss")
			}
			if has(schemas.ActionBack) {
				return plan(schemas.ActionBack, "message_goal_overlay_recovery_back")
			}
		}
		if screen == schemas.ScreenLikePaywall {
			if has(schemas.ActionDismissOverlay) {
				return plan(schemas.ActionDismissOverlay, "message_goal_like_paywall_recovery_dismiss")
			}
			if has(schemas.ActionBack) {
				return plan(schemas.ActionBack, "message_goal_like_paywall_recovery_back")
			}
		}
		if screen == schemas.ScreenDiscoverCard {
			if state.ConsecutiveValidationFailures >= 2 && has(schemas.ActionBack) {
				return plan(schemas.ActionBack, "message_goal_discover_validation_recovery_back")
			}
			if has(schemas.ActionSendMessage) && state.Messages < message.MaxMessages {
				return messagePlan("message_goal_discover_message_surface")
			}
			if has(schemas.ActionGotoMatches) {
				return plan(schemas.ActionGotoMatches, "message_goal_route_matches")
			}
		}
		if screen == schemas.ScreenMatchesEmpty {
			if has(schemas.ActionGotoDiscover) {
				return plan(schemas.ActionGotoDiscover, "message_goal_no_matches_route_discover")
			}
			return plan(schemas.ActionWait, "message_goal_no_matches_available")
		}
		if screen == schemas.ScreenTabShell && has(schemas.ActionGotoDiscover) {
			return plan(schemas.ActionGotoDiscover, "message_goal_tab_shell_route_discover")
		}
		if has(schemas.ActionSendMessage) && state.Messages < message.MaxMessages {
			return messagePlan("message_goal_chat_surface")
		}
		if has(schemas.ActionOpenThread) {
			return plan(schemas.ActionOpenThread, "message_goal_open_thread")
		}
		if has(schemas.ActionGotoMatches) {
			return plan(schemas.ActionGotoMatches, "message_goal_navigate_matches")
		}
		if has(schemas.ActionGotoDiscover) {
			return plan(schemas.ActionGotoDiscover, "message_goal_fallback_discover")
		}
		if has(schemas.ActionBack) {
			return plan(schemas.ActionBack, "message_goal_back_recovery")
		}
		return plan(schemas.ActionWait, "message_goal_no_action_available")
	}

	if screen == schemas.ScreenDiscoverCard {
		if state.Likes >= swipe.MaxLikes {
			if has(schemas.ActionPass) && state.Passes < swipe.MaxPasses {
				return plan(schemas.ActionPass, "like_quota_exhausted")
			}
			return plan(schemas.ActionWait, "like_quota_exhausted_no_pass")
		}
		if blocked {
			if has(schemas.ActionPass) && state.Passes < swipe.MaxPasses {
				return plan(schemas.ActionPass, "blocked_prompt_keyword")
			}
			return plan(schemas.ActionWait, "blocked_prompt_keyword_no_pass")
		}
		if !hasRequiredFlags {
			if has(schemas.ActionPass) && state.Passes < swipe.MaxPasses {
				return plan(schemas.ActionPass, "required_flags_missing")
			}
			return plan(schemas.ActionWait, "required_flags_missing_no_pass")
		}
		if message.Enabled && state.Messages < message.MaxMessages &&
			has(schemas.ActionSendMessage) &&
			score >= message.MinQualityScoreToMessage {
			return messagePlan("discover_profile_message_policy")
		}
		if score >= swipe.MinQualityScoreLike && has(schemas.ActionLike) {
			return plan(schemas.ActionLike, fmt.Sprintf("score>=%d", swipe.MinQualityScoreLike))
		}
		if has(schemas.ActionPass) && state.Passes < swipe.MaxPasses {
			return plan(schemas.ActionPass, fmt.Sprintf("score<%d", swipe.MinQualityScoreLike))
		}
		if has(schemas.ActionBack) {
			return plan(schemas.ActionBack, "discover_no_pass_recovery_back")
		}
		return plan(schemas.ActionWait, "no_like_or_pass_available")
	}

	if screen == schemas.ScreenRoseSheet {
		if has(schemas.ActionDismissOverlay) {
			return plan(schemas.ActionDismissOverlay, "swipe_goal_overlay_recovery_dismiss")
		}
		if has(schemas.ActionBack) {
			return plan(schemas.ActionBack, "swipe_goal_overlay_recovery_back")
		}
	}
	if screen == schemas.ScreenLikePaywall {
		if has(schemas.ActionDismissOverlay) {
			return plan(schemas.ActionDismissOverlay, "swipe_goal_like_paywall_recovery_dismiss")
		}
		if has(schemas.ActionBack) {
			return plan(schemas.ActionBack, "swipe_goal_like_paywall_recovery_back")
		}
	}

	if screen == schemas.ScreenChatThread {
		if message.Enabled && state.Messages < message.MaxMessages &&
			has(schemas.ActionSendMessage) &&
			score >= message.MinQualityScoreToMessage {
			return messagePlan("chat_surface_profile_message_policy")
		}
		if has(schemas.ActionGotoDiscover) {
			return plan(schemas.ActionGotoDiscover, "chat_surface_return_discover")
		}
		if has(schemas.ActionBack) {
			return plan(schemas.ActionBack, "chat_surface_back")
		}
		return plan(schemas.ActionWait, "chat_surface_no_available_navigation")
	}

	if has(schemas.ActionGotoDiscover) {
		return plan(schemas.ActionGotoDiscover, "default_route_discover")
	}
	if screen == schemas.ScreenUnknown && has(schemas.ActionBack) {
		return plan(schemas.ActionBack, "unknown_surface_recovery_back")
	}
	return plan(schemas.ActionWait, "default_wait")
}
