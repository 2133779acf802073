package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

func testProfile() config.ProfileConfig {
	return config.ProfileConfig{
		Name: "test_profile",
		Persona: config.PersonaConfig{
			MaxMessageChars: 180,
			RequireQuestion: true,
		},
		Swipe: config.SwipePolicy{
			MinQualityScoreLike: 70,
			MaxLikes:            20,
			MaxPasses:           120,
		},
		Message: config.MessagePolicy{
			Enabled:                  false,
			MinQualityScoreToMessage: 85,
			MaxMessages:              5,
			Template:                 "Hey {{name}}, how's your week going?",
		},
	}
}

func testPacket(screen schemas.ScreenType, score int, available ...schemas.ActionID) *schemas.Packet {
	return &schemas.Packet{
		ScreenType:       screen,
		QualityScore:     score,
		AvailableActions: available,
	}
}

func mustDirective(t *testing.T, query string) *Directive {
	t.Helper()
	d, err := ParseDirective(query)
	require.NoError(t, err)
	return d
}

func TestDecideDiscoverCardLikesHighScore(t *testing.T) {
	profile := testProfile()
	profile.Swipe.MinQualityScoreLike = 75
	packet := testPacket(schemas.ScreenDiscoverCard, 82,
		schemas.ActionLike, schemas.ActionPass, schemas.ActionBack, schemas.ActionWait)

	plan := DecideDeterministic(packet, profile, mustDirective(t, ""), &State{})
	assert.Equal(t, schemas.ActionLike, plan.ActionID)
	assert.Equal(t, "score>=75", plan.Reason)
	assert.Equal(t, schemas.SourceDeterministic, plan.Source)
	assert.Nil(t, plan.MessageText)
}

func TestDecideIsPure(t *testing.T) {
	profile := testProfile()
	packet := testPacket(schemas.ScreenDiscoverCard, 90,
		schemas.ActionLike, schemas.ActionPass, schemas.ActionWait)
	directive := mustDirective(t, "")

	first := DecideDeterministic(packet, profile, directive, &State{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DecideDeterministic(packet, profile, directive, &State{}))
	}
}

func TestDecideDiscoverPrecedence(t *testing.T) {
	directive := mustDirective(t, "")
	available := []schemas.ActionID{
		schemas.ActionLike, schemas.ActionPass, schemas.ActionSendMessage,
		schemas.ActionBack, schemas.ActionWait,
	}

	t.Run("like quota exhausted passes instead", func(t *testing.T) {
		profile := testProfile()
		packet := testPacket(schemas.ScreenDiscoverCard, 95, available...)
		plan := DecideDeterministic(packet, profile, directive, &State{Likes: profile.Swipe.MaxLikes})
		assert.Equal(t, schemas.ActionPass, plan.ActionID)
		assert.Equal(t, "like_quota_exhausted", plan.Reason)
	})

	t.Run("like quota exhausted without pass waits", func(t *testing.T) {
		profile := testProfile()
		packet := testPacket(schemas.ScreenDiscoverCard, 95, schemas.ActionLike, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{Likes: profile.Swipe.MaxLikes})
		assert.Equal(t, schemas.ActionWait, plan.ActionID)
		assert.Equal(t, "like_quota_exhausted_no_pass", plan.Reason)
	})

	t.Run("blocked prompt keyword outranks score", func(t *testing.T) {
		profile := testProfile()
		profile.Swipe.BlockPromptKeywords = []string{"crypto"}
		packet := testPacket(schemas.ScreenDiscoverCard, 95, available...)
		packet.QualityFeatures.PromptAnswer = "Ask me about my Crypto portfolio"
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionPass, plan.ActionID)
		assert.Equal(t, "blocked_prompt_keyword", plan.Reason)
	})

	t.Run("required flags missing passes", func(t *testing.T) {
		profile := testProfile()
		profile.Swipe.RequireFlagsAll = []string{schemas.FlagSelfieVerified}
		packet := testPacket(schemas.ScreenDiscoverCard, 95, available...)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionPass, plan.ActionID)
		assert.Equal(t, "required_flags_missing", plan.Reason)
	})

	t.Run("message policy outranks like", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenDiscoverCard, 90, available...)
		packet.QualityFeatures.ProfileName = "Priya"
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "discover_profile_message_policy", plan.Reason)
		require.NotNil(t, plan.MessageText)
		assert.Equal(t, "Hey Priya, how's your week going?", *plan.MessageText)
	})

	t.Run("message quota spent falls through to like", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenDiscoverCard, 90, available...)
		plan := DecideDeterministic(packet, profile, directive, &State{Messages: profile.Message.MaxMessages})
		assert.Equal(t, schemas.ActionLike, plan.ActionID)
	})

	t.Run("low score passes", func(t *testing.T) {
		profile := testProfile()
		packet := testPacket(schemas.ScreenDiscoverCard, 40, available...)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionPass, plan.ActionID)
		assert.Equal(t, "score<70", plan.Reason)
	})

	t.Run("pass quota spent backs out", func(t *testing.T) {
		profile := testProfile()
		packet := testPacket(schemas.ScreenDiscoverCard, 40, available...)
		plan := DecideDeterministic(packet, profile, directive, &State{Passes: profile.Swipe.MaxPasses})
		assert.Equal(t, schemas.ActionBack, plan.ActionID)
		assert.Equal(t, "discover_no_pass_recovery_back", plan.Reason)
	})

	t.Run("nothing actionable waits", func(t *testing.T) {
		profile := testProfile()
		packet := testPacket(schemas.ScreenDiscoverCard, 40, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionWait, plan.ActionID)
		assert.Equal(t, "no_like_or_pass_available", plan.Reason)
	})
}

func TestDecideForcedAction(t *testing.T) {
	profile := testProfile()

	t.Run("forced action consumed exactly once", func(t *testing.T) {
		directive := mustDirective(t, "go to matches")
		require.Equal(t, schemas.ActionGotoMatches, directive.ForceActionOnce)
		state := &State{}
		packet := testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionGotoDiscover, schemas.ActionGotoMatches, schemas.ActionBack, schemas.ActionWait)

		plan := DecideDeterministic(packet, profile, directive, state)
		assert.Equal(t, schemas.ActionGotoMatches, plan.ActionID)
		assert.Equal(t, "natural_language_forced_action", plan.Reason)
		assert.True(t, state.ForceActionConsumed)

		plan = DecideDeterministic(packet, profile, directive, state)
		assert.NotEqual(t, "natural_language_forced_action", plan.Reason)
	})

	t.Run("forced send_message dismisses overlays first", func(t *testing.T) {
		directive := mustDirective(t, "send message now")
		packet := testPacket(schemas.ScreenRoseSheet, 0,
			schemas.ActionDismissOverlay, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionDismissOverlay, plan.ActionID)
		assert.Equal(t, "forced_send_message_overlay_recovery_dismiss", plan.Reason)

		packet = testPacket(schemas.ScreenLikePaywall, 0, schemas.ActionBack, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionBack, plan.ActionID)
		assert.Equal(t, "forced_send_message_overlay_recovery_back", plan.Reason)
	})

	t.Run("forced send_message routes toward a composer", func(t *testing.T) {
		directive := mustDirective(t, "force send message")

		packet := testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionGotoDiscover, schemas.ActionGotoMatches, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
		assert.Equal(t, "forced_send_message_route_discover", plan.Reason)

		packet = testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionOpenThread, schemas.ActionGotoMatches, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionOpenThread, plan.ActionID)
		assert.Equal(t, "forced_send_message_route_open_thread", plan.Reason)

		packet = testPacket(schemas.ScreenTabShell, 0, schemas.ActionGotoMatches, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoMatches, plan.ActionID)
		assert.Equal(t, "forced_send_message_route_matches", plan.Reason)
	})

	t.Run("forced open_thread routes to matches", func(t *testing.T) {
		directive := mustDirective(t, "open thread now")
		packet := testPacket(schemas.ScreenDiscoverCard, 0, schemas.ActionGotoMatches, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoMatches, plan.ActionID)
		assert.Equal(t, "forced_open_thread_route_matches", plan.Reason)
	})

	t.Run("forced like routes to discover", func(t *testing.T) {
		directive := mustDirective(t, "like now")
		packet := testPacket(schemas.ScreenTabShell, 0, schemas.ActionGotoDiscover, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
		assert.Equal(t, "forced_like_route_discover", plan.Reason)
	})

	t.Run("forced pass routes to discover", func(t *testing.T) {
		directive := mustDirective(t, "pass now")
		packet := testPacket(schemas.ScreenTabShell, 0, schemas.ActionGotoDiscover, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "forced_pass_route_discover", plan.Reason)
	})
}

func TestDecideExploreGoal(t *testing.T) {
	directive := mustDirective(t, "explore the app")
	require.Equal(t, GoalExplore, directive.Goal)

	t.Run("overlay recovery", func(t *testing.T) {
		packet := testPacket(schemas.ScreenRoseSheet, 0,
			schemas.ActionDismissOverlay, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, schemas.ActionDismissOverlay, plan.ActionID)
		assert.Equal(t, "explore_overlay_recovery_dismiss", plan.Reason)
	})

	t.Run("discover message opportunity", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenDiscoverCard, 90,
			schemas.ActionLike, schemas.ActionSendMessage, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "explore_discover_message_opportunity", plan.Reason)
		assert.NotNil(t, plan.MessageText)
	})

	t.Run("discover scored like", func(t *testing.T) {
		packet := testPacket(schemas.ScreenDiscoverCard, 90,
			schemas.ActionLike, schemas.ActionPass, schemas.ActionWait)
		plan := DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, schemas.ActionLike, plan.ActionID)
		assert.Equal(t, "explore_scored_like", plan.Reason)
	})

	t.Run("discover fallback pass", func(t *testing.T) {
		packet := testPacket(schemas.ScreenDiscoverCard, 10,
			schemas.ActionLike, schemas.ActionPass, schemas.ActionWait)
		plan := DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, schemas.ActionPass, plan.ActionID)
		assert.Equal(t, "explore_fallback_pass", plan.Reason)
	})

	t.Run("message opportunity off discover", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenChatThread, 0,
			schemas.ActionSendMessage, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "explore_message_opportunity", plan.Reason)

		packet = testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionOpenThread, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionOpenThread, plan.ActionID)
		assert.Equal(t, "explore_open_thread", plan.Reason)
	})

	t.Run("nav cycle rotates and skips the last action", func(t *testing.T) {
		state := &State{}
		packet := testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionGotoDiscover, schemas.ActionGotoMatches, schemas.ActionWait)

		plan := DecideDeterministic(packet, testProfile(), directive, state)
		assert.Equal(t, schemas.ActionGotoMatches, plan.ActionID)
		assert.Equal(t, "explore_nav_cycle", plan.Reason)
		assert.Equal(t, 1, state.ExploreNavIndex)

		state.LastAction = schemas.ActionGotoMatches
		plan = DecideDeterministic(packet, testProfile(), directive, state)
		assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
		assert.Equal(t, "explore_nav_cycle", plan.Reason)
	})

	t.Run("any available fallback avoids wait and repeats", func(t *testing.T) {
		packet := testPacket(schemas.ScreenUnknown, 0, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, schemas.ActionBack, plan.ActionID)
		assert.Equal(t, "explore_any_available", plan.Reason)

		plan = DecideDeterministic(packet, testProfile(), directive, &State{LastAction: schemas.ActionBack})
		assert.Equal(t, schemas.ActionWait, plan.ActionID)
		assert.Equal(t, "explore_wait", plan.Reason)
	})
}

func TestDecideMessageGoal(t *testing.T) {
	directive := mustDirective(t, "message my matches")
	require.Equal(t, GoalMessage, directive.Goal)
	profile := testProfile()
	profile.Message.Enabled = true

	t.Run("validation streak recovers with back on discover", func(t *testing.T) {
		packet := testPacket(schemas.ScreenDiscoverCard, 0,
			schemas.ActionSendMessage, schemas.ActionBack, schemas.ActionWait)
		state := &State{ConsecutiveValidationFailures: 2}
		plan := DecideDeterministic(packet, profile, directive, state)
		assert.Equal(t, schemas.ActionBack, plan.ActionID)
		assert.Equal(t, "message_goal_validation_recovery_back", plan.Reason)
	})

	t.Run("validation streak reroutes to discover elsewhere", func(t *testing.T) {
		packet := testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionGotoDiscover, schemas.ActionWait)
		state := &State{ConsecutiveValidationFailures: 3}
		plan := DecideDeterministic(packet, profile, directive, state)
		assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
		assert.Equal(t, "message_goal_validation_recovery_discover", plan.Reason)
	})

	t.Run("rose sheet recovery", func(t *testing.T) {
		packet := testPacket(schemas.ScreenRoseSheet, 0,
			schemas.ActionDismissOverlay, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_overlay_recovery_dismiss", plan.Reason)
	})

	t.Run("paywall recovery", func(t *testing.T) {
		packet := testPacket(schemas.ScreenLikePaywall, 0, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_like_paywall_recovery_back", plan.Reason)
	})

	t.Run("discover card sends when composer offered", func(t *testing.T) {
		packet := testPacket(schemas.ScreenDiscoverCard, 0,
			schemas.ActionSendMessage, schemas.ActionGotoMatches, schemas.ActionWait)
		packet.QualityFeatures.ProfileName = "Dana"
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "message_goal_discover_message_surface", plan.Reason)
		require.NotNil(t, plan.MessageText)
		assert.Contains(t, *plan.MessageText, "Dana")
	})

	t.Run("discover card without composer routes to matches", func(t *testing.T) {
		packet := testPacket(schemas.ScreenDiscoverCard, 0,
			schemas.ActionLike, schemas.ActionGotoMatches, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoMatches, plan.ActionID)
		assert.Equal(t, "message_goal_route_matches", plan.Reason)
	})

	t.Run("matches empty routes back to discover", func(t *testing.T) {
		packet := testPacket(schemas.ScreenMatchesEmpty, 0,
			schemas.ActionGotoDiscover, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_no_matches_route_discover", plan.Reason)

		packet = testPacket(schemas.ScreenMatchesEmpty, 0, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionWait, plan.ActionID)
		assert.Equal(t, "message_goal_no_matches_available", plan.Reason)
	})

	t.Run("tab shell routes to discover", func(t *testing.T) {
		packet := testPacket(schemas.ScreenTabShell, 0,
			schemas.ActionGotoDiscover, schemas.ActionGotoMatches, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_tab_shell_route_discover", plan.Reason)
	})

	t.Run("chat surface sends", func(t *testing.T) {
		packet := testPacket(schemas.ScreenChatThread, 0,
			schemas.ActionSendMessage, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "message_goal_chat_surface", plan.Reason)
	})

	t.Run("message quota spent opens threads instead", func(t *testing.T) {
		packet := testPacket(schemas.ScreenChatThread, 0,
			schemas.ActionSendMessage, schemas.ActionOpenThread, schemas.ActionWait)
		state := &State{Messages: profile.Message.MaxMessages}
		plan := DecideDeterministic(packet, profile, directive, state)
		assert.Equal(t, schemas.ActionOpenThread, plan.ActionID)
		assert.Equal(t, "message_goal_open_thread", plan.Reason)
	})

	t.Run("navigation fallback chain", func(t *testing.T) {
		packet := testPacket(schemas.ScreenUnknown, 0, schemas.ActionGotoMatches, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_navigate_matches", plan.Reason)

		packet = testPacket(schemas.ScreenUnknown, 0, schemas.ActionGotoDiscover, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_fallback_discover", plan.Reason)

		packet = testPacket(schemas.ScreenUnknown, 0, schemas.ActionBack, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_back_recovery", plan.Reason)

		packet = testPacket(schemas.ScreenUnknown, 0, schemas.ActionWait)
		plan = DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, "message_goal_no_action_available", plan.Reason)
	})
}

func TestDecideChatSurfaceDefaultGoal(t *testing.T) {
	directive := mustDirective(t, "")

	t.Run("messages when policy allows", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenChatThread, 90,
			schemas.ActionSendMessage, schemas.ActionGotoDiscover, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionSendMessage, plan.ActionID)
		assert.Equal(t, "chat_surface_profile_message_policy", plan.Reason)
	})

	t.Run("low score returns to discover", func(t *testing.T) {
		profile := testProfile()
		profile.Message.Enabled = true
		packet := testPacket(schemas.ScreenChatThread, 10,
			schemas.ActionSendMessage, schemas.ActionGotoDiscover, schemas.ActionWait)
		plan := DecideDeterministic(packet, profile, directive, &State{})
		assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
		assert.Equal(t, "chat_surface_return_discover", plan.Reason)
	})

	t.Run("back then wait", func(t *testing.T) {
		packet := testPacket(schemas.ScreenChatThread, 0, schemas.ActionBack, schemas.ActionWait)
		plan := DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, "chat_surface_back", plan.Reason)

		packet = testPacket(schemas.ScreenChatThread, 0, schemas.ActionWait)
		plan = DecideDeterministic(packet, testProfile(), directive, &State{})
		assert.Equal(t, "chat_surface_no_available_navigation", plan.Reason)
	})
}

func TestDecideOverlayRecoveryDefaultGoal(t *testing.T) {
	directive := mustDirective(t, "")

	packet := testPacket(schemas.ScreenRoseSheet, 0,
		schemas.ActionDismissOverlay, schemas.ActionBack, schemas.ActionWait)
	plan := DecideDeterministic(packet, testProfile(), directive, &State{})
	assert.Equal(t, schemas.ActionDismissOverlay, plan.ActionID)
	assert.Equal(t, "swipe_goal_overlay_recovery_dismiss", plan.Reason)

	packet = testPacket(schemas.ScreenLikePaywall, 0, schemas.ActionBack, schemas.ActionWait)
	plan = DecideDeterministic(packet, testProfile(), directive, &State{})
	assert.Equal(t, schemas.ActionBack, plan.ActionID)
	assert.Equal(t, "swipe_goal_like_paywall_recovery_back", plan.Reason)
}

func TestDecideDefaultRouting(t *testing.T) {
	directive := mustDirective(t, "")

	packet := testPacket(schemas.ScreenTabShell, 0, schemas.ActionGotoDiscover, schemas.ActionWait)
	plan := DecideDeterministic(packet, testProfile(), directive, &State{})
	assert.Equal(t, schemas.ActionGotoDiscover, plan.ActionID)
	assert.Equal(t, "default_route_discover", plan.Reason)

	packet = testPacket(schemas.ScreenUnknown, 0, schemas.ActionBack, schemas.ActionWait)
	plan = DecideDeterministic(packet, testProfile(), directive, &State{})
	assert.Equal(t, schemas.ActionBack, plan.ActionID)
	assert.Equal(t, "unknown_surface_recovery_back", plan.Reason)

	packet = testPacket(schemas.ScreenTabShell, 0, schemas.ActionWait)
	plan = DecideDeterministic(packet, testProfile(), directive, &State{})
	assert.Equal(t, schemas.ActionWait, plan.ActionID)
	assert.Equal(t, "default_wait", plan.Reason)
}
