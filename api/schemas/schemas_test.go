package schemas_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

func TestCatalogShape(t *testing.T) {
	catalog := schemas.Catalog()
	require.Len(t, catalog, 12, "catalog must hold exactly twelve actions")

	wantOrder := []schemas.ActionID{
		schemas.ActionGotoDiscover,
		schemas.ActionGotoMatches,
		schemas.ActionGotoLikesYou,
		schemas.ActionGotoStandouts,
		schemas.ActionGotoProfileHub,
		schemas.ActionOpenThread,
		schemas.ActionLike,
		schemas.ActionPass,
		schemas.ActionSendMessage,
		schemas.ActionBack,
		schemas.ActionDismissOverlay,
		schemas.ActionWait,
	}
	for i, entry := range catalog {
		assert.Equal(t, wantOrder[i], entry.ActionID, "catalog position %d", i)
	}

	seen := make(map[schemas.ActionID]bool, len(catalog))
	for _, entry := range catalog {
		assert.False(t, seen[entry.ActionID], "duplicate catalog entry %s", entry.ActionID)
		seen[entry.ActionID] = true
	}
}

func TestCatalogIsACopy(t *testing.T) {
	first := schemas.Catalog()
	first[0].ActionID = schemas.ActionWait

	second := schemas.Catalog()
	assert.Equal(t, schemas.ActionGotoDiscover, second[0].ActionID,
		"mutating a returned catalog slice must not affect later calls")
}

func TestCatalogEntry(t *testing.T) {
	entry, ok := schemas.CatalogEntry(schemas.ActionSendMessage)
	require.True(t, ok)
	assert.True(t, entry.RequiresTarget)
	assert.True(t, entry.RequiresMessage)
	assert.Equal(t, schemas.TargetComposer, entry.TargetKind)

	_, ok = schemas.CatalogEntry(schemas.ActionID("swipe_up"))
	assert.False(t, ok, "unknown ids must not resolve")
}

func TestValidOnSurface(t *testing.T) {
	tests := []struct {
		name   string
		action schemas.ActionID
		screen schemas.ScreenType
		want   bool
	}{
		{"like on discover", schemas.ActionLike, schemas.ScreenDiscoverCard, true},
		{"like on chat", schemas.ActionLike, schemas.ScreenChatThread, false},
		{"wait anywhere", schemas.ActionWait, schemas.ScreenUnknown, true},
		{"back anywhere", schemas.ActionBack, schemas.ScreenLikePaywall, true},
		{"dismiss on paywall", schemas.ActionDismissOverlay, schemas.ScreenLikePaywall, true},
		{"dismiss on rose sheet", schemas.ActionDismissOverlay, schemas.ScreenRoseSheet, true},
		{"dismiss on discover", schemas.ActionDismissOverlay, schemas.ScreenDiscoverCard, false},
		{"open thread on matches empty", schemas.ActionOpenThread, schemas.ScreenMatchesEmpty, true},
		{"send message on chat", schemas.ActionSendMessage, schemas.ScreenChatThread, true},
		{"send message on tab shell", schemas.ActionSendMessage, schemas.ScreenTabShell, false},
		{"goto untethered to surface", schemas.ActionGotoMatches, schemas.ScreenUnknown, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry, ok := schemas.CatalogEntry(tc.action)
			require.True(t, ok)
			assert.Equal(t, tc.want, entry.ValidOnSurface(tc.screen))
		})
	}
}

func TestPacketSerializationCycle(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	target := "like_button#0"
	fingerprint := "a1b2c3d4"

	packet := schemas.Packet{
		Timestamp:           ts,
		PackageName:         "co.example.dating",
		ScreenType:          schemas.ScreenDiscoverCard,
		QualityScore:        63,
		QualityScoreVersion: schemas.QualityScoreVersion,
		QualityFeatures: schemas.QualityFeatures{
			ProfileName: "Ada",
			LikeTargets: []string{"like_button#0", "like_button#1"},
			Flags:       []string{schemas.FlagActiveToday},
		},
		ProfileFingerprint: &fingerprint,
		AvailableActions:   []schemas.ActionID{schemas.ActionLike, schemas.ActionPass, schemas.ActionWait},
		ObservedStrings:    []string{"Ada", "Active today"},
		Limits:             schemas.Limits{LikesRemaining: 5, PassesRemaining: 20, MessagesRemaining: 3},
		Decision: &schemas.ActionPlan{
			ActionID: schemas.ActionLike,
			TargetID: &target,
			Reason:   "score>=60",
			Source:   schemas.SourceDeterministic,
		},
		Validation: &schemas.ValidationOutcome{
			ActionID:       schemas.ActionLike,
			PreScreenType:  schemas.ScreenDiscoverCard,
			PostScreenType: schemas.ScreenDiscoverCard,
			Changed:        true,
			Passed:         true,
		},
	}

	data, err := json.Marshal(packet)
	require.NoError(t, err)

	var decoded schemas.Packet
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.Timestamp.Equal(packet.Timestamp))
	assert.Equal(t, packet.ScreenType, decoded.ScreenType)
	assert.Equal(t, packet.QualityScore, decoded.QualityScore)
	require.NotNil(t, decoded.Decision)
	assert.Equal(t, schemas.SourceDeterministic, decoded.Decision.Source)
	require.NotNil(t, decoded.Decision.TargetID)
	assert.Equal(t, target, *decoded.Decision.TargetID)
	require.NotNil(t, decoded.Validation)
	assert.True(t, decoded.Validation.Passed)
}

func TestPacketOmitsRawCaptureBytes(t *testing.T) {
	obs := schemas.Observation{
		ScreenType: schemas.ScreenTabShell,
		RawXML:     "<hierarchy/>",
		Screenshot: []byte{0x89, 0x50, 0x4e, 0x47},
	}

	data, err := json.Marshal(obs)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "raw_xml", "raw XML bytes must never serialize")
	assert.NotContains(t, raw, "screenshot", "screenshot bytes must never serialize")
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("transport unwraps", func(t *testing.T) {
		inner := errors.New("connection reset")
		err := fmt.Errorf("capture: %w", &schemas.TransportError{Op: "GET /source", Err: inner})

		var te *schemas.TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "GET /source", te.Op)
		assert.True(t, errors.Is(err, inner))
		assert.True(t, schemas.IsTransport(err))
	})

	t.Run("model error names the model", func(t *testing.T) {
		err := &schemas.ModelError{Model: "gemini-2.5-flash", Op: "generate", Err: errors.New("status 503")}
		assert.Contains(t, err.Error(), "gemini-2.5-flash")
		assert.Contains(t, err.Error(), "generate")
	})

	t.Run("budget exhaustion", func(t *testing.T) {
		err := fmt.Errorf("decide: %w", &schemas.BudgetExhaustion{Kind: "likes", Limit: 8})
		assert.True(t, schemas.IsBudgetExhaustion(err))
		assert.False(t, schemas.IsTransport(err))

		var be *schemas.BudgetExhaustion
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "likes", be.Kind)
		assert.Equal(t, 8, be.Limit)
	})

	t.Run("validation failure message", func(t *testing.T) {
		err := &schemas.ValidationFailure{ActionID: schemas.ActionLike, Reason: "no target of kind like_button"}
		assert.Contains(t, err.Error(), "like")
		assert.Contains(t, err.Error(), "no target of kind like_button")
	})

	t.Run("config error message", func(t *testing.T) {
		err := &schemas.ConfigError{Field: "session.max_cycles", Reason: "must be positive"}
		assert.Contains(t, err.Error(), "session.max_cycles")
	})
}

func TestRunReportClean(t *testing.T) {
	r := schemas.RunReport{Cases: 4, Passed: 4}
	assert.True(t, r.Clean())

	r.Drifts = append(r.Drifts, schemas.DriftReport{
		CaseID:         "case-0002",
		BaselineAction: schemas.ActionLike,
		ObservedAction: schemas.ActionPass,
		ActionChanged:  true,
	})
	assert.False(t, r.Clean())

	r = schemas.RunReport{Cases: 2, Passed: 1, Errored: 1}
	assert.False(t, r.Clean())
}

func TestRegressionCaseContractRoundTrip(t *testing.T) {
	rc := schemas.RegressionCase{
		ContractVersion: schemas.RegressionCaseContract,
		CaseID:          "case-0001",
		CreatedAt:       time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC),
		Query:           "send up to 2 likes",
		Packet: schemas.Packet{
			ScreenType:          schemas.ScreenDiscoverCard,
			QualityScore:        71,
			QualityScoreVersion: schemas.QualityScoreVersion,
			AvailableActions:    []schemas.ActionID{schemas.ActionLike, schemas.ActionWait},
		},
		ExpectActionsAny: []schemas.ActionID{schemas.ActionLike},
		Source: schemas.CaseSource{
			ActionTaken: schemas.ActionLike,
			ReasonTaken: "score>=60",
		},
	}

	data, err := json.Marshal(rc)
	require.NoError(t, err)

	var decoded schemas.RegressionCase
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, schemas.RegressionCaseContract, decoded.ContractVersion)
	assert.Equal(t, rc.ExpectActionsAny, decoded.ExpectActionsAny)
	assert.Equal(t, rc.Source, decoded.Source)
	assert.Equal(t, rc.Packet.QualityScore, decoded.Packet.QualityScore)
}

func TestCaseScreenshotInlineBytesRoundTrip(t *testing.T) {
	shot := schemas.CaseScreenshot{
		Kind: schemas.ScreenshotBase64,
		Data: []byte{0x89, 0x50, 0x4e, 0x47},
	}
	data, err := json.Marshal(shot)
	require.NoError(t, err)

	var decoded schemas.CaseScreenshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, shot.Data, decoded.Data)
}

func TestRectGeometry(t *testing.T) {
	r := schemas.Rect{X1: 10, Y1: 20, X2: 110, Y2: 220}
	assert.Equal(t, 100, r.Width())
	assert.Equal(t, 200, r.Height())

	c := r.Center()
	assert.Equal(t, 60, c.X)
	assert.Equal(t, 120, c.Y)
}

func TestUINodeLabel(t *testing.T) {
	tests := []struct {
		name string
		node schemas.UINode
		want string
	}{
		{"text wins", schemas.UINode{Text: "Send like", ContentDesc: "like"}, "Send like"},
		{"falls back to desc", schemas.UINode{ContentDesc: "Close"}, "Close"},
		{"empty", schemas.UINode{}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.node.Label())
		})
	}
}
