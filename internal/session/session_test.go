package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/mocks"
)

// A discover card from the target app with a like and a skip affordance.
// Scores 55 via screen bonus, selfie verification, and activity signal, so
// the default swipe goal likes it against a threshold of 50.
const discoverXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <android.widget.FrameLayout package="co.hinge.app" bounds="[0,0][1080,2400]" clickable="false" enabled="true">
    <android.widget.TextView text="Priya" bounds="[48,180][400,260]" clickable="false" enabled="true"/>
    <android.widget.TextView text="Selfie Verified" bounds="[420,180][700,260]" clickable="false" enabled="true"/>
    <android.widget.TextView text="Active today" bounds="[720,180][980,260]" clickable="false" enabled="true"/>
    <android.widget.Button content-desc="Like Priya's photo" bounds="[880,1980][1040,2140]" clickable="true" enabled="true"/>
    <android.widget.Button content-desc="Skip Priya" bounds="[40,1980][200,2140]" clickable="true" enabled="true"/>
  </android.widget.FrameLayout>
</hierarchy>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Device:  config.DeviceConfig{TargetPackage: "co.hinge.app"},
		Capture: config.CaptureConfig{ArtifactsDir: t.TempDir(), MaxStrings: 2500},
		Profile: config.ProfileConfig{
			Name:    "test",
			Persona: config.PersonaConfig{MaxMessageChars: 180},
			Swipe:   config.SwipePolicy{MinQualityScoreLike: 50, MaxLikes: 20, MaxPasses: 120},
			Message: config.MessagePolicy{MaxMessages: 5, Template: "Hey {{name}}, how's your week going?"},
		},
		Decision: config.DecisionConfig{Mode: config.ModeDeterministic, FailureMode: config.FailureModeFail},
		Validation: config.ValidationConfig{
			Enabled: true,
			RequireScreenChangeFor: []schemas.ActionID{
				schemas.ActionLike, schemas.ActionPass, schemas.ActionOpenThread,
				schemas.ActionSendMessage, schemas.ActionBack, schemas.ActionDismissOverlay,
			},
			MaxConsecutiveFailures: 4,
		},
		Recovery: config.RecoveryConfig{Enabled: true, MaxAttempts: 3},
		Session:  config.SessionConfig{MaxActions: 3, MaxRuntime: time.Minute, DryRun: true},
	}
}

func newTestSession(t *testing.T, cfg *config.Config, query string, driver *mocks.MockDriver) *Session {
	t.Helper()
	driver.On("Close").Return(nil).Maybe()
	s, err := New("primary", cfg, query, driver, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func onTargetDriver() *mocks.MockDriver {
	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)
	return driver
}

func TestSessionDryRunStopsAtActionBudget(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.TermAbortedBudget, summary.Termination)
	assert.Equal(t, 3, summary.Cycles)
	assert.Equal(t, 3, summary.Likes)
	assert.Equal(t, 3, summary.ActionCount[schemas.ActionLike])
	assert.Equal(t, s.RunID(), summary.RunID)
	assert.Equal(t, "test", summary.Profile)
	assert.False(t, summary.StartedAt.IsZero())
	assert.False(t, summary.FinishedAt.IsZero())

	packets, skipped, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, packets, 3)
	for _, p := range packets {
		require.NotNil(t, p.Decision)
		assert.Equal(t, schemas.ActionLike, p.Decision.ActionID)
		assert.Equal(t, "score>=50", p.Decision.Reason)
		assert.Equal(t, schemas.SourceDeterministic, p.Decision.Source)
		require.NotNil(t, p.Validation)
		assert.True(t, p.Validation.Passed)
	}
	// Limits are computed at capture time, before the cycle's like lands.
	assert.Equal(t, 20, packets[0].Limits.LikesRemaining)
	assert.Equal(t, 18, packets[2].Limits.LikesRemaining)

	if _, err := os.Stat(s.SummaryPath()); err != nil {
		t.Fatalf("run summary not written: %v", err)
	}

	status := s.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 3, status.Cycles)
	assert.Equal(t, 3, status.Likes)
	assert.Equal(t, schemas.ActionLike, status.LastAction)
	assert.Equal(t, schemas.TermAbortedBudget, status.Termination)
}

func TestSessionRunHonorsDirectiveActionBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 30
	driver := onTargetDriver()
	s := newTestSession(t, cfg, "for 5 actions", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.TermAbortedBudget, summary.Termination)
	assert.Equal(t, 5, summary.Cycles)
	assert.Equal(t, "for 5 actions", summary.Query)
}

func TestSessionStopBeforeRunCompletes(t *testing.T) {
	driver := &mocks.MockDriver{}
	s := newTestSession(t, testConfig(t), "", driver)

	s.Stop()
	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.TermCompleted, summary.Termination)
	assert.Zero(t, summary.Cycles)

	if _, err := os.Stat(s.SummaryPath()); err != nil {
		t.Fatalf("run summary not written: %v", err)
	}
}

func TestSessionRuntimeBudgetStopsLoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 0
	cfg.Session.MaxRuntime = time.Nanosecond
	driver := &mocks.MockDriver{}
	s := newTestSession(t, cfg, "", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.TermAbortedBudget, summary.Termination)
	assert.Zero(t, summary.Cycles)
}

func TestSessionAbortsAfterConsecutiveValidationFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.DryRun = false
	cfg.Session.MaxActions = 10

	// The screen never changes after a like, so every check fails until the
	// streak trips the abort.
	driver := onTargetDriver()
	driver.On("Tap", mock.Anything, mock.Anything).Return(nil)
	s := newTestSession(t, cfg, "", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.TermAbortedValidation, summary.Termination)
	assert.Equal(t, 4, summary.Cycles)
	assert.Equal(t, 4, summary.Likes)
	assert.Equal(t, 4, s.Status().FailureStreak)

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 4)
	last := packets[3]
	require.NotNil(t, last.Validation)
	assert.False(t, last.Validation.Passed)
	assert.False(t, last.Validation.Changed)
	assert.Equal(t, schemas.ScreenDiscoverCard, last.Validation.PreScreenType)
}

func TestSessionTransportAbortOnObservation(t *testing.T) {
	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).
		Return(nil, &schemas.TransportError{Op: "page source", Err: errors.New("socket closed")})
	s := newTestSession(t, testConfig(t), "", driver)

	summary, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, schemas.IsTransport(err))
	assert.Equal(t, schemas.TermAbortedTransport, summary.Termination)
	assert.NotEmpty(t, summary.Error)

	packets, _, readErr := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, readErr)
	assert.Empty(t, packets)
}

func TestSessionForegroundRecoveryRelaunchesTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 2

	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("com.android.systemui", nil).Once()
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)
	driver.On("ActivateApp", mock.Anything, "co.hinge.app").Return(nil).Once()
	s := newTestSession(t, cfg, "", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.TermAbortedBudget, summary.Termination)
	assert.Equal(t, 2, summary.Cycles)
	assert.Equal(t, 1, summary.ActionCount[schemas.ActionWait])
	assert.Equal(t, 1, summary.ActionCount[schemas.ActionLike])

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 2)

	require.NotNil(t, packets[0].Decision)
	assert.Equal(t, schemas.ActionWait, packets[0].Decision.ActionID)
	assert.Equal(t, "not_in_target_package; recovery=launched", packets[0].Decision.Reason)
	assert.Equal(t, "com.android.systemui", packets[0].PackageName)
	assert.Nil(t, packets[0].Validation)

	require.NotNil(t, packets[1].Decision)
	assert.Equal(t, schemas.ActionLike, packets[1].Decision.ActionID)
	driver.AssertExpectations(t)
}

func TestSessionForegroundRecoveryExhaustedAborts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 10
	cfg.Recovery.MaxAttempts = 1

	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("com.android.systemui", nil)
	driver.On("ActivateApp", mock.Anything, "co.hinge.app").Return(nil).Once()
	s := newTestSession(t, cfg, "", driver)

	summary, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, schemas.IsTransport(err))
	assert.Equal(t, schemas.TermAbortedTransport, summary.Termination)
	assert.Equal(t, 2, summary.Cycles)

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, "not_in_target_package; recovery=launched", packets[0].Decision.Reason)
	assert.Equal(t, "not_in_target_package; recovery=max_attempts_exceeded", packets[1].Decision.Reason)
	driver.AssertExpectations(t)
}

func TestSessionForegroundRecoveryDisabledWaits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 2
	cfg.Recovery.Enabled = false

	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("com.android.systemui", nil)
	s := newTestSession(t, cfg, "", driver)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.TermAbortedBudget, summary.Termination)

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 2)
	for _, p := range packets {
		require.NotNil(t, p.Decision)
		assert.Equal(t, schemas.ActionWait, p.Decision.ActionID)
		assert.Equal(t, "not_in_target_package; recovery=disabled", p.Decision.Reason)
	}
}

func TestSessionObserveAppendsPacketWithoutDecision(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	packet, err := s.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.ScreenDiscoverCard, packet.ScreenType)
	assert.Equal(t, "co.hinge.app", packet.PackageName)
	assert.Nil(t, packet.Decision)
	assert.Nil(t, packet.Validation)
	assert.Contains(t, packet.AvailableActions, schemas.ActionLike)
	assert.GreaterOrEqual(t, packet.QualityScore, 50)

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Nil(t, packets[0].Decision)
	assert.Equal(t, 1, s.Status().Cycles)
}

func TestSessionDecideOncePreviewsWithoutExecuting(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	packet, err := s.DecideOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, packet.Decision)
	assert.Equal(t, schemas.ActionLike, packet.Decision.ActionID)
	assert.Equal(t, schemas.SourceDeterministic, packet.Decision.Source)

	status := s.Status()
	assert.Zero(t, status.Likes)
	assert.Empty(t, status.LastAction)
}

func TestSessionStepRunsOneCycle(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	packet, err := s.Step(context.Background())
	require.NoError(t, err)
	require.NotNil(t, packet.Decision)
	assert.Equal(t, schemas.ActionLike, packet.Decision.ActionID)
	require.NotNil(t, packet.Validation)
	assert.True(t, packet.Validation.Passed)

	status := s.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 1, status.Likes)
	assert.Equal(t, schemas.ActionLike, status.LastAction)

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Status().Cycles)
}

func TestSessionExecutePlanRejectsUnavailableAction(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	_, err := s.ExecutePlan(context.Background(), schemas.ActionPlan{
		ActionID: schemas.ActionOpenThread,
		Reason:   "operator",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected plan")
	assert.Contains(t, err.Error(), "action_not_in_available_actions")
}

func TestSessionExecutePlanRunsOperatorPlan(t *testing.T) {
	driver := onTargetDriver()
	s := newTestSession(t, testConfig(t), "", driver)

	packet, err := s.ExecutePlan(context.Background(), schemas.ActionPlan{
		ActionID: schemas.ActionWait,
		Reason:   "operator_hold",
	})
	require.NoError(t, err)
	require.NotNil(t, packet.Decision)
	assert.Equal(t, schemas.ActionWait, packet.Decision.ActionID)
	assert.Equal(t, "operator_hold", packet.Decision.Reason)
	require.NotNil(t, packet.Validation)
	assert.True(t, packet.Validation.Passed)
	assert.Equal(t, 1, s.Status().ActionCounts[schemas.ActionWait])
}

func TestSessionRejectsConcurrentOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})

	driver := &mocks.MockDriver{}
	driver.On("Close").Return(nil).Maybe()
	driver.On("PageSource", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return([]byte(discoverXML), nil).Once()
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)

	s, err := New("primary", testConfig(t), "", driver, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, stepErr := s.Step(context.Background())
		done <- stepErr
	}()

	<-entered
	_, err = s.Observe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.Close())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	driver := &mocks.MockDriver{}
	driver.On("Close").Return(nil).Once()

	s, err := New("primary", testConfig(t), "", driver, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	driver.AssertExpectations(t)

	_, err = s.Step(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSessionPersistsXMLArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxActions = 1
	cfg.Capture.XML = true

	driver := onTargetDriver()
	s := newTestSession(t, cfg, "", driver)

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	packets, _, err := artifacts.ReadPacketLog(s.PacketLogPath())
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.NotNil(t, packets[0].XMLRef)
	assert.False(t, packets[0].XMLRef.Compressed)

	raw, err := os.ReadFile(packets[0].XMLRef.Path)
	require.NoError(t, err)
	assert.Equal(t, discoverXML, string(raw))
}

func TestNewRequiresModelClientInLLMMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Decision.Mode = config.ModeLLM

	driver := &mocks.MockDriver{}
	_, err := New("primary", cfg, "", driver, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	var ce *schemas.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "decision.mode", ce.Field)
}

func TestNewRequiresArtifactsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.ArtifactsDir = ""

	driver := &mocks.MockDriver{}
	_, err := New("primary", cfg, "", driver, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	var ce *schemas.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "capture.artifacts_dir", ce.Field)
}

func TestSessionStatusSnapshotBeforeAnyCycle(t *testing.T) {
	driver := &mocks.MockDriver{}
	s := newTestSession(t, testConfig(t), "", driver)

	status := s.Status()
	assert.Equal(t, "primary", status.Name)
	assert.Equal(t, s.RunID(), status.RunID)
	assert.Equal(t, "test", status.Profile)
	assert.Equal(t, "swipe", status.Goal)
	assert.Equal(t, config.ModeDeterministic, status.Mode)
	assert.True(t, status.DryRun)
	assert.False(t, status.Running)
	assert.Zero(t, status.Cycles)
	assert.NotEmpty(t, status.PacketLog)
	assert.Empty(t, status.Termination)
}
