// Package session runs the live decision loop: one strictly sequential
// observe, decide, execute, validate, log cycle per iteration, bounded by
// action and runtime budgets. A Session owns its capture adapter, engine,
// executor, validator, and packet log exclusively; sessions never share
// mutable state.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/actionspace"
	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
	"github.com/xkilldash9x/wingman-cli/internal/capture"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/decision"
	"github.com/xkilldash9x/wingman-cli/internal/executor"
	"github.com/xkilldash9x/wingman-cli/internal/extract"
	"github.com/xkilldash9x/wingman-cli/internal/screen"
	"github.com/xkilldash9x/wingman-cli/internal/validator"
)

// Foreground recovery statuses recorded in wait-packet reasons.
const (
	recoveryLaunched  = "launched"
	recoveryDisabled  = "disabled"
	recoveryExhausted = "max_attempts_exceeded"
)

// Status is a point-in-time view of one session, safe to read while the
// loop is running.
type Status struct {
	Name          string                    `json:"name"`
	RunID         string                    `json:"run_id"`
	Profile       string                    `json:"profile"`
	Query         string                    `json:"query,omitempty"`
	Goal          string                    `json:"goal"`
	Mode          string                    `json:"mode"`
	DryRun        bool                      `json:"dry_run"`
	Running       bool                      `json:"running"`
	Cycles        int                       `json:"cycles"`
	Likes         int                       `json:"likes"`
	Passes        int                       `json:"passes"`
	Messages      int                       `json:"messages"`
	LastAction    schemas.ActionID          `json:"last_action,omitempty"`
	ActionCounts  map[schemas.ActionID]int  `json:"action_counts,omitempty"`
	FailureStreak int                       `json:"failure_streak"`
	PacketLog     string                    `json:"packet_log"`
	StartedAt     time.Time                 `json:"started_at"`
	Termination   schemas.TerminationReason `json:"termination,omitempty"`
	Error         string                    `json:"error,omitempty"`
}

// Session drives the decision loop against one device. At most one
// operation (Run, Step, Observe, DecideOnce, ExecutePlan) is in flight at
// a time; concurrent calls are rejected rather than queued.
type Session struct {
	name      string
	runID     string
	cfg       *config.Config
	profile   config.ProfileConfig
	bounds    config.SessionConfig
	directive *decision.Directive

	driver schemas.Driver
	client schemas.LLMClient

	capturer  *capture.Capturer
	engine    *decision.Engine
	exec      *executor.Executor
	validator *validator.Validator
	store     *artifacts.Store
	packets   *artifacts.PacketLog

	state   *decision.State
	limiter *rate.Limiter
	logger  *zap.Logger

	stopOnce  sync.Once
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup

	mu               sync.Mutex
	running          bool
	closed           bool
	cycles           int
	actionCount      map[schemas.ActionID]int
	startedAt        time.Time
	foregroundStreak int
	likes            int
	passes           int
	messages         int
	lastAction       schemas.ActionID
	failureStreak    int
	termination      schemas.TerminationReason
	lastErr          string
}

// New builds a session over an already-connected driver and model client.
// The natural-language query is parsed into a directive and applied to the
// configured profile and bounds before anything else is wired. On error the
// caller keeps ownership of driver and client; on success the session owns
// both and releases them in Close.
func New(name string, cfg *config.Config, query string, driver schemas.Driver, client schemas.LLMClient, logger *zap.Logger) (*Session, error) {
	directive, err := decision.ParseDirective(query)
	if err != nil {
		return nil, err
	}
	profile, bounds := directive.Apply(cfg.Profile, cfg.Session)

	runID := uuid.NewString()
	log := logger.Named("session").With(
		zap.String("session", name),
		zap.String("run_id", runID),
	)

	store, err := artifacts.NewStore(cfg.Capture.ArtifactsDir, artifacts.RunTag(time.Now(), runID), cfg.Capture.CompressXML, log)
	if err != nil {
		return nil, err
	}
	packets, err := artifacts.OpenPacketLog(store.PacketLogPath())
	if err != nil {
		return nil, err
	}

	state := &decision.State{}
	engine, err := decision.NewEngine(cfg.Decision, profile, directive, state, client, log)
	if err != nil {
		packets.Close()
		return nil, err
	}
	capturer := capture.NewCapturer(driver, cfg.Capture, log)

	return &Session{
		name:        name,
		runID:       runID,
		cfg:         cfg,
		profile:     profile,
		bounds:      bounds,
		directive:   directive,
		driver:      driver,
		client:      client,
		capturer:    capturer,
		engine:      engine,
		exec:        executor.NewExecutor(driver, profile, state, bounds.DryRun, log),
		validator:   validator.NewValidator(capturer, cfg.Validation, state, bounds.DryRun, log),
		store:       store,
		packets:     packets,
		state:       state,
		limiter:     newLimiter(bounds.LoopInterval),
		logger:      log,
		stop:        make(chan struct{}),
		actionCount: make(map[schemas.ActionID]int),
	}, nil
}

// Name returns the registry key for this session.
func (s *Session) Name() string { return s.name }

// RunID returns the unique id minted for this session's artifacts.
func (s *Session) RunID() string { return s.runID }

// PacketLogPath returns where this session appends its packet lines.
func (s *Session) PacketLogPath() string { return s.packets.Path() }

// SummaryPath returns where the run summary document is written.
func (s *Session) SummaryPath() string { return s.store.SummaryPath() }

// Run executes decision cycles until a budget is exhausted, the validator's
// failure streak trips, a transport error aborts, the context is canceled,
// or Stop is called. It writes the run summary before returning. The
// returned error is nil for graceful terminations (completed, budget,
// validation); it carries the cause for transport aborts and hard errors.
func (s *Session) Run(ctx context.Context) (schemas.RunSummary, error) {
	if err := s.begin(); err != nil {
		return schemas.RunSummary{}, err
	}
	defer s.end()

	start := time.Now()
	s.mu.Lock()
	s.startedAt = start
	s.mu.Unlock()

	s.logger.Info("Session starting",
		zap.String("profile", s.profile.Name),
		zap.String("goal", string(s.directive.Goal)),
		zap.String("mode", s.cfg.Decision.Mode),
		zap.Bool("dry_run", s.bounds.DryRun),
		zap.Int("max_actions", s.bounds.MaxActions),
		zap.Duration("max_runtime", s.bounds.MaxRuntime),
	)

	term, runErr := s.loop(ctx, start)
	summary := s.buildSummary(start, term, runErr)
	if err := artifacts.WriteRunSummary(s.store.SummaryPath(), &summary); err != nil {
		s.logger.Error("Could not write run summary", zap.Error(err))
	}

	s.logger.Info("Session finished",
		zap.String("termination", string(term)),
		zap.Int("cycles", summary.Cycles),
		zap.Int("likes", summary.Likes),
		zap.Int("passes", summary.Passes),
		zap.Int("messages", summary.Messages),
	)
	return summary, runErr
}

func (s *Session) loop(ctx context.Context, start time.Time) (schemas.TerminationReason, error) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session stopped", zap.String("cause", "context_canceled"))
			return schemas.TermCompleted, nil
		case <-s.stop:
			s.logger.Info("Session stopped", zap.String("cause", "stop_requested"))
			return schemas.TermCompleted, nil
		default:
		}

		s.mu.Lock()
		cycles := s.cycles
		s.mu.Unlock()
		if s.bounds.MaxActions > 0 && cycles >= s.bounds.MaxActions {
			s.logger.Info("Action budget exhausted", zap.Int("max_actions", s.bounds.MaxActions))
			return schemas.TermAbortedBudget, nil
		}
		if s.bounds.MaxRuntime > 0 && time.Since(start) >= s.bounds.MaxRuntime {
			s.logger.Info("Runtime budget exhausted", zap.Duration("max_runtime", s.bounds.MaxRuntime))
			return schemas.TermAbortedBudget, nil
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return schemas.TermCompleted, nil
		}

		if _, term, err := s.runCycle(ctx); term != "" {
			return term, err
		}
	}
}

// runCycle performs one full observe-decide-execute-validate-log cycle.
// An empty termination reason means the loop should continue.
func (s *Session) runCycle(ctx context.Context) (*schemas.Packet, schemas.TerminationReason, error) {
	cycle := s.nextCycle()

	packet, obs, err := s.observe(ctx, cycle)
	if err != nil {
		if schemas.IsTransport(err) {
			s.logger.Error("Observation failed", zap.Int("cycle", cycle), zap.Error(err))
			return nil, schemas.TermAbortedTransport, err
		}
		return nil, schemas.TermError, err
	}

	// The driver's foreground package wins over whatever the hierarchy
	// claims; anything outside the target app gets a recovery attempt and
	// a wait packet instead of a decision.
	if pkg := obs.PackageName; pkg != "" && pkg != s.cfg.Device.TargetPackage {
		status := s.recoverForeground(ctx, pkg)
		plan := waitPlan("not_in_target_package; recovery=" + status)
		packet.Decision = &plan
		s.countAction(plan.ActionID)
		if err := s.packets.Append(packet); err != nil {
			return packet, schemas.TermError, err
		}
		s.syncStatus()
		if status == recoveryExhausted {
			err := &schemas.TransportError{
				Op: "foreground recovery",
				Err: fmt.Errorf("package %q still foreground after %d attempts to reach %q",
					pkg, s.cfg.Recovery.MaxAttempts, s.cfg.Device.TargetPackage),
			}
			s.logger.Error("Foreground recovery exhausted", zap.Error(err))
			return packet, schemas.TermAbortedTransport, err
		}
		return packet, "", nil
	}
	s.resetForegroundStreak()

	outcome := s.engine.Decide(ctx, packet, obs.Screenshot)
	packet.LLMTrace = outcome.Trace
	if outcome.Tag == decision.OutcomeError {
		if err := s.packets.Append(packet); err != nil {
			return packet, schemas.TermError, err
		}
		return packet, schemas.TermError, outcome.Err
	}
	plan := *outcome.Plan
	if outcome.Tag == decision.OutcomeFallback {
		s.logger.Warn("Model decision fell back to rules",
			zap.String("fallback_reason", outcome.FallbackReason))
	}

	s.validator.Issue(plan.ActionID)
	res, execErr := s.exec.Execute(ctx, plan, obs)
	if execErr != nil {
		plan.Reason = fmt.Sprintf("execution_failed: %v; %s", execErr, plan.Reason)
		if schemas.IsTransport(execErr) {
			packet.Decision = &plan
			s.countAction(plan.ActionID)
			if err := s.packets.Append(packet); err != nil {
				return packet, schemas.TermError, err
			}
			s.syncStatus()
			s.logger.Error("Action execution lost the device", zap.Error(execErr))
			return packet, schemas.TermAbortedTransport, execErr
		}
		s.logger.Warn("Action execution failed",
			zap.String("action", string(plan.ActionID)), zap.Error(execErr))
	} else if res.Notes != "" {
		plan.Reason = plan.Reason + "; " + res.Notes
	}

	packet.Decision = &plan
	s.countAction(plan.ActionID)
	s.state.LastAction = plan.ActionID

	v := s.validator.Check(ctx, obs, plan.ActionID, execErr == nil && res.Executed)
	packet.Validation = &v

	s.postActionCapture(ctx, cycle)

	if err := s.packets.Append(packet); err != nil {
		return packet, schemas.TermError, err
	}
	s.syncStatus()

	s.logger.Info("Cycle complete",
		zap.Int("cycle", cycle),
		zap.String("screen", string(packet.ScreenType)),
		zap.Int("score", packet.QualityScore),
		zap.String("action", string(plan.ActionID)),
		zap.String("reason", plan.Reason),
		zap.Int("likes", s.state.Likes),
		zap.Int("passes", s.state.Passes),
		zap.Int("messages", s.state.Messages),
	)

	if s.validator.Exhausted() {
		s.logger.Error("Validation failure streak exhausted",
			zap.Int("streak", s.state.ConsecutiveValidationFailures),
			zap.Int("max", s.cfg.Validation.MaxConsecutiveFailures))
		return packet, schemas.TermAbortedValidation, nil
	}
	return packet, "", nil
}

// observe captures and classifies the current screen, persists the
// configured artifacts, and assembles the packet for this cycle.
func (s *Session) observe(ctx context.Context, cycle int) (*schemas.Packet, *schemas.Observation, error) {
	obs, err := s.capturer.GetObservation(ctx, s.wantScreenshot())
	if err != nil {
		return nil, nil, err
	}
	obs.ScreenType = screen.Classify(obs.RawStrings)
	s.persistCapture(cycle, obs)
	return s.buildPacket(obs), obs, nil
}

func (s *Session) wantScreenshot() bool {
	return s.cfg.Decision.Mode == config.ModeLLM && s.cfg.Decision.LLM.IncludeScreenshot
}

func (s *Session) persistCapture(cycle int, obs *schemas.Observation) {
	if s.cfg.Capture.XML && obs.RawXML != "" {
		ref, err := s.store.SaveXML(cycle, obs.RawXML)
		if err != nil {
			s.logger.Warn("Could not persist page source", zap.Int("cycle", cycle), zap.Error(err))
		} else {
			obs.XMLRef = ref
		}
	}
	if s.cfg.Capture.Screenshot && len(obs.Screenshot) > 0 {
		ref, err := s.store.SaveScreenshot(cycle, obs.Screenshot)
		if err != nil {
			s.logger.Warn("Could not persist screenshot", zap.Int("cycle", cycle), zap.Error(err))
		} else {
			obs.ScreenshotRef = ref
		}
	}
}

func (s *Session) buildPacket(obs *schemas.Observation) *schemas.Packet {
	content, score, _ := extract.Extract(obs, obs.ScreenType)

	observed := obs.RawStrings
	if len(observed) > schemas.ObservedStringsCap {
		observed = observed[:schemas.ObservedStringsCap]
	}

	packet := &schemas.Packet{
		Timestamp:           obs.CapturedAt,
		PackageName:         obs.PackageName,
		ScreenType:          obs.ScreenType,
		QualityScore:        score,
		QualityScoreVersion: schemas.QualityScoreVersion,
		QualityFeatures:     content.Features,
		ProfileSummary:      content.Profile,
		LikeCandidates:      content.LikeCandidates,
		AvailableActions:    actionspace.Build(obs.ScreenType, content, s.profile.Message.Enabled),
		ObservedStrings:     observed,
		Limits:              s.limits(),
		ScreenshotRef:       obs.ScreenshotRef,
		XMLRef:              obs.XMLRef,
	}
	if content.ProfileFingerprint != "" {
		fp := content.ProfileFingerprint
		packet.ProfileFingerprint = &fp
	}
	return packet
}

func (s *Session) limits() schemas.Limits {
	return schemas.Limits{
		LikesRemaining:    max(s.profile.Swipe.MaxLikes-s.state.Likes, 0),
		PassesRemaining:   max(s.profile.Swipe.MaxPasses-s.state.Passes, 0),
		MessagesRemaining: max(s.profile.Message.MaxMessages-s.state.Messages, 0),
	}
}

// recoverForeground runs one recovery attempt against the target package.
// The caller has already established that the foreground package is wrong;
// the streak counts consecutive off-target observations and resets only
// when the target package is seen again.
func (s *Session) recoverForeground(ctx context.Context, foreground string) string {
	if !s.cfg.Recovery.Enabled {
		return recoveryDisabled
	}
	s.mu.Lock()
	s.foregroundStreak++
	streak := s.foregroundStreak
	s.mu.Unlock()

	if streak > s.cfg.Recovery.MaxAttempts {
		return recoveryExhausted
	}

	status := recoveryLaunched
	if err := s.driver.ActivateApp(ctx, s.cfg.Device.TargetPackage); err != nil {
		s.logger.Warn("App activation failed",
			zap.String("foreground", foreground),
			zap.Int("attempt", streak),
			zap.Error(err))
		status = "launch_failed: " + err.Error()
	} else {
		s.logger.Info("Reactivated target app",
			zap.String("package", s.cfg.Device.TargetPackage),
			zap.Int("attempt", streak))
	}
	sleepCtx(ctx, s.cfg.Recovery.Cooldown)
	return status
}

func (s *Session) resetForegroundStreak() {
	s.mu.Lock()
	s.foregroundStreak = 0
	s.mu.Unlock()
}

func (s *Session) postActionCapture(ctx context.Context, cycle int) {
	if !s.cfg.Capture.PostActionCapture {
		return
	}
	png, err := s.driver.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Post-action screenshot failed", zap.Int("cycle", cycle), zap.Error(err))
		return
	}
	if _, err := s.store.SaveSnapshot(fmt.Sprintf("live_%04d", cycle), png); err != nil {
		s.logger.Warn("Could not persist post-action snapshot", zap.Int("cycle", cycle), zap.Error(err))
	}
}

// Observe captures one packet without deciding or acting, and appends it
// to the packet log. Rejected while another operation is in flight.
func (s *Session) Observe(ctx context.Context) (*schemas.Packet, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	packet, _, err := s.observe(ctx, s.nextCycle())
	if err != nil {
		return nil, err
	}
	if err := s.packets.Append(packet); err != nil {
		return nil, err
	}
	s.syncStatus()
	return packet, nil
}

// DecideOnce captures one packet and asks the engine for a plan without
// executing it. The packet, with the proposed decision attached, is
// appended to the log; counters and quotas do not advance.
func (s *Session) DecideOnce(ctx context.Context) (*schemas.Packet, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	packet, obs, err := s.observe(ctx, s.nextCycle())
	if err != nil {
		return nil, err
	}

	outcome := s.engine.Decide(ctx, packet, obs.Screenshot)
	packet.LLMTrace = outcome.Trace
	if outcome.Tag == decision.OutcomeError {
		if appendErr := s.packets.Append(packet); appendErr != nil {
			return nil, errors.Join(outcome.Err, appendErr)
		}
		s.syncStatus()
		return nil, outcome.Err
	}
	packet.Decision = outcome.Plan
	if err := s.packets.Append(packet); err != nil {
		return nil, err
	}
	s.syncStatus()
	return packet, nil
}

// ExecutePlan validates an operator-supplied plan against the current
// screen and executes it through the normal issue-execute-check path.
func (s *Session) ExecutePlan(ctx context.Context, plan schemas.ActionPlan) (*schemas.Packet, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	packet, obs, err := s.observe(ctx, s.nextCycle())
	if err != nil {
		return nil, err
	}

	if issues := decision.ValidatePlan(plan, packet.AvailableActions, packet.LikeCandidates, s.profile.Persona); len(issues) > 0 {
		parts := make([]string, len(issues))
		for i, issue := range issues {
			parts[i] = issue.String()
		}
		return nil, &schemas.ValidationFailure{
			ActionID: plan.ActionID,
			Reason:   fmt.Sprintf("rejected plan: %s", strings.Join(parts, "; ")),
		}
	}

	s.validator.Issue(plan.ActionID)
	res, execErr := s.exec.Execute(ctx, plan, obs)
	if execErr != nil {
		plan.Reason = fmt.Sprintf("execution_failed: %v; %s", execErr, plan.Reason)
	} else if res.Notes != "" {
		plan.Reason = plan.Reason + "; " + res.Notes
	}

	packet.Decision = &plan
	s.countAction(plan.ActionID)
	s.state.LastAction = plan.ActionID

	v := s.validator.Check(ctx, obs, plan.ActionID, execErr == nil && res.Executed)
	packet.Validation = &v

	if err := s.packets.Append(packet); err != nil {
		return nil, err
	}
	s.syncStatus()
	if execErr != nil {
		return nil, execErr
	}
	return packet, nil
}

// Step runs exactly one full decision cycle, identical to one iteration of
// Run, and returns its packet. Budget and validation exhaustion do not
// error here; they surface through Status.
func (s *Session) Step(ctx context.Context) (*schemas.Packet, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	packet, _, err := s.runCycle(ctx)
	if err != nil {
		return nil, err
	}
	return packet, nil
}

// Status reports the session's current counters and lifecycle.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[schemas.ActionID]int, len(s.actionCount))
	for id, n := range s.actionCount {
		counts[id] = n
	}
	return Status{
		Name:          s.name,
		RunID:         s.runID,
		Profile:       s.profile.Name,
		Query:         s.directive.Query,
		Goal:          string(s.directive.Goal),
		Mode:          s.cfg.Decision.Mode,
		DryRun:        s.bounds.DryRun,
		Running:       s.running,
		Cycles:        s.cycles,
		Likes:         s.likes,
		Passes:        s.passes,
		Messages:      s.messages,
		LastAction:    s.lastAction,
		ActionCounts:  counts,
		FailureStreak: s.failureStreak,
		PacketLog:     s.packets.Path(),
		StartedAt:     s.startedAt,
		Termination:   s.termination,
		Error:         s.lastErr,
	}
}

// Stop asks a running loop to halt before its next cycle. The in-flight
// cycle is awaited, never interrupted. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Close stops the loop, waits for any in-flight operation, and releases
// the packet log, model client, and driver. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.wg.Wait()

		var errs []error
		if err := s.packets.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.client != nil {
			if err := s.client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.driver.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %q is %w", s.name, ErrClosed)
	}
	if s.running {
		return fmt.Errorf("session %q is %w", s.name, ErrBusy)
	}
	s.running = true
	s.wg.Add(1)
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Session) nextCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	return s.cycles
}

func (s *Session) countAction(id schemas.ActionID) {
	s.mu.Lock()
	s.actionCount[id]++
	s.mu.Unlock()
}

// syncStatus snapshots loop-owned counters for concurrent Status readers.
func (s *Session) syncStatus() {
	s.mu.Lock()
	s.likes = s.state.Likes
	s.passes = s.state.Passes
	s.messages = s.state.Messages
	s.lastAction = s.state.LastAction
	s.failureStreak = s.state.ConsecutiveValidationFailures
	s.mu.Unlock()
}

func (s *Session) buildSummary(start time.Time, term schemas.TerminationReason, runErr error) schemas.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[schemas.ActionID]int, len(s.actionCount))
	for id, n := range s.actionCount {
		counts[id] = n
	}
	summary := schemas.RunSummary{
		RunID:       s.runID,
		Profile:     s.profile.Name,
		Query:       s.directive.Query,
		StartedAt:   start.UTC(),
		FinishedAt:  time.Now().UTC(),
		Cycles:      s.cycles,
		ActionCount: counts,
		Likes:       s.state.Likes,
		Passes:      s.state.Passes,
		Messages:    s.state.Messages,
		Termination: term,
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	s.termination = term
	s.lastErr = summary.Error
	return summary
}

func waitPlan(reason string) schemas.ActionPlan {
	return schemas.ActionPlan{
		ActionID: schemas.ActionWait,
		Reason:   reason,
		Source:   schemas.SourceDeterministic,
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
