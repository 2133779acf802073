// Package validator implements the post-action transition check. After an
// action that should change the screen, the device is re-observed once and
// the before/after states are compared; repeated no-change verdicts feed the
// run's abort streak.
package validator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/decision"
	"github.com/xkilldash9x/wingman-cli/internal/extract"
	"github.com/xkilldash9x/wingman-cli/internal/screen"
)

// Phase is where the validator sits in its per-cycle state machine.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseIssued        Phase = "issued"
	PhaseAwaitingCheck Phase = "awaiting_check"
	PhasePassed        Phase = "passed"
	PhaseFailed        Phase = "failed"
)

// Observer re-reads the current screen. Satisfied by capture.Capturer.
type Observer interface {
	GetObservation(ctx context.Context, withScreenshot bool) (*schemas.Observation, error)
}

// Validator judges one action per cycle. It owns the check, not the abort:
// the session reads Exhausted after each cycle and terminates the loop.
type Validator struct {
	observer Observer
	cfg      config.ValidationConfig
	state    *decision.State
	dryRun   bool
	logger   *zap.Logger

	required map[schemas.ActionID]bool
	phase    Phase
}

// NewValidator builds a validator sharing the run state's failure streak.
func NewValidator(observer Observer, cfg config.ValidationConfig, state *decision.State, dryRun bool, logger *zap.Logger) *Validator {
	required := make(map[schemas.ActionID]bool, len(cfg.RequireScreenChangeFor))
	for _, id := range cfg.RequireScreenChangeFor {
		required[id] = true
	}
	return &Validator{
		observer: observer,
		cfg:      cfg,
		state:    state,
		dryRun:   dryRun,
		logger:   logger.Named("validator"),
		required: required,
		phase:    PhaseIdle,
	}
}

// Phase returns the current state-machine position.
func (v *Validator) Phase() Phase { return v.phase }

// Issue marks a plan as handed to the executor. The next Check resolves it.
func (v *Validator) Issue(schemas.ActionID) { v.phase = PhaseIssued }

// Check resolves the issued action against the screen it left behind. pre is
// the classified observation the decision was made on; executed reports
// whether the executor actually drove the device this cycle. Actions outside
// the required set, dry-run cycles, and failed executions pass
// unconditionally. The check always finishes within one settle window.
func (v *Validator) Check(ctx context.Context, pre *schemas.Observation, actionID schemas.ActionID, executed bool) schemas.ValidationOutcome {
	v.phase = PhaseAwaitingCheck
	out := schemas.ValidationOutcome{
		ActionID:       actionID,
		PreScreenType:  pre.ScreenType,
		PostScreenType: pre.ScreenType,
	}

	if !v.cfg.Enabled || !v.required[actionID] || v.dryRun || !executed {
		out.Passed = true
		v.phase = PhasePassed
		return out
	}

	if err := v.settle(ctx); err != nil {
		return v.fail(out, "settle interrupted", err)
	}
	post, err := v.observer.GetObservation(ctx, false)
	if err != nil {
		return v.fail(out, "post-action observation failed", err)
	}
	post.ScreenType = screen.Classify(post.RawStrings)
	out.PostScreenType = post.ScreenType

	// The fingerprint covers a limited string subset; the raw XML compare
	// catches changes that leave accessible strings intact, like a
	// composer opening.
	preFP := extract.ScreenFingerprint(pre.ScreenType, extract.ExtractFeatures(pre.RawStrings), pre.RawStrings)
	postFP := extract.ScreenFingerprint(post.ScreenType, extract.ExtractFeatures(post.RawStrings), post.RawStrings)
	out.Changed = post.RawXML != pre.RawXML ||
		postFP != preFP ||
		post.ScreenType != pre.ScreenType

	if out.Changed {
		out.Passed = true
		v.state.ConsecutiveValidationFailures = 0
		v.phase = PhasePassed
		return out
	}

	v.state.ConsecutiveValidationFailures++
	v.phase = PhaseFailed
	v.logger.Warn("Screen did not change after action",
		zap.String("action", string(actionID)),
		zap.String("screen_type", string(pre.ScreenType)),
		zap.Int("failure_streak", v.state.ConsecutiveValidationFailures))
	return out
}

// Exhausted reports whether the consecutive-failure streak has reached the
// abort threshold.
func (v *Validator) Exhausted() bool {
	return v.cfg.Enabled &&
		v.state.ConsecutiveValidationFailures >= v.cfg.MaxConsecutiveFailures
}

func (v *Validator) fail(out schemas.ValidationOutcome, msg string, err error) schemas.ValidationOutcome {
	v.state.ConsecutiveValidationFailures++
	v.phase = PhaseFailed
	v.logger.Warn(msg,
		zap.String("action", string(out.ActionID)),
		zap.Int("failure_streak", v.state.ConsecutiveValidationFailures),
		zap.Error(err))
	return out
}

func (v *Validator) settle(ctx context.Context) error {
	if v.cfg.PostActionSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(v.cfg.PostActionSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
