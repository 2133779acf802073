// Package executor turns an approved plan into device primitives. It is the
// only package that issues taps and keystrokes, which keeps dry-run
// suppression and quota enforcement in one place.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/capture"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/decision"
	"github.com/xkilldash9x/wingman-cli/internal/extract"
)

// composerSettle is the pause between tapping a like candidate and looking
// for the comment composer it opens.
const composerSettle = 350 * time.Millisecond

// paywallScanLimit bounds the accessible strings scanned for the free-like
// paywall notice after a discover send.
const paywallScanLimit = 800

// paywallNotice is the substring the target app shows when free likes are
// spent mid-flow.
const paywallNotice = "out of free likes"

// Result reports what one Execute call actually did.
type Result struct {
	ActionID schemas.ActionID
	// Executed is true when at least one device primitive was issued. It
	// stays false for wait and for every action in dry run.
	Executed bool
	// Target is the element the final tap landed on, when there was one.
	Target *schemas.InteractionTarget
	// Notes carries tap annotations for the packet log, in the form
	// "discover_like=t3; input=t7".
	Notes string
}

// Executor drives plans against a single device session. Counters live in
// the shared run state and advance even in dry run, so budget semantics are
// identical with and without a device.
type Executor struct {
	driver  schemas.Driver
	profile config.ProfileConfig
	state   *decision.State
	dryRun  bool
	settle  time.Duration
	logger  *zap.Logger
}

// NewExecutor wires an executor over an active driver. The profile must
// already carry any directive overrides.
func NewExecutor(driver schemas.Driver, profile config.ProfileConfig, state *decision.State, dryRun bool, logger *zap.Logger) *Executor {
	return &Executor{
		driver:  driver,
		profile: profile,
		state:   state,
		dryRun:  dryRun,
		settle:  composerSettle,
		logger:  logger.Named("executor"),
	}
}

// Execute performs one plan against the screen described by obs, which must
// already be classified. Quota violations and on-screen blocks come back as
// ValidationFailure; driver failures pass through as transport errors.
// Counters advance only after the action's primitives succeed.
func (e *Executor) Execute(ctx context.Context, plan schemas.ActionPlan, obs *schemas.Observation) (Result, error) {
	res := Result{ActionID: plan.ActionID}
	targets := extract.ExtractTargets(obs.Nodes)

	switch plan.ActionID {
	case schemas.ActionLike:
		if e.state.Likes >= e.profile.Swipe.MaxLikes {
			return res, &schemas.ValidationFailure{ActionID: plan.ActionID, Reason: "like limit reached"}
		}
		if err := e.tapResolved(ctx, plan, targets, schemas.TargetLikeButton, &res); err != nil {
			return res, err
		}
		e.state.Likes++

	case schemas.ActionPass:
		if e.state.Passes >= e.profile.Swipe.MaxPasses {
			return res, &schemas.ValidationFailure{ActionID: plan.ActionID, Reason: "pass limit reached"}
		}
		if err := e.tapResolved(ctx, plan, targets, schemas.TargetPassButton, &res); err != nil {
			return res, err
		}
		e.state.Passes++

	case schemas.ActionSendMessage:
		if e.state.Messages >= e.profile.Message.MaxMessages {
			return res, &schemas.ValidationFailure{ActionID: plan.ActionID, Reason: "message limit reached"}
		}
		text := ""
		if plan.MessageText != nil {
			text = strings.TrimSpace(*plan.MessageText)
		}
		if text == "" {
			return res, &schemas.ValidationFailure{ActionID: plan.ActionID, Reason: "message text missing"}
		}
		if !e.dryRun {
			var err error
			if obs.ScreenType == schemas.ScreenDiscoverCard {
				err = e.sendDiscoverMessage(ctx, plan, targets, text, &res)
			} else {
				err = e.sendChatMessage(ctx, targets, text, &res)
			}
			if err != nil {
				return res, err
			}
		}
		e.state.Messages++

	case schemas.ActionBack:
		if !e.dryRun {
			if err := e.driver.PressBack(ctx); err != nil {
				return res, err
			}
			res.Executed = true
		}

	case schemas.ActionWait:
		// Observation-only cycle.

	default:
		entry, ok := schemas.CatalogEntry(plan.ActionID)
		if !ok || !entry.RequiresTarget {
			return res, &schemas.ValidationFailure{ActionID: plan.ActionID, Reason: "unsupported action"}
		}
		if err := e.tapResolved(ctx, plan, targets, entry.TargetKind, &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

// tapResolved taps the plan's explicit target when set, else the first target
// of the wanted kind. In dry run nothing is resolved or tapped.
func (e *Executor) tapResolved(ctx context.Context, plan schemas.ActionPlan, targets []schemas.InteractionTarget, kind schemas.TargetKind, res *Result) error {
	if e.dryRun {
		return nil
	}
	target, err := resolveTarget(plan, targets, kind)
	if err != nil {
		return err
	}
	if err := e.driver.Tap(ctx, target.TapPoint); err != nil {
		return err
	}
	e.logger.Debug("Tapped target",
		zap.String("action", string(plan.ActionID)),
		zap.String("target", target.TargetID),
		zap.String("kind", string(target.Kind)))
	res.Executed = true
	res.Target = &target
	return nil
}

func resolveTarget(plan schemas.ActionPlan, targets []schemas.InteractionTarget, kind schemas.TargetKind) (schemas.InteractionTarget, error) {
	if plan.TargetID != nil {
		for _, t := range targets {
			if t.TargetID != *plan.TargetID {
				continue
			}
			if t.Kind != kind {
				return schemas.InteractionTarget{}, &schemas.ValidationFailure{
					ActionID: plan.ActionID,
					Reason:   fmt.Sprintf("target %s is %s, wanted %s", t.TargetID, t.Kind, kind),
				}
			}
			return t, nil
		}
		return schemas.InteractionTarget{}, &schemas.ValidationFailure{
			ActionID: plan.ActionID,
			Reason:   fmt.Sprintf("target %s not present on screen", *plan.TargetID),
		}
	}
	target, ok := extract.FirstOfKind(targets, kind)
	if !ok {
		return schemas.InteractionTarget{}, &schemas.ValidationFailure{
			ActionID: plan.ActionID,
			Reason:   fmt.Sprintf("no %s target on screen", kind),
		}
	}
	return target, nil
}

// sendChatMessage types into the thread composer and taps send. The composer
// is tapped first so the keyboard focus is on it before keys go in.
func (e *Executor) sendChatMessage(ctx context.Context, targets []schemas.InteractionTarget, text string, res *Result) error {
	composer, ok := extract.FirstOfKind(targets, schemas.TargetComposer)
	if !ok {
		return &schemas.ValidationFailure{ActionID: schemas.ActionSendMessage, Reason: "no message composer on screen"}
	}
	if err := e.driver.Tap(ctx, composer.TapPoint); err != nil {
		return err
	}
	if err := e.driver.SendKeys(ctx, text); err != nil {
		return err
	}
	send, ok := extract.FirstOfKind(targets, schemas.TargetSendButton)
	if !ok {
		return &schemas.ValidationFailure{ActionID: schemas.ActionSendMessage, Reason: "no send button on screen"}
	}
	if err := e.driver.Tap(ctx, send.TapPoint); err != nil {
		return err
	}
	res.Executed = true
	res.Target = &send
	res.Notes = fmt.Sprintf("input=%s", composer.TargetID)
	return nil
}

// sendDiscoverMessage runs the discover comment flow: when no composer is
// open yet, tapping a like candidate opens one, which spends an app-level
// like. The flow stops with an explicit block error when the paywall notice
// appears instead of the composer, and checks for it once more after send.
func (e *Executor) sendDiscoverMessage(ctx context.Context, plan schemas.ActionPlan, targets []schemas.InteractionTarget, text string, res *Result) error {
	likeNote := "composer_already_open"
	composer, ok := extract.FirstOfKind(targets, schemas.TargetComposer)
	if !ok {
		like, err := resolveTarget(plan, targets, schemas.TargetLikeButton)
		if err != nil {
			return err
		}
		if err := e.driver.Tap(ctx, like.TapPoint); err != nil {
			return err
		}
		likeNote = like.TargetID
		if err := sleepCtx(ctx, e.settle); err != nil {
			return err
		}
		fresh, observed, err := e.reobserve(ctx)
		if err != nil {
			return err
		}
		composer, ok = extract.FirstOfKind(fresh, schemas.TargetComposer)
		if !ok {
			if containsPaywallNotice(observed) {
				return &schemas.ValidationFailure{
					ActionID: schemas.ActionSendMessage,
					Reason:   "Discover message send blocked: out of free likes",
				}
			}
			return &schemas.ValidationFailure{
				ActionID: schemas.ActionSendMessage,
				Reason:   "composer did not open after like tap",
			}
		}
		targets = fresh
	}

	if err := e.driver.Tap(ctx, composer.TapPoint); err != nil {
		return err
	}
	if err := e.driver.SendKeys(ctx, text); err != nil {
		return err
	}
	send, ok := extract.FirstOfKind(targets, schemas.TargetSendButton)
	if !ok {
		return &schemas.ValidationFailure{ActionID: schemas.ActionSendMessage, Reason: "no send button for composer"}
	}
	if err := e.driver.Tap(ctx, send.TapPoint); err != nil {
		return err
	}
	res.Executed = true
	res.Target = &send
	res.Notes = fmt.Sprintf("discover_like=%s; input=%s", likeNote, composer.TargetID)

	// Post-send inspection is best-effort; a failed read is not an error,
	// but a visible paywall notice means the send did not land.
	if _, observed, err := e.reobserve(ctx); err != nil {
		e.logger.Warn("Post-send screen read failed", zap.Error(err))
	} else if containsPaywallNotice(observed) {
		return &schemas.ValidationFailure{
			ActionID: schemas.ActionSendMessage,
			Reason:   "Discover message send blocked: out of free likes",
		}
	}
	return nil
}

func (e *Executor) reobserve(ctx context.Context) ([]schemas.InteractionTarget, []string, error) {
	raw, err := e.driver.PageSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	hierarchy, err := capture.ParseHierarchy(raw)
	if err != nil {
		return nil, nil, err
	}
	observed := capture.CollectStrings(hierarchy.Nodes, paywallScanLimit)
	return extract.ExtractTargets(hierarchy.Nodes), observed, nil
}

func containsPaywallNotice(observed []string) bool {
	for _, s := range observed {
		if strings.Contains(strings.ToLower(s), paywallNotice) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
