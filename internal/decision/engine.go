package decision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// OutcomeTag distinguishes how a decision was produced.
type OutcomeTag string

const (
	// OutcomeOk is a plan from the configured policy, first try.
	OutcomeOk OutcomeTag = "ok"
	// OutcomeFallback is a deterministic plan substituted after a model
	// failure.
	OutcomeFallback OutcomeTag = "fallback"
	// OutcomeError means no plan could be produced this cycle.
	OutcomeError OutcomeTag = "error"
)

// Outcome is the tagged result of one decision. Callers branch on Tag; Plan
// is set for Ok and Fallback, Err for Error, and Trace whenever a model call
// was attempted.
type Outcome struct {
	Tag            OutcomeTag
	Plan           *schemas.ActionPlan
	FallbackReason string
	Trace          *schemas.LLMTrace
	Err            error
}

// Engine dispatches each cycle's decision to the configured policy variant
// and owns the fallback path between them.
type Engine struct {
	cfg       config.DecisionConfig
	profile   config.ProfileConfig
	directive *Directive
	state     *State
	llm       *LLMPolicy
	logger    *zap.Logger
}

// NewEngine builds the decision engine for one run. The profile must already
// carry any directive overrides; state is shared with the caller, which
// advances its counters as actions execute. A model client is required only
// in llm mode.
func NewEngine(cfg config.DecisionConfig, profile config.ProfileConfig, directive *Directive, state *State, client schemas.LLMClient, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		profile:   profile,
		directive: directive,
		state:     state,
		logger:    logger.Named("decision"),
	}
	if cfg.Mode == config.ModeLLM {
		if client == nil {
			return nil, &schemas.ConfigError{
				Field:  "decision.mode",
				Reason: "llm mode requires a model client",
			}
		}
		e.llm = NewLLMPolicy(client, cfg.LLM, logger)
	}
	return e, nil
}

// Decide produces one plan for the packet. In llm mode a failed model call
// either falls back to the deterministic policy or surfaces the error,
// depending on the configured failure mode.
func (e *Engine) Decide(ctx context.Context, packet *schemas.Packet, screenshot []byte) Outcome {
	if e.cfg.Mode != config.ModeLLM {
		plan := DecideDeterministic(packet, e.profile, e.directive, e.state)
		return Outcome{Tag: OutcomeOk, Plan: &plan}
	}

	plan, trace, err := e.llm.Decide(ctx, packet, e.profile, e.directive, screenshot)
	if err == nil {
		return Outcome{Tag: OutcomeOk, Plan: &plan, Trace: trace}
	}

	if e.cfg.FailureMode == config.FailureModeFallback {
		e.logger.Warn("model decision failed, using deterministic fallback",
			zap.String("screen_type", string(packet.ScreenType)),
			zap.Error(err))
		det := DecideDeterministic(packet, e.profile, e.directive, e.state)
		det.Source = schemas.SourceLLMFallback
		det.Reason = fmt.Sprintf("llm_failed_fallback: %v; %s", err, det.Reason)
		return Outcome{Tag: OutcomeFallback, Plan: &det, FallbackReason: err.Error(), Trace: trace}
	}

	return Outcome{Tag: OutcomeError, Err: err, Trace: trace}
}
