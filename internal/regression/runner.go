package regression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/decision"
	"github.com/xkilldash9x/wingman-cli/internal/judge"
)

// Runner replays a dataset through the decision engine under one model
// configuration. Each case gets its own engine and counter state
// reconstructed from the recorded packet, so replays are independent and
// order-insensitive.
type Runner struct {
	cfg    *config.Config
	client schemas.LLMClient
	judge  *judge.Judge
	logger *zap.Logger
}

// NewRunner wires a runner. The client is required in llm mode; the judge
// may be nil, which disables scoring and makes message drift comparison
// exact.
func NewRunner(cfg *config.Config, client schemas.LLMClient, j *judge.Judge, logger *zap.Logger) (*Runner, error) {
	if cfg.Decision.Mode == config.ModeLLM && client == nil {
		return nil, &schemas.ConfigError{
			Field:  "decision.mode",
			Reason: "llm mode requires a model client",
		}
	}
	return &Runner{
		cfg:    cfg,
		client: client,
		judge:  j,
		logger: logger.Named("regression"),
	}, nil
}

// ModelID names the policy configuration a run or baseline belongs to.
func (r *Runner) ModelID() string {
	if r.cfg.Decision.Mode == config.ModeLLM {
		return r.cfg.Decision.LLM.Model
	}
	return config.ModeDeterministic
}

// Temperature reports the sampling temperature recorded into baselines.
func (r *Runner) Temperature() float64 {
	if r.cfg.Decision.Mode == config.ModeLLM {
		return r.cfg.Decision.LLM.Temperature
	}
	return 0
}

// NewBaseline snapshots a finished run's decisions as the replacement
// baseline for this runner's model configuration.
func (r *Runner) NewBaseline(report *schemas.RunReport) (*schemas.Baseline, error) {
	return BaselineFromResults(r.ModelID(), r.Temperature(), report.Results)
}

// replayed pairs a serialized case result with the replay inputs the drift
// comparison needs again later.
type replayed struct {
	result  schemas.CaseResult
	packet  *schemas.Packet
	profile config.ProfileConfig
	query   string
}

// Run replays every case in order and aggregates the report. A nil baseline
// skips drift detection. The returned error is reserved for hard failures:
// a canceled context, or a run in which every single case errored.
func (r *Runner) Run(ctx context.Context, ds *Dataset, baseline *schemas.Baseline) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		ModelID:     r.ModelID(),
		GeneratedAt: time.Now().UTC(),
		Cases:       len(ds.Cases),
	}

	r.logger.Info("Regression run starting",
		zap.String("dataset", ds.Path),
		zap.Int("cases", len(ds.Cases)),
		zap.String("model", report.ModelID),
		zap.Bool("baseline", baseline != nil),
	)

	rows := make([]replayed, len(ds.Cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Regression.Concurrency, 1))
	for i := range ds.Cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = r.replayCase(gctx, ds, &ds.Cases[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range rows {
		res := rows[i].result
		switch {
		case res.Err != "":
			report.Errored++
		case res.Passed:
			report.Passed++
		default:
			report.Failed++
		}
		if res.JudgeState == schemas.JudgeStateSkipped {
			report.JudgeSkipped++
		}
		report.Results = append(report.Results, res)
	}

	if baseline != nil {
		drifts, uncovered := r.compareBaseline(ctx, baseline, rows)
		report.Drifts = drifts
		if len(uncovered) > 0 {
			r.logger.Warn("Baseline does not cover every case",
				zap.Strings("case_ids", uncovered))
		}
	}

	r.logger.Info("Regression run finished",
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Int("errored", report.Errored),
		zap.Int("drifts", len(report.Drifts)),
		zap.Int("judge_skipped", report.JudgeSkipped),
	)

	if report.Cases > 0 && report.Passed == 0 && report.Errored == report.Cases {
		return report, fmt.Errorf("all %d cases errored; nothing was successfully replayed", report.Errored)
	}
	return report, nil
}

// replayCase runs one case through the engine exactly as the live loop
// would: parse the directive, apply its overrides, rebuild counter state
// from the packet's recorded quota headroom, then decide.
func (r *Runner) replayCase(ctx context.Context, ds *Dataset, c *schemas.RegressionCase) (row replayed) {
	start := time.Now()
	row.query = c.Query
	row.packet = &c.Packet
	row.result.CaseID = c.CaseID
	defer func() {
		row.result.ElapsedMS = time.Since(start).Milliseconds()
	}()

	directive, err := decision.ParseDirective(c.Query)
	if err != nil {
		row.result.Err = err.Error()
		return row
	}
	profile, _ := directive.Apply(r.cfg.Profile, r.cfg.Session)
	row.profile = profile

	state := replayState(&c.Packet, profile)
	engine, err := decision.NewEngine(r.cfg.Decision, profile, directive, state, r.client, r.logger)
	if err != nil {
		row.result.Err = err.Error()
		return row
	}

	screenshot, err := ds.Screenshot(c)
	if err != nil {
		// The packet context alone is still replayable; degrade like the
		// live loop does when a capture fails.
		r.logger.Warn("Screenshot unavailable for case",
			zap.String("case_id", c.CaseID), zap.Error(err))
	}

	outcome := engine.Decide(ctx, &c.Packet, screenshot)
	if outcome.Tag == decision.OutcomeError {
		row.result.Err = outcome.Err.Error()
		return row
	}
	plan := outcome.Plan
	row.result.Plan = plan

	var failures []string
	if outcome.Tag == decision.OutcomeFallback {
		// A fallback plan means the model was never really exercised.
		failures = append(failures, fmt.Sprintf("llm_fallback_used (%s)", outcome.FallbackReason))
	}
	if len(c.ExpectActionsAny) > 0 && !containsAction(c.ExpectActionsAny, plan.ActionID) {
		failures = append(failures, fmt.Sprintf("unexpected_action (got %q, want any of %v)", plan.ActionID, c.ExpectActionsAny))
	}
	if c.RequireMessage && strings.TrimSpace(flatMessage(plan.MessageText)) == "" {
		failures = append(failures, "missing_required_message")
	}
	for _, issue := range decision.ValidatePlan(*plan, c.Packet.AvailableActions, c.Packet.LikeCandidates, profile.Persona) {
		failures = append(failures, issue.String())
	}
	row.result.ExpectationFailures = failures
	row.result.Passed = len(failures) == 0

	r.scoreCase(ctx, &row)
	return row
}

// scoreCase grades the replayed decision with the judge, memoized through
// its cache. Budget exhaustion marks the case judge_skipped rather than
// failing it.
func (r *Runner) scoreCase(ctx context.Context, row *replayed) {
	if r.judge == nil || row.result.Plan == nil {
		return
	}
	score, state, err := r.judge.Score(ctx, judge.Input{
		Query:       row.query,
		Packet:      row.packet,
		Profile:     row.profile,
		ActionID:    row.result.Plan.ActionID,
		Reason:      row.result.Plan.Reason,
		MessageText: row.result.Plan.MessageText,
	})
	if err != nil {
		if !schemas.IsBudgetExhaustion(err) {
			r.logger.Warn("Judge scoring failed",
				zap.String("case_id", row.result.CaseID), zap.Error(err))
		}
		row.result.JudgeState = schemas.JudgeStateSkipped
		return
	}
	row.result.Judge = &score
	row.result.JudgeState = state
}

// replayState rebuilds the loop counters the deterministic policy saw when
// the packet was captured, from the quota headroom recorded in it.
func replayState(p *schemas.Packet, profile config.ProfileConfig) *decision.State {
	return &decision.State{
		Likes:    max(profile.Swipe.MaxLikes-p.Limits.LikesRemaining, 0),
		Passes:   max(profile.Swipe.MaxPasses-p.Limits.PassesRemaining, 0),
		Messages: max(profile.Message.MaxMessages-p.Limits.MessagesRemaining, 0),
	}
}

func containsAction(ids []schemas.ActionID, id schemas.ActionID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// flatMessage treats a nil message and an empty one as the same text.
func flatMessage(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
