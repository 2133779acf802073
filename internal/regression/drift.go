package regression

import (
	"context"

	"github.com/google/go-cmp/cmp"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/judge"
)

// compareBaseline emits exactly one DriftReport per case whose replayed
// decision diverged from the committed baseline: the action changed, or the
// message text differs beyond tolerance. Cases that errored have no decision
// to compare and are skipped; case ids absent from the baseline are returned
// separately so the caller can surface the coverage gap.
func (r *Runner) compareBaseline(ctx context.Context, baseline *schemas.Baseline, rows []replayed) ([]schemas.DriftReport, []string) {
	entries := make(map[string]schemas.BaselineEntry, len(baseline.Entries))
	for _, e := range baseline.Entries {
		entries[e.CaseID] = e
	}

	var (
		drifts    []schemas.DriftReport
		uncovered []string
	)
	for i := range rows {
		row := &rows[i]
		plan := row.result.Plan
		if plan == nil {
			continue
		}
		entry, ok := entries[row.result.CaseID]
		if !ok {
			uncovered = append(uncovered, row.result.CaseID)
			continue
		}

		if entry.ActionID != plan.ActionID {
			drifts = append(drifts, schemas.DriftReport{
				CaseID:         row.result.CaseID,
				BaselineAction: entry.ActionID,
				ObservedAction: plan.ActionID,
				ActionChanged:  true,
			})
			continue
		}

		baseMsg := flatMessage(entry.MessageText)
		gotMsg := flatMessage(plan.MessageText)
		if baseMsg == gotMsg {
			continue
		}
		if r.messageTolerated(ctx, row) {
			continue
		}
		delta := cmp.Diff(baseMsg, gotMsg)
		drifts = append(drifts, schemas.DriftReport{
			CaseID:         row.result.CaseID,
			BaselineAction: entry.ActionID,
			ObservedAction: plan.ActionID,
			MessageDelta:   &delta,
		})
	}
	return drifts, uncovered
}

// messageTolerated asks the judge whether the replayed message stands on
// its own despite differing from the baseline text. Without a judge, with a
// zero floor, or when the judge call fails (budget included), a difference
// is never tolerated.
func (r *Runner) messageTolerated(ctx context.Context, row *replayed) bool {
	if r.judge == nil {
		return false
	}
	floor := r.cfg.Judge.MinPassTotal
	if floor <= 0 {
		return false
	}

	// Reuse the verdict scored during replay; the cache makes a re-ask for
	// the same input free, but the common path never leaves this struct.
	if row.result.Judge != nil {
		return row.result.Judge.OK && row.result.Judge.OverallScore >= floor
	}

	score, _, err := r.judge.Score(ctx, judge.Input{
		Query:       row.query,
		Packet:      row.packet,
		Profile:     row.profile,
		ActionID:    row.result.Plan.ActionID,
		Reason:      row.result.Plan.Reason,
		MessageText: row.result.Plan.MessageText,
	})
	if err != nil {
		return false
	}
	return score.OK && score.OverallScore >= floor
}
