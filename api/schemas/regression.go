package schemas

import "time"

// Contract versions for serialized regression artifacts. Readers reject
// payloads whose version string does not match.
const (
	RegressionCaseContract = "regression_case.v1"
	BaselineContract       = "baseline.v1"
	DatasetMetaContract    = "dataset_meta.v1"
	JudgeRubricVersion     = "judge.v1"
)

// ScreenshotKind says how a case's screenshot is stored, if at all.
type ScreenshotKind string

const (
	ScreenshotNone   ScreenshotKind = "none"
	ScreenshotPath   ScreenshotKind = "path"
	ScreenshotBase64 ScreenshotKind = "base64"
)

// CaseScreenshot is the optional screenshot recorded with a case: either a
// path relative to the dataset or the PNG bytes inline.
type CaseScreenshot struct {
	Kind   ScreenshotKind `json:"kind"`
	Path   string         `json:"path,omitempty"`
	Data   []byte         `json:"data,omitempty"`
	SHA256 string         `json:"sha256,omitempty"`
}

// CaseSource records what the live agent actually did when the case was
// captured, for comparison against replayed decisions.
type CaseSource struct {
	ActionTaken ActionID `json:"action_taken,omitempty"`
	ReasonTaken string   `json:"reason_taken,omitempty"`
}

// RegressionCase is one recorded decision cycle replayed offline against the
// model policy. The packet snapshot carries everything the Decision Engine
// needs; no device is involved.
type RegressionCase struct {
	ContractVersion  string          `json:"contract_version"`
	CaseID           string          `json:"case_id"`
	CreatedAt        time.Time       `json:"created_at"`
	ProfileRef       string          `json:"profile_ref,omitempty"`
	Query            string          `json:"query,omitempty"`
	Packet           Packet          `json:"packet"`
	Screenshot       *CaseScreenshot `json:"screenshot,omitempty"`
	ExpectActionsAny []ActionID      `json:"expect_actions_any,omitempty"`
	RequireMessage   bool            `json:"require_message,omitempty"`
	Source           CaseSource      `json:"source,omitempty"`
}

// DatasetMeta describes one built dataset: where its cases came from and
// how many made the cut.
type DatasetMeta struct {
	ContractVersion string    `json:"contract_version"`
	CreatedAt       time.Time `json:"created_at"`
	CasesPath       string    `json:"cases_path"`
	Cases           int       `json:"cases"`
	SourcePacketLog string    `json:"source_packet_log"`
	SkippedLines    int       `json:"skipped_lines,omitempty"`
	ProfileRef      string    `json:"profile_ref,omitempty"`
	Query           string    `json:"query,omitempty"`
	Warning         string    `json:"warning,omitempty"`
}

// BaselineEntry is the accepted decision for one case ID.
type BaselineEntry struct {
	CaseID      string   `json:"case_id"`
	ActionID    ActionID `json:"action"`
	MessageText *string  `json:"message_text,omitempty"`
}

// Baseline is the committed snapshot of accepted decisions for one model
// configuration. Writing a new baseline replaces the file wholesale; entries
// are never merged into an existing one.
type Baseline struct {
	ContractVersion string          `json:"contract_version"`
	ModelID         string          `json:"model_id,omitempty"`
	Temperature     float64         `json:"temperature"`
	CreatedAt       time.Time       `json:"created_at"`
	Entries         []BaselineEntry `json:"entries"`
}

// DriftReport is one divergence from the baseline. Exactly one is emitted
// per changed case: the action differs, or the message text differs beyond
// the configured tolerance.
type DriftReport struct {
	CaseID         string   `json:"case_id"`
	BaselineAction ActionID `json:"baseline_action"`
	ObservedAction ActionID `json:"observed_action"`
	ActionChanged  bool     `json:"action_changed"`
	MessageDelta   *string  `json:"message_delta,omitempty"`
}

// JudgeState says what happened to the judge for one case.
const (
	JudgeStateScored  = "scored"
	JudgeStateCached  = "cached"
	JudgeStateSkipped = "judge_skipped"
)

// CaseResult is the replay outcome for one case.
type CaseResult struct {
	CaseID              string      `json:"case_id"`
	Plan                *ActionPlan `json:"plan,omitempty"`
	Passed              bool        `json:"passed"`
	ExpectationFailures []string    `json:"expectation_failures,omitempty"`
	Err                 string      `json:"error,omitempty"`
	Judge               *JudgeScore `json:"judge,omitempty"`
	JudgeState          string      `json:"judge_state,omitempty"`
	ElapsedMS           int64       `json:"elapsed_ms"`
}

// RunReport aggregates one regression pass: per-case results, drift against
// the baseline, and judge scoring.
type RunReport struct {
	ModelID      string        `json:"model_id,omitempty"`
	BaselinePath string        `json:"baseline_path,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Cases        int           `json:"cases"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	Errored      int           `json:"errored"`
	JudgeSkipped int           `json:"judge_skipped"`
	Drifts       []DriftReport `json:"drifts,omitempty"`
	Results      []CaseResult  `json:"results,omitempty"`
}

// Clean reports whether the pass produced no drift and no case errors.
func (r *RunReport) Clean() bool {
	return len(r.Drifts) == 0 && r.Errored == 0
}

// JudgeScore is the structured verdict from the LLM judge. Scores are
// clamped to [0, 100].
type JudgeScore struct {
	OK                   bool     `json:"ok"`
	OverallScore         int      `json:"overall_score"`
	ActionAlignmentScore int      `json:"action_alignment_score"`
	MessageQualityScore  int      `json:"message_quality_score"`
	SafetyScore          int      `json:"safety_score"`
	Reasons              []string `json:"reasons,omitempty"`
	Violations           []string `json:"violations,omitempty"`
	RubricVersion        string   `json:"rubric_version"`
}

// JudgeCacheEntry is one memoized judge verdict, persisted as a JSON line.
type JudgeCacheEntry struct {
	Timestamp time.Time  `json:"ts"`
	Key       string     `json:"key"`
	Value     JudgeScore `json:"value"`
}
