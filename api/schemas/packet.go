package schemas

import "time"

// PlanSource records which policy produced an ActionPlan.
type PlanSource string

const (
	SourceDeterministic PlanSource = "deterministic"
	SourceLLM           PlanSource = "llm"
	SourceLLMFallback   PlanSource = "llm_fallback"
)

// ActionPlan is the Decision Engine's output for one cycle. It is produced
// once and consumed exactly once by the Executor.
type ActionPlan struct {
	ActionID    ActionID   `json:"action"`
	TargetID    *string    `json:"target_id,omitempty"`
	MessageText *string    `json:"message_text,omitempty"`
	Reason      string     `json:"reason"`
	Source      PlanSource `json:"source"`
}

// LLMTrace captures usage and latency metadata from one model call.
type LLMTrace struct {
	OK               bool   `json:"ok"`
	Model            string `json:"model,omitempty"`
	LatencyMS        int64  `json:"latency_ms,omitempty"`
	PromptTokens     int32  `json:"prompt_tokens,omitempty"`
	CompletionTokens int32  `json:"completion_tokens,omitempty"`
	ResponseID       string `json:"response_id,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ValidationOutcome records the Post-Action Validator's verdict for one cycle.
type ValidationOutcome struct {
	ActionID       ActionID   `json:"action"`
	PreScreenType  ScreenType `json:"pre_screen_type"`
	PostScreenType ScreenType `json:"post_screen_type"`
	Changed        bool       `json:"changed"`
	Passed         bool       `json:"passed"`
}

// Limits reports quota headroom at capture time, clamped at zero.
type Limits struct {
	LikesRemaining    int `json:"likes_remaining"`
	PassesRemaining   int `json:"passes_remaining"`
	MessagesRemaining int `json:"messages_remaining"`
}

// ObservedStringsCap bounds how many raw strings a packet records.
const ObservedStringsCap = 120

// Packet is the full audit unit for one decision cycle. Packets are written
// append-only, one JSON line each, and never mutated after write.
type Packet struct {
	Timestamp           time.Time           `json:"ts"`
	PackageName         string              `json:"package_name,omitempty"`
	ScreenType          ScreenType          `json:"screen_type"`
	QualityScore        int                 `json:"quality_score"`
	QualityScoreVersion string              `json:"quality_score_version"`
	QualityFeatures     QualityFeatures     `json:"quality_features"`
	ProfileFingerprint  *string             `json:"profile_fingerprint,omitempty"`
	ProfileSummary      *ProfileSummary     `json:"profile_summary,omitempty"`
	LikeCandidates      []InteractionTarget `json:"like_candidates,omitempty"`
	AvailableActions    []ActionID          `json:"available_actions"`
	ObservedStrings     []string            `json:"observed_strings,omitempty"`
	Limits              Limits              `json:"limits"`
	Decision            *ActionPlan         `json:"decision,omitempty"`
	LLMTrace            *LLMTrace           `json:"llm_trace,omitempty"`
	Validation          *ValidationOutcome  `json:"validation,omitempty"`
	ScreenshotRef       *ArtifactRef        `json:"screenshot_ref,omitempty"`
	XMLRef              *ArtifactRef        `json:"xml_ref,omitempty"`
}

// TerminationReason is the final state of one run.
type TerminationReason string

const (
	TermCompleted         TerminationReason = "completed"
	TermAbortedValidation TerminationReason = "aborted_validation"
	TermAbortedBudget     TerminationReason = "aborted_budget"
	TermAbortedTransport  TerminationReason = "aborted_transport"
	TermError             TerminationReason = "error"
)

// RunSummary is the single structured action log written when a run ends.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	Profile     string            `json:"profile"`
	Query       string            `json:"command_query,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Cycles      int               `json:"cycles"`
	ActionCount map[ActionID]int  `json:"action_counts"`
	Likes       int               `json:"likes"`
	Passes      int               `json:"passes"`
	Messages    int               `json:"messages"`
	Termination TerminationReason `json:"termination"`
	Error       string            `json:"error,omitempty"`
}
