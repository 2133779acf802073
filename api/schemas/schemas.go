package schemas

import "time"

// ScreenType is the symbolic classification of the current on-screen state.
// Classification is a pure function of an Observation: the same raw tree and
// strings always yield the same ScreenType.
type ScreenType string

const (
	ScreenDiscoverCard ScreenType = "discover_card"
	ScreenMatchesEmpty ScreenType = "matches_empty"
	ScreenChatThread   ScreenType = "chat_thread"
	ScreenTabShell     ScreenType = "tab_shell"
	ScreenLikePaywall  ScreenType = "like_paywall"
	ScreenRoseSheet    ScreenType = "overlay_rose_sheet"
	ScreenUnknown      ScreenType = "unknown"
)

// Rect is a UI bounding rectangle in absolute viewport pixels.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center returns the midpoint of the rectangle, used as the default tap point.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Point is an absolute viewport coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UINode is one element of the flattened accessibility tree, in document order.
type UINode struct {
	Ordinal     int    `json:"ordinal"`
	Class       string `json:"class_name,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentDesc string `json:"content_desc,omitempty"`
	Clickable   bool   `json:"clickable"`
	Enabled     bool   `json:"enabled"`
	Bounds      *Rect  `json:"bounds,omitempty"`
}

// Label returns the human-visible string for the node: text if present,
// otherwise the content description.
func (n UINode) Label() string {
	if n.Text != "" {
		return n.Text
	}
	return n.ContentDesc
}

// ArtifactRef points at a persisted snapshot artifact (XML dump or screenshot).
type ArtifactRef struct {
	Path       string `json:"path"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Observation is one immutable capture of on-screen state. It is created once
// per cycle, owned exclusively by that cycle, and never mutated afterwards.
type Observation struct {
	ScreenType    ScreenType   `json:"screen_type"`
	PackageName   string       `json:"package_name"`
	RawStrings    []string     `json:"raw_strings"`
	Nodes         []UINode     `json:"nodes"`
	RawXML        string       `json:"-"`
	Screenshot    []byte       `json:"-"`
	ScreenshotRef *ArtifactRef `json:"screenshot_ref,omitempty"`
	XMLRef        *ArtifactRef `json:"xml_ref,omitempty"`
	CapturedAt    time.Time    `json:"captured_at"`
}

// TargetKind categorizes an interaction target by what tapping it does. The
// kinds mirror the affordances the executor knows how to drive; availability
// of a catalog action depends on its kind being present in the Observation.
type TargetKind string

const (
	TargetTabDiscover   TargetKind = "tab_discover"
	TargetTabMatches    TargetKind = "tab_matches"
	TargetTabLikesYou   TargetKind = "tab_likes_you"
	TargetTabStandouts  TargetKind = "tab_standouts"
	TargetTabProfileHub TargetKind = "tab_profile_hub"
	TargetLikeButton    TargetKind = "like_button"
	TargetPassButton    TargetKind = "pass_button"
	TargetThreadRow     TargetKind = "thread_row"
	TargetComposer      TargetKind = "composer"
	TargetSendButton    TargetKind = "send_button"
	TargetOverlayClose  TargetKind = "overlay_close"
	TargetGeneric       TargetKind = "generic"
)

// InteractionTarget is a tappable element extracted from one Observation.
// TargetID is scoped to that Observation only; it carries no cross-capture
// identity and must never be persisted as a durable key.
type InteractionTarget struct {
	TargetID    string     `json:"target_id"`
	Kind        TargetKind `json:"kind"`
	Label       string     `json:"label,omitempty"`
	ViewIndex   int        `json:"view_index"`
	Bounds      Rect       `json:"bounds"`
	TapPoint    Point      `json:"tap"`
	ContextText []string   `json:"context_text,omitempty"`
}

// QualityScoreVersion names the scoring scheme that produced a packet's
// quality score. Stored alongside every score so the weights can evolve
// without invalidating old packets.
const QualityScoreVersion = "quality_score_v1"

// QualityFeatures are the named signals the scorer weighs. Flags is sorted
// and de-duplicated so feature extraction stays deterministic.
type QualityFeatures struct {
	ProfileName  string   `json:"profile_name_candidate,omitempty"`
	PromptText   string   `json:"prompt_text,omitempty"`
	PromptAnswer string   `json:"prompt_answer,omitempty"`
	LikeTargets  []string `json:"like_targets,omitempty"`
	Flags        []string `json:"quality_flags,omitempty"`
}

// HasFlag reports whether the named quality flag was extracted.
func (f QualityFeatures) HasFlag(name string) bool {
	for _, flag := range f.Flags {
		if flag == name {
			return true
		}
	}
	return false
}

// Quality flags recognized by the extractor.
const (
	FlagSelfieVerified = "selfie_verified"
	FlagActiveToday    = "active_today"
	FlagVoicePrompt    = "has_voice_prompt"
)

// ProfileSummary is the structured content extracted from a discover card or
// chat screen. SignalStrength counts how many fields carried real content; a
// fingerprint is only computed when it is positive.
type ProfileSummary struct {
	Name           string   `json:"name,omitempty"`
	PromptText     string   `json:"prompt_text,omitempty"`
	PromptAnswer   string   `json:"prompt_answer,omitempty"`
	Attributes     []string `json:"attributes,omitempty"`
	SignalStrength int      `json:"signal_strength"`
}

// Content is the full output of extraction for one cycle.
type Content struct {
	Features           QualityFeatures     `json:"quality_features"`
	Profile            *ProfileSummary     `json:"profile_summary,omitempty"`
	ProfileFingerprint string              `json:"profile_fingerprint,omitempty"`
	Targets            []InteractionTarget `json:"targets,omitempty"`
	LikeCandidates     []InteractionTarget `json:"like_candidates,omitempty"`
	ExtractionError    string              `json:"interaction_extraction_error,omitempty"`
}
