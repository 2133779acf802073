package schemas

// ActionID identifies one high-level action from the fixed catalog.
type ActionID string

const (
	ActionGotoDiscover   ActionID = "goto_discover"
	ActionGotoMatches    ActionID = "goto_matches"
	ActionGotoLikesYou   ActionID = "goto_likes_you"
	ActionGotoStandouts  ActionID = "goto_standouts"
	ActionGotoProfileHub ActionID = "goto_profile_hub"
	ActionOpenThread     ActionID = "open_thread"
	ActionLike           ActionID = "like"
	ActionPass           ActionID = "pass"
	ActionSendMessage    ActionID = "send_message"
	ActionBack           ActionID = "back"
	ActionDismissOverlay ActionID = "dismiss_overlay"
	ActionWait           ActionID = "wait"
)

// CatalogVersion names the fixed action table. Bump it if entries are added,
// removed, or change their preconditions.
const CatalogVersion = "action_catalog.v1"

// ActionCatalogEntry declares one action and its preconditions. An action is
// offered only on its listed Surfaces (empty list = every surface) and, when
// RequiresTarget is set, only while a target of TargetKind is present in the
// current Observation.
type ActionCatalogEntry struct {
	ActionID        ActionID     `json:"action_id"`
	HumanAction     string       `json:"human_action"`
	Description     string       `json:"description"`
	RequiresTarget  bool         `json:"requires_target"`
	TargetKind      TargetKind   `json:"target_kind,omitempty"`
	RequiresMessage bool         `json:"requires_message"`
	Surfaces        []ScreenType `json:"surfaces,omitempty"`
}

// actionCatalog is the fixed, ordered action table. Catalog order is the
// tie-break order everywhere a deterministic ordering is needed, so entries
// must never be reshuffled casually.
var actionCatalog = []ActionCatalogEntry{
	{
		ActionID:       ActionGotoDiscover,
		HumanAction:    "Tap Discover tab",
		Description:    "Navigate to Discover where swiping cards is possible.",
		RequiresTarget: true,
		TargetKind:     TargetTabDiscover,
	},
	{
		ActionID:       ActionGotoMatches,
		HumanAction:    "Tap Matches tab",
		Description:    "Navigate to Matches to review conversations.",
		RequiresTarget: true,
		TargetKind:     TargetTabMatches,
	},
	{
		ActionID:       ActionGotoLikesYou,
		HumanAction:    "Tap Likes You tab",
		Description:    "Navigate to Likes You surface.",
		RequiresTarget: true,
		TargetKind:     TargetTabLikesYou,
	},
	{
		ActionID:       ActionGotoStandouts,
		HumanAction:    "Tap Standouts tab",
		Description:    "Navigate to Standouts surface.",
		RequiresTarget: true,
		TargetKind:     TargetTabStandouts,
	},
	{
		ActionID:       ActionGotoProfileHub,
		HumanAction:    "Tap Profile tab",
		Description:    "Navigate to profile/settings tab.",
		RequiresTarget: true,
		TargetKind:     TargetTabProfileHub,
	},
	{
		ActionID:       ActionOpenThread,
		HumanAction:    "Tap a match thread",
		Description:    "Open a conversation thread in Matches.",
		RequiresTarget: true,
		TargetKind:     TargetThreadRow,
		Surfaces:       []ScreenType{ScreenTabShell, ScreenMatchesEmpty},
	},
	{
		ActionID:       ActionLike,
		HumanAction:    "Tap Like on current card item",
		Description:    "Like the current profile card/prompt/photo/voice item.",
		RequiresTarget: true,
		TargetKind:     TargetLikeButton,
		Surfaces:       []ScreenType{ScreenDiscoverCard},
	},
	{
		ActionID:       ActionPass,
		HumanAction:    "Tap Skip/Pass",
		Description:    "Skip the current profile card.",
		RequiresTarget: true,
		TargetKind:     TargetPassButton,
		Surfaces:       []ScreenType{ScreenDiscoverCard},
	},
	{
		ActionID:        ActionSendMessage,
		HumanAction:     "Type and send a message",
		Description:     "Send a chat message in an open thread or with a like.",
		RequiresTarget:  true,
		TargetKind:      TargetComposer,
		RequiresMessage: true,
		Surfaces:        []ScreenType{ScreenDiscoverCard, ScreenChatThread},
	},
	{
		ActionID:    ActionBack,
		HumanAction: "Tap Android back",
		Description: "Dismiss overlays/modals or navigate one level back.",
	},
	{
		ActionID:       ActionDismissOverlay,
		HumanAction:    "Tap overlay close affordance",
		Description:    "Close visible overlays (for example Rose/paywall sheets) without Android back.",
		RequiresTarget: true,
		TargetKind:     TargetOverlayClose,
		Surfaces:       []ScreenType{ScreenRoseSheet, ScreenLikePaywall},
	},
	{
		ActionID:    ActionWait,
		HumanAction: "Observe",
		Description: "Take no action this cycle.",
	},
}

// Catalog returns the fixed action table in catalog order. The returned slice
// is a copy; callers may not mutate the catalog.
func Catalog() []ActionCatalogEntry {
	out := make([]ActionCatalogEntry, len(actionCatalog))
	copy(out, actionCatalog)
	return out
}

// CatalogEntry looks up one action by id.
func CatalogEntry(id ActionID) (ActionCatalogEntry, bool) {
	for _, entry := range actionCatalog {
		if entry.ActionID == id {
			return entry, true
		}
	}
	return ActionCatalogEntry{}, false
}

// ValidOnSurface reports whether the catalog offers this entry on the given
// screen type.
func (e ActionCatalogEntry) ValidOnSurface(st ScreenType) bool {
	if len(e.Surfaces) == 0 {
		return true
	}
	for _, s := range e.Surfaces {
		if s == st {
			return true
		}
	}
	return false
}
