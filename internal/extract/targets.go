package extract

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Cap on generic targets so dense screens cannot flood the packet.
const maxGenericTargets = 40

// targetRule maps one clickable node to a target kind. Rules run in order;
// the first match decides the kind.
type targetRule struct {
	kind  schemas.TargetKind
	match func(label, resourceID string) bool
}

func labelExact(want ...string) func(string, string) bool {
	return func(label, _ string) bool {
		for _, w := range want {
			if label == w {
				return true
			}
		}
		return false
	}
}

var targetRules = []targetRule{
	{schemas.TargetTabDiscover, labelExact("discover")},
	{schemas.TargetTabMatches, labelExact("matches")},
	{schemas.TargetTabLikesYou, labelExact("likes you")},
	{schemas.TargetTabStandouts, labelExact("standouts")},
	{schemas.TargetTabProfileHub, labelExact("profile", "profile hub")},
	{schemas.TargetLikeButton, func(label, id string) bool {
		return strings.HasPrefix(label, "like ") || strings.HasSuffix(id, "/like_button")
	}},
	{schemas.TargetPassButton, func(label, id string) bool {
		return label == "skip" || strings.HasPrefix(label, "skip ") ||
			strings.HasSuffix(id, "/skip_button") || strings.HasSuffix(id, "/pass_button")
	}},
	{schemas.TargetOverlayClose, func(label, id string) bool {
		return label == "close sheet" || label == "close" || strings.HasSuffix(id, "/close")
	}},
	{schemas.TargetComposer, func(label, id string) bool {
		return strings.Contains(label, "type a message") ||
			strings.Contains(label, "add a comment") ||
			strings.Contains(label, "edit comment") ||
			strings.HasSuffix(id, "/message_input") || strings.HasSuffix(id, "/comment_input")
	}},
	{schemas.TargetSendButton, func(label, id string) bool {
		return label == "send" || label == "send like" || strings.HasSuffix(id, "/send")
	}},
	{schemas.TargetThreadRow, func(label, id string) bool {
		return strings.Contains(id, "conversation") || strings.Contains(id, "thread") ||
			strings.Contains(id, "match_item") || strings.HasPrefix(label, "chat with ")
	}},
}

// ExtractTargets maps clickable nodes to typed interaction targets in
// document order. Target IDs are positional ("t1", "t2", …) and only valid
// against the observation they came from. Unrecognized clickable nodes with
// a visible label become generic targets so a model can still point at them.
func ExtractTargets(nodes []schemas.UINode) []schemas.InteractionTarget {
	var targets []schemas.InteractionTarget
	generics := 0

	for _, node := range nodes {
		if !node.Clickable || !node.Enabled || node.Bounds == nil {
			continue
		}
		if node.Bounds.Width() <= 0 || node.Bounds.Height() <= 0 {
			continue
		}

		label := strings.ToLower(strings.TrimSpace(node.Label()))
		id := strings.ToLower(node.ResourceID)

		kind := schemas.TargetGeneric
		for _, rule := range targetRules {
			if rule.match(label, id) {
				kind = rule.kind
				break
			}
		}
		if kind == schemas.TargetGeneric {
			if label == "" || generics >= maxGenericTargets {
				continue
			}
			generics++
		}

		targets = append(targets, schemas.InteractionTarget{
			TargetID:    fmt.Sprintf("t%d", len(targets)+1),
			Kind:        kind,
			Label:       node.Label(),
			ViewIndex:   node.Ordinal,
			Bounds:      *node.Bounds,
			TapPoint:    node.Bounds.Center(),
			ContextText: neighborText(nodes, node.Ordinal),
		})
	}
	return targets
}

// neighborText grabs the visible labels of the immediately surrounding
// nodes, giving the model a hint of what the target sits next to.
func neighborText(nodes []schemas.UINode, ordinal int) []string {
	var out []string
	for _, idx := range []int{ordinal - 1, ordinal + 1} {
		if idx < 0 || idx >= len(nodes) {
			continue
		}
		if label := strings.TrimSpace(nodes[idx].Label()); label != "" {
			out = append(out, label)
		}
	}
	return out
}

// FilterKind returns the subset of targets with the given kind, preserving
// order.
func FilterKind(targets []schemas.InteractionTarget, kind schemas.TargetKind) []schemas.InteractionTarget {
	var out []schemas.InteractionTarget
	for _, t := range targets {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// FirstOfKind returns the first target of the given kind in document order.
func FirstOfKind(targets []schemas.InteractionTarget, kind schemas.TargetKind) (schemas.InteractionTarget, bool) {
	for _, t := range targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return schemas.InteractionTarget{}, false
}

// HasKind reports whether any target of the given kind exists.
func HasKind(targets []schemas.InteractionTarget, kind schemas.TargetKind) bool {
	_, ok := FirstOfKind(targets, kind)
	return ok
}

// ByID resolves a model-chosen target id against this observation's targets.
func ByID(targets []schemas.InteractionTarget, id string) (schemas.InteractionTarget, bool) {
	for _, t := range targets {
		if t.TargetID == id {
			return t, true
		}
	}
	return schemas.InteractionTarget{}, false
}
