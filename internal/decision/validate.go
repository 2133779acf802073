package decision

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/actionspace"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// Issue tags for plan validation. A model response that trips any of these
// is rejected whole; violations are never patched or truncated away.
const (
	IssueActionNotAvailable = "action_not_in_available_actions"
	IssueMessageRequired    = "message_text_required_for_send_message"
	IssueMessageTooLong     = "message_too_long"
	IssueMissingQuestion    = "missing_required_question_mark"
	IssueContainsEmail      = "contains_email"
	IssueContainsLink       = "contains_link"
	IssueTargetUnknown      = "target_id_unknown"
	IssueTargetKindMismatch = "target_id_kind_mismatch"
	IssueTargetNotAllowed   = "target_id_not_allowed"
)

// Issue is one validation finding against a proposed plan.
type Issue struct {
	Tag    string
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return i.Tag
	}
	return fmt.Sprintf("%s (%s)", i.Tag, i.Detail)
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	linkRe  = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
)

// ValidatePlan checks a proposed plan against the available action set, the
// targets the packet exposed, and the persona's message constraints. An
// empty result means the plan is acceptable as-is.
func ValidatePlan(plan schemas.ActionPlan, available []schemas.ActionID, targets []schemas.InteractionTarget, persona config.PersonaConfig) []Issue {
	var issues []Issue

	if !actionspace.Contains(available, plan.ActionID) {
		issues = append(issues, Issue{
			Tag:    IssueActionNotAvailable,
			Detail: fmt.Sprintf("action %q, available %v", plan.ActionID, available),
		})
	}

	if plan.ActionID == schemas.ActionSendMessage {
		text := ""
		if plan.MessageText != nil {
			text = strings.TrimSpace(*plan.MessageText)
		}
		if text == "" {
			issues = append(issues, Issue{Tag: IssueMessageRequired})
		} else {
			if n := len([]rune(text)); n > persona.MaxMessageChars {
				issues = append(issues, Issue{
					Tag:    IssueMessageTooLong,
					Detail: fmt.Sprintf("%d chars, limit %d", n, persona.MaxMessageChars),
				})
			}
			if persona.RequireQuestion && !strings.Contains(text, "?") {
				issues = append(issues, Issue{Tag: IssueMissingQuestion})
			}
			if emailRe.MatchString(text) {
				issues = append(issues, Issue{Tag: IssueContainsEmail})
			}
			if linkRe.MatchString(text) {
				issues = append(issues, Issue{Tag: IssueContainsLink})
			}
		}
	}

	if plan.TargetID != nil {
		issues = append(issues, validateTarget(plan, targets)...)
	}

	return issues
}

func validateTarget(plan schemas.ActionPlan, targets []schemas.InteractionTarget) []Issue {
	entry, ok := schemas.CatalogEntry(plan.ActionID)
	if ok && !entry.RequiresTarget {
		return []Issue{{
			Tag:    IssueTargetNotAllowed,
			Detail: fmt.Sprintf("action %q takes no target", plan.ActionID),
		}}
	}

	var found *schemas.InteractionTarget
	for i := range targets {
		if targets[i].TargetID == *plan.TargetID {
			found = &targets[i]
			break
		}
	}
	if found == nil {
		return []Issue{{
			Tag:    IssueTargetUnknown,
			Detail: fmt.Sprintf("target %q not in observation", *plan.TargetID),
		}}
	}
	if ok && entry.RequiresTarget && found.Kind != entry.TargetKind {
		return []Issue{{
			Tag:    IssueTargetKindMismatch,
			Detail: fmt.Sprintf("target %q is %s, action %q needs %s", *plan.TargetID, found.Kind, plan.ActionID, entry.TargetKind),
		}}
	}
	return nil
}
