// Package decision selects one action per cycle from the available action
// space, either through a fixed deterministic rule table or through a model
// call with validated output and an optional deterministic fallback.
package decision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// Goal is the run-level intent parsed from the operator's query.
type Goal string

const (
	GoalSwipe   Goal = "swipe"
	GoalExplore Goal = "explore"
	GoalMessage Goal = "message"
)

// Overrides carries the numeric and boolean knobs a query may tweak for one
// run. Nil fields leave the configured value untouched.
type Overrides struct {
	MaxActions          *int
	MaxLikes            *int
	MaxPasses           *int
	MaxMessages         *int
	MinQualityScoreLike *int
	MaxRuntime          *time.Duration
	DryRun              *bool
	MessageEnabled      *bool
}

// Directive is the structured form of the operator's natural-language query.
// It is parsed exactly once per run and never mutated afterwards; every cycle
// consults the same value.
type Directive struct {
	Query           string
	Goal            Goal
	ForceActionOnce schemas.ActionID
	Overrides       Overrides
}

var (
	actionsRe  = regexp.MustCompile(`(?:for\s+)?(\d+)\s+actions`)
	maxLikesRe = regexp.MustCompile(`max\s+likes?\s+(\d+)`)
	maxPassRe  = regexp.MustCompile(`max\s+passes?\s+(\d+)`)
	maxMsgRe   = regexp.MustCompile(`max\s+messages?\s+(\d+)`)
	scoreRe    = regexp.MustCompile(`(?:score|quality)\s*(?:>=|above|over)?\s*(\d{1,3})`)
	minutesRe  = regexp.MustCompile(`for\s+(\d+)\s+minutes?`)
	secondsRe  = regexp.MustCompile(`for\s+(\d+)\s+seconds?`)
)

// forcedActionCues maps query phrases to one-shot actions. First match wins,
// so more specific phrases must sort before their prefixes.
var forcedActionCues = []struct {
	action schemas.ActionID
	cues   []string
}{
	{schemas.ActionGotoMatches, []string{"go to matches"}},
	{schemas.ActionGotoDiscover, []string{"go to discover"}},
	{schemas.ActionGotoLikesYou, []string{"go to likes"}},
	{schemas.ActionGotoStandouts, []string{"go to standouts"}},
	{schemas.ActionGotoProfileHub, []string{"go to profile"}},
	{schemas.ActionBack, []string{"go back", "press back"}},
	{schemas.ActionDismissOverlay, []string{"dismiss overlay", "close overlay"}},
	{schemas.ActionOpenThread, []string{"open thread now", "force open thread"}},
	{schemas.ActionSendMessage, []string{"send message now", "force send message"}},
	{schemas.ActionLike, []string{"like now", "force like"}},
	{schemas.ActionPass, []string{"pass now", "force pass"}},
	{schemas.ActionWait, []string{"wait now", "force wait", "do nothing now"}},
}

// ParseDirective turns a free-form query into a Directive. An empty query
// yields the swipe goal with no overrides. Numeric overrides that do not fit
// an int are a ConfigError, reported at startup rather than mid-run.
func ParseDirective(query string) (*Directive, error) {
	d := &Directive{Goal: GoalSwipe}
	q := strings.TrimSpace(query)
	if q == "" {
		return d, nil
	}
	d.Query = q
	lowered := strings.ToLower(q)

	if strings.Contains(lowered, "explore") ||
		strings.Contains(lowered, "free form") ||
		strings.Contains(lowered, "freely navigate") {
		d.Goal = GoalExplore
	}

	for _, rule := range forcedActionCues {
		if d.ForceActionOnce != "" {
			break
		}
		for _, cue := range rule.cues {
			if strings.Contains(lowered, cue) {
				d.ForceActionOnce = rule.action
				break
			}
		}
	}

	negatedMessage := strings.Contains(lowered, "don't message") ||
		strings.Contains(lowered, "do not message")
	if strings.Contains(lowered, "message") && !negatedMessage {
		d.Goal = GoalMessage
	}
	if strings.Contains(lowered, "swipe") {
		d.Goal = GoalSwipe
	}

	intOverride := func(re *regexp.Regexp, field string, dst **int) error {
		m := re.FindStringSubmatch(lowered)
		if m == nil {
			return nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return &schemas.ConfigError{
				Field:  field,
				Reason: fmt.Sprintf("query override %q is not a usable number", m[1]),
			}
		}
		*dst = &n
		return nil
	}

	if err := intOverride(actionsRe, "query.max_actions", &d.Overrides.MaxActions); err != nil {
		return nil, err
	}
	if err := intOverride(maxLikesRe, "query.max_likes", &d.Overrides.MaxLikes); err != nil {
		return nil, err
	}
	if err := intOverride(maxPassRe, "query.max_passes", &d.Overrides.MaxPasses); err != nil {
		return nil, err
	}
	if err := intOverride(maxMsgRe, "query.max_messages", &d.Overrides.MaxMessages); err != nil {
		return nil, err
	}
	if err := intOverride(scoreRe, "query.min_quality_score_like", &d.Overrides.MinQualityScoreLike); err != nil {
		return nil, err
	}

	// Minutes first, an explicit seconds phrase overrides it.
	var runtimeSeconds *int
	var minutes, seconds *int
	if err := intOverride(minutesRe, "query.max_runtime", &minutes); err != nil {
		return nil, err
	}
	if minutes != nil {
		v := *minutes * 60
		runtimeSeconds = &v
	}
	if err := intOverride(secondsRe, "query.max_runtime", &seconds); err != nil {
		return nil, err
	}
	if seconds != nil {
		runtimeSeconds = seconds
	}
	if runtimeSeconds != nil {
		dur := time.Duration(*runtimeSeconds) * time.Second
		d.Overrides.MaxRuntime = &dur
	}

	if strings.Contains(lowered, "dry run") {
		d.Overrides.DryRun = boolPtr(true)
	}
	if strings.Contains(lowered, "live run") || strings.Contains(lowered, "execute") {
		d.Overrides.DryRun = boolPtr(false)
	}

	if negatedMessage {
		d.Overrides.MessageEnabled = boolPtr(false)
	} else if strings.Contains(lowered, "message") {
		d.Overrides.MessageEnabled = boolPtr(true)
	}

	return d, nil
}

// Apply folds the directive's overrides into copies of the profile and
// session configuration. The inputs are not mutated.
func (d *Directive) Apply(profile config.ProfileConfig, session config.SessionConfig) (config.ProfileConfig, config.SessionConfig) {
	o := d.Overrides
	if o.MinQualityScoreLike != nil {
		profile.Swipe.MinQualityScoreLike = *o.MinQualityScoreLike
	}
	if o.MaxLikes != nil {
		profile.Swipe.MaxLikes = *o.MaxLikes
	}
	if o.MaxPasses != nil {
		profile.Swipe.MaxPasses = *o.MaxPasses
	}
	if o.MessageEnabled != nil {
		profile.Message.Enabled = *o.MessageEnabled
	}
	if o.MaxMessages != nil {
		profile.Message.MaxMessages = *o.MaxMessages
	}
	if o.MaxRuntime != nil {
		session.MaxRuntime = *o.MaxRuntime
	}
	if o.MaxActions != nil {
		session.MaxActions = *o.MaxActions
	}
	if o.DryRun != nil {
		session.DryRun = *o.DryRun
	}
	return profile, session
}

func boolPtr(v bool) *bool { return &v }
