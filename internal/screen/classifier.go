// Package screen classifies one captured observation into a known app
// surface. Classification is purely textual: it looks only at the
// human-visible strings of the accessibility hierarchy, so it works the same
// on live captures and recorded ones.
package screen

import (
	"strings"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// evidence is the preprocessed view of one observation's strings: each
// string lowercased, a joined blob for substring probes, and a set for
// exact-match probes.
type evidence struct {
	lowered []string
	blob    string
	exact   map[string]struct{}
}

func newEvidence(raw []string) evidence {
	e := evidence{
		lowered: make([]string, 0, len(raw)),
		exact:   make(map[string]struct{}, len(raw)),
	}
	for _, s := range raw {
		l := strings.ToLower(strings.TrimSpace(s))
		if l == "" {
			continue
		}
		e.lowered = append(e.lowered, l)
		e.exact[l] = struct{}{}
	}
	e.blob = strings.Join(e.lowered, "\n")
	return e
}

func (e evidence) contains(sub string) bool {
	return strings.Contains(e.blob, sub)
}

func (e evidence) anyHasPrefix(prefix string) bool {
	for _, s := range e.lowered {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func (e evidence) hasExact(s string) bool {
	_, ok := e.exact[s]
	return ok
}

// rule is one entry of the ordered matcher table. The first matching rule
// decides the screen type, so more specific surfaces (paywalls, overlays)
// must sit above the surfaces they cover.
type rule struct {
	screen schemas.ScreenType
	match  func(evidence) bool
}

var rules = []rule{
	{schemas.ScreenLikePaywall, func(e evidence) bool {
		return e.contains("out of free likes")
	}},
	{schemas.ScreenRoseSheet, func(e evidence) bool {
		return (e.contains("close sheet") && e.contains("rose")) ||
			e.contains("catch their eye by sending a rose")
	}},
	{schemas.ScreenMatchesEmpty, func(e evidence) bool {
		return e.contains("no matches yet") || e.contains("when a like is mutual")
	}},
	{schemas.ScreenDiscoverCard, func(e evidence) bool {
		likeSignal := e.anyHasPrefix("like ") || e.contains("send like with message")
		passSignal := e.anyHasPrefix("skip ") || e.hasExact("skip") ||
			e.contains("undo the previous pass rating")
		composerSignal := e.contains("edit comment") || e.contains("add a comment") ||
			e.contains("send like with message")
		return (likeSignal && passSignal) || composerSignal
	}},
	{schemas.ScreenChatThread, func(e evidence) bool {
		return e.contains("type a message") || e.hasExact("send")
	}},
	{schemas.ScreenTabShell, func(e evidence) bool {
		return e.hasExact("matches") && e.hasExact("discover")
	}},
}

// Classify maps the observation's visible strings to a screen type. Unmatched
// screens come back as ScreenUnknown, never as an error.
func Classify(raw []string) schemas.ScreenType {
	e := newEvidence(raw)
	for _, r := range rules {
		if r.match(e) {
			return r.screen
		}
	}
	return schemas.ScreenUnknown
}
