// Package actionspace derives the set of currently valid high-level actions
// from the fixed action catalog and one observation's extracted targets.
package actionspace

import (
	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/extract"
)

// Build returns the available action ids for the given surface, in catalog
// order. An action is offered only when the catalog lists it for this screen
// type and any required target kind is present in the extracted content.
// Actions whose required target is missing are excluded, never substituted.
// send_message is additionally gated on the messaging policy being enabled.
func Build(screenType schemas.ScreenType, content schemas.Content, messagingEnabled bool) []schemas.ActionID {
	var available []schemas.ActionID
	for _, entry := range schemas.Catalog() {
		if !entry.ValidOnSurface(screenType) {
			continue
		}
		if entry.RequiresTarget && !extract.HasKind(content.Targets, entry.TargetKind) {
			continue
		}
		if entry.ActionID == schemas.ActionSendMessage && !messagingEnabled {
			continue
		}
		available = append(available, entry.ActionID)
	}
	return available
}

// Contains reports whether the available set offers the given action.
func Contains(available []schemas.ActionID, id schemas.ActionID) bool {
	for _, a := range available {
		if a == id {
			return true
		}
	}
	return false
}
