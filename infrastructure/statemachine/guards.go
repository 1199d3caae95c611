package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/offline-agent/domain/version"
)

// guardCanTransition checks the move against the lifecycle table.
// Note: In statekit, guards receive the context by value. Since our context is *Context,
// the guard receives *Context directly.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Record == nil {
		return false
	}

	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return false
	}
	return version.CanTransition(ctx.Record.Phase, payload.ToPhase)
}
