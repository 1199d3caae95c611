package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/offline-agent/domain/version"
)

// recordTransition moves the record to the payload's target phase.
// In statekit, actions receive a pointer to the context. Since our context is *Context,
// actions receive **Context.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Record == nil {
		return
	}

	c := *ctx
	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return
	}

	from := c.Record.Phase
	if err := c.Record.TransitionTo(payload.ToPhase, payload.Reason); err != nil {
		return
	}
	if c.OnTransition != nil {
		c.OnTransition(c.Record, from, payload.ToPhase)
	}
}

// TransitionPayload carries the target phase with a transition event.
type TransitionPayload struct {
	ToPhase version.Phase
	Reason  string
}
