package statemachine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/offline-agent/domain/version"
)

// Interpreter wraps the statekit interpreter for one version.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the version state machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// NewVersionInterpreter builds the machine and a started interpreter for a
// fresh record of tag.
func NewVersionInterpreter(record *version.Record) (*Interpreter, error) {
	machine, err := NewVersionMachine()
	if err != nil {
		return nil, fmt.Errorf("build version machine: %w", err)
	}
	i := NewInterpreter(machine, NewContext(record))
	i.Start()
	return i, nil
}

// Start initializes the interpreter and enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// Phase returns the current phase.
func (i *Interpreter) Phase() version.Phase {
	return version.Phase(i.interp.State().Value)
}

// Transition moves the version to phase to.
func (i *Interpreter) Transition(to version.Phase, reason string) error {
	from := i.ctx.Record.Phase
	if !version.CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", version.ErrInvalidTransition, from, to)
	}

	i.interp.Send(statekit.Event{
		Type:    EventForTransition(from, to),
		Payload: TransitionPayload{ToPhase: to, Reason: reason},
	})

	if got := i.Phase(); got != to {
		return fmt.Errorf("%w: machine in %s after %s to %s", version.ErrInvalidTransition, got, from, to)
	}
	return nil
}

// IsTerminal returns true if the version is redundant.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Matches checks if the current state matches the given phase.
func (i *Interpreter) Matches(p version.Phase) bool {
	return i.interp.Matches(statekit.StateID(p))
}

// ResumeFrom restores the interpreter to phase p. Used when persisted
// markers show a version already installed or active.
func (i *Interpreter) ResumeFrom(p version.Phase) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: unknown phase %s", version.ErrInvalidTransition, p)
	}

	snapshot := statekit.Snapshot[*Context]{
		MachineID:    "version",
		CurrentState: statekit.StateID(p),
		Context:      i.ctx,
		CreatedAt:    time.Now(),
	}
	if err := i.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	i.ctx.Record.Phase = p
	i.ctx.Record.UpdatedAt = time.Now()
	return nil
}
