// Package statemachine provides the statekit integration for the version lifecycle.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/offline-agent/domain/version"
)

// Context carries a version record through the state machine.
type Context struct {
	Record *version.Record

	// OnTransition is called after every applied transition.
	OnTransition func(r *version.Record, from, to version.Phase)
}

// NewContext creates a new machine context.
func NewContext(record *version.Record) *Context {
	return &Context{Record: record}
}

// State IDs as StateID type for statekit.
const (
	stateParsed     statekit.StateID = statekit.StateID(version.PhaseParsed)
	stateInstalling statekit.StateID = statekit.StateID(version.PhaseInstalling)
	stateInstalled  statekit.StateID = statekit.StateID(version.PhaseInstalled)
	stateActivating statekit.StateID = statekit.StateID(version.PhaseActivating)
	stateActivated  statekit.StateID = statekit.StateID(version.PhaseActivated)
	stateRedundant  statekit.StateID = statekit.StateID(version.PhaseRedundant)
	stateFailed     statekit.StateID = statekit.StateID(version.PhaseFailed)
)

// Event types.
const (
	EventInstall   statekit.EventType = "INSTALL"
	EventInstalled statekit.EventType = "INSTALLED"
	EventFail      statekit.EventType = "FAIL"
	EventActivate  statekit.EventType = "ACTIVATE"
	EventActivated statekit.EventType = "ACTIVATED"
	EventAbort     statekit.EventType = "ABORT"
	EventRetire    statekit.EventType = "RETIRE"
)

// NewVersionMachine creates the version lifecycle statechart.
func NewVersionMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("version").
		WithInitial(stateParsed).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		State(stateParsed).
		On(EventInstall).Target(stateInstalling).Guard("canTransition").Do("recordTransition").
		On(EventRetire).Target(stateRedundant).Do("recordTransition").
		Done().
		State(stateInstalling).
		On(EventInstalled).Target(stateInstalled).Guard("canTransition").Do("recordTransition").
		On(EventFail).Target(stateFailed).Do("recordTransition").
		Done().
		State(stateInstalled).
		On(EventActivate).Target(stateActivating).Guard("canTransition").Do("recordTransition").
		On(EventInstall).Target(stateInstalling).Guard("canTransition").Do("recordTransition").
		On(EventRetire).Target(stateRedundant).Do("recordTransition").
		Done().
		State(stateActivating).
		On(EventActivated).Target(stateActivated).Guard("canTransition").Do("recordTransition").
		On(EventAbort).Target(stateInstalled).Do("recordTransition").
		Done().
		State(stateActivated).
		On(EventRetire).Target(stateRedundant).Do("recordTransition").
		Done().
		State(stateFailed).
		On(EventInstall).Target(stateInstalling).Guard("canTransition").Do("recordTransition").
		On(EventRetire).Target(stateRedundant).Do("recordTransition").
		Done().
		State(stateRedundant).
		Final().
		Done().
		Build()
}

// EventForTransition returns the event type that moves a version into phase to.
func EventForTransition(from, to version.Phase) statekit.EventType {
	switch to {
	case version.PhaseInstalling:
		return EventInstall
	case version.PhaseInstalled:
		if from == version.PhaseActivating {
			return EventAbort
		}
		return EventInstalled
	case version.PhaseFailed:
		return EventFail
	case version.PhaseActivating:
		return EventActivate
	case version.PhaseActivated:
		return EventActivated
	case version.PhaseRedundant:
		return EventRetire
	default:
		return statekit.EventType(to)
	}
}
