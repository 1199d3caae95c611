// Package version models the lifecycle of a cache version.
package version

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
)

// ErrInvalidTransition is returned when a phase change is not allowed.
var ErrInvalidTransition = errors.New("invalid version transition")

// Phase is a step in a version's lifecycle.
type Phase string

// Lifecycle phases.
const (
	PhaseParsed     Phase = "parsed"     // Known, nothing fetched
	PhaseInstalling Phase = "installing" // Manifest fetch in flight
	PhaseInstalled  Phase = "installed"  // Static store complete, not serving
	PhaseActivating Phase = "activating" // Purging other generations
	PhaseActivated  Phase = "activated"  // Current generation
	PhaseRedundant  Phase = "redundant"  // Superseded and purged
	PhaseFailed     Phase = "failed"     // Install aborted
)

// IsTerminal returns true if no further transition is possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseRedundant
}

// IsValid returns true if the phase is recognized.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseParsed, PhaseInstalling, PhaseInstalled, PhaseActivating,
		PhaseActivated, PhaseRedundant, PhaseFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

var transitions = map[Phase][]Phase{
	PhaseParsed:     {PhaseInstalling, PhaseRedundant},
	PhaseInstalling: {PhaseInstalled, PhaseFailed},
	PhaseInstalled:  {PhaseActivating, PhaseInstalling, PhaseRedundant},
	PhaseActivating: {PhaseActivated, PhaseInstalled},
	PhaseActivated:  {PhaseRedundant},
	PhaseFailed:     {PhaseInstalling, PhaseRedundant},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Record tracks one version's position in the lifecycle.
type Record struct {
	Tag       cache.VersionTag `json:"tag"`
	Phase     Phase            `json:"phase"`
	Reason    string           `json:"reason,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewRecord creates a record in the parsed phase.
func NewRecord(tag cache.VersionTag) *Record {
	return &Record{Tag: tag, Phase: PhaseParsed, UpdatedAt: time.Now()}
}

// TransitionTo moves the record to phase p.
func (r *Record) TransitionTo(p Phase, reason string) error {
	if !CanTransition(r.Phase, p) {
		return ErrInvalidTransition
	}
	r.Phase = p
	r.Reason = reason
	r.UpdatedAt = time.Now()
	return nil
}
