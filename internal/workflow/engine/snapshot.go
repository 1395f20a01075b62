package engine

import (
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/machine"
)

// Snapshot is an immutable copy of the loop state published after every
// iteration.
type Snapshot struct {
	machine.Status
	Iteration   uint64                   `json:"iteration"`
	At          time.Time                `json:"at"`
	Emergency   bool                     `json:"emergency"`
	Retries     int                      `json:"retries"`
	RetryBudget int                      `json:"retry_budget"`
	Watchdogs   map[string]time.Duration `json:"watchdogs,omitempty"`
	Outputs     map[string]bool          `json:"outputs,omitempty"`
	Inputs      map[string]bool          `json:"inputs,omitempty"`
}

// SameState reports whether two snapshots show the same operator-visible
// state, ignoring timers and I/O levels.
func (s *Snapshot) SameState(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Status == o.Status && s.Emergency == o.Emergency && s.Retries == o.Retries
}
