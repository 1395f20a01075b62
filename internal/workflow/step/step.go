// Package step holds the process building blocks of a rig: a Step with
// entry-once and repeated-poll behavior, and the fixed Sequence that
// advances through a list of them.
package step

// Handler is the process-specific part of a step.
type Handler interface {
	Enter(s *Step)
	Poll(s *Step)
}

// Funcs adapts plain functions to a Handler. Nil functions are skipped.
type Funcs struct {
	OnEnter func(s *Step)
	OnPoll  func(s *Step)
}

func (f Funcs) Enter(s *Step) {
	if f.OnEnter != nil {
		f.OnEnter(s)
	}
}

func (f Funcs) Poll(s *Step) {
	if f.OnPoll != nil {
		f.OnPoll(s)
	}
}

// Step is a two-state machine {uninitialized, polling} with a one-shot
// completion edge.
type Step struct {
	name          string
	handler       Handler
	completesWork bool

	entryDone bool
	completed bool
	polling   bool
}

type Option func(*Step)

// CompletesWork marks the step whose completion counts as a finished unit of
// work. Completing it clears the watchdog retry history.
func CompletesWork() Option {
	return func(s *Step) { s.completesWork = true }
}

func New(name string, h Handler, opts ...Option) *Step {
	s := &Step{name: name, handler: h}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Step) Name() string { return s.name }

func (s *Step) IsWorkUnit() bool { return s.completesWork }

// Activate runs Enter once per activation, then Poll on every later call.
func (s *Step) Activate() {
	if !s.entryDone {
		s.handler.Enter(s)
		s.entryDone = true
		return
	}
	s.polling = true
	s.handler.Poll(s)
	s.polling = false
}

// MarkComplete signals completion. It only takes effect from inside Poll.
func (s *Step) MarkComplete() {
	if s.polling {
		s.completed = true
	}
}

// ConsumeCompleted reports the completion edge once. On true the step is
// rearmed so the next activation runs Enter again.
func (s *Step) ConsumeCompleted() bool {
	if !s.completed {
		return false
	}
	s.completed = false
	s.entryDone = false
	return true
}

// ResetFlags returns the step to the uninitialized state.
func (s *Step) ResetFlags() {
	s.entryDone = false
	s.completed = false
}

func (s *Step) EntryDone() bool { return s.entryDone }
