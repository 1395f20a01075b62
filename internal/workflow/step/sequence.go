package step

import "errors"

var ErrEmptySequence = errors.New("sequence needs at least one step")

// Sequence is a fixed, ordered list of steps. A cyclic sequence wraps to the
// first step after the last; a one-shot sequence stays on its last step until
// it is reset.
type Sequence struct {
	name   string
	steps  []*Step
	index  int
	cyclic bool
	// finished is set once the last step of a one-shot sequence completed.
	finished bool
}

// NewRing builds a cyclic sequence.
func NewRing(name string, steps ...*Step) (*Sequence, error) {
	return newSequence(name, true, steps)
}

// NewOneShot builds a sequence that does not wrap.
func NewOneShot(name string, steps ...*Step) (*Sequence, error) {
	return newSequence(name, false, steps)
}

func newSequence(name string, cyclic bool, steps []*Step) (*Sequence, error) {
	if len(steps) == 0 {
		return nil, ErrEmptySequence
	}
	list := make([]*Step, len(steps))
	copy(list, steps)
	return &Sequence{name: name, steps: list, cyclic: cyclic}, nil
}

func (q *Sequence) Name() string { return q.name }

func (q *Sequence) Len() int { return len(q.steps) }

func (q *Sequence) Index() int { return q.index }

func (q *Sequence) Cyclic() bool { return q.cyclic }

func (q *Sequence) Current() *Step { return q.steps[q.index] }

// Finished reports whether a one-shot sequence has run to its end.
func (q *Sequence) Finished() bool { return q.finished }

// StepNames lists the steps in execution order.
func (q *Sequence) StepNames() []string {
	names := make([]string, len(q.steps))
	for i, s := range q.steps {
		names[i] = s.Name()
	}
	return names
}

// Advance moves to the next step and resets its flags. It reports false when
// a one-shot sequence is already on its last step.
func (q *Sequence) Advance() bool {
	next := q.index + 1
	if next >= len(q.steps) {
		if !q.cyclic {
			q.finished = true
			return false
		}
		next = 0
	}
	q.index = next
	q.steps[q.index].ResetFlags()
	return true
}

// Retreat moves one step back, clamping at the first step.
func (q *Sequence) Retreat() {
	if q.index > 0 {
		q.index--
	}
	q.finished = false
	q.steps[q.index].ResetFlags()
}

// ResetTo jumps to step i (clamped into range) with fresh flags.
func (q *Sequence) ResetTo(i int) {
	if i < 0 {
		i = 0
	}
	if i >= len(q.steps) {
		i = len(q.steps) - 1
	}
	q.index = i
	q.finished = false
	q.steps[q.index].ResetFlags()
}

// CompleteCurrent consumes the current step's completion edge. On completion
// it advances and returns the step that just finished.
func (q *Sequence) CompleteCurrent() (*Step, bool) {
	cur := q.steps[q.index]
	if !cur.ConsumeCompleted() {
		return nil, false
	}
	q.Advance()
	return cur, true
}

// Tick services the sequence once: consume a completion edge, then activate
// the current step if the rig is running. A finished one-shot sequence is not
// activated again until it is reset.
func (q *Sequence) Tick(running bool) {
	q.CompleteCurrent()
	if running && !q.finished {
		q.Current().Activate()
	}
}
