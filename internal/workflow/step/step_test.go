package step

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	calls []string
}

func (tr *trace) step(name string, completeAfter int) *Step {
	polls := 0
	return New(name, Funcs{
		OnEnter: func(s *Step) {
			polls = 0
			tr.calls = append(tr.calls, name+":enter")
		},
		OnPoll: func(s *Step) {
			polls++
			tr.calls = append(tr.calls, name+":poll")
			if polls >= completeAfter {
				s.MarkComplete()
			}
		},
	})
}

func TestActivateRunsEntryOnceThenPolls(t *testing.T) {
	tr := &trace{}
	s := tr.step("a", 2)

	s.Activate()
	s.Activate()
	assert.False(t, s.ConsumeCompleted())
	s.Activate()

	assert.Equal(t, []string{"a:enter", "a:poll", "a:poll"}, tr.calls)
	require.True(t, s.ConsumeCompleted())
	assert.False(t, s.ConsumeCompleted(), "completion is reported once")

	s.Activate()
	assert.Equal(t, "a:enter", tr.calls[len(tr.calls)-1], "reactivation re-runs entry")
}

func TestMarkCompleteOutsidePollIsIgnored(t *testing.T) {
	s := New("x", Funcs{OnEnter: func(s *Step) { s.MarkComplete() }})

	s.Activate()
	assert.False(t, s.ConsumeCompleted())

	s.MarkComplete()
	assert.False(t, s.ConsumeCompleted())
}

func TestNilFuncsAreSkipped(t *testing.T) {
	s := New("noop", Funcs{})
	s.Activate()
	s.Activate()
	assert.True(t, s.EntryDone())
	assert.False(t, s.ConsumeCompleted())
}

func TestResetFlags(t *testing.T) {
	tr := &trace{}
	s := tr.step("a", 1)
	s.Activate()
	s.Activate()
	s.ResetFlags()
	assert.False(t, s.EntryDone())
	assert.False(t, s.ConsumeCompleted())
}

func TestWorkUnitOption(t *testing.T) {
	assert.True(t, New("crimp", Funcs{}, CompletesWork()).IsWorkUnit())
	assert.False(t, New("vent", Funcs{}).IsWorkUnit())
}
