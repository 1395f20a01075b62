package rig

import (
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/step"
)

// Step names. Labels are what the panel shows.
const (
	StepTensionCrimp  = "tension_crimp"
	StepReleaseAir    = "release_air"
	StepReleaseBrake  = "release_brake"
	StepSledgeBack    = "sledge_back"
	StepCutStrap      = "cut_strap"
	StepFeedStraps    = "feed_straps"
	StepVent          = "vent"
	StepReleasePulses = "release_pulses"
)

var stepLabels = map[string]string{
	StepTensionCrimp:  "SPANNEN + CRIMPEN",
	StepReleaseAir:    "LUFT ABLASSEN",
	StepReleaseBrake:  "BREMSE LOESEN",
	StepSledgeBack:    "ZURUECKFAHREN",
	StepCutStrap:      "SCHNEIDEN",
	StepFeedStraps:    "BAND VORSCHIEBEN",
	StepVent:          "ENTLUEFTEN",
	StepReleasePulses: "PULSEN",
}

// StepLabel returns the panel text of a step.
func StepLabel(name string) string {
	if l, ok := stepLabels[name]; ok {
		return l
	}
	return name
}

const (
	tensionSettle  = 3700 * time.Millisecond
	releaseAirTime = 2000 * time.Millisecond
	releaseBrake   = 1000 * time.Millisecond
	sledgeBackTime = 1800 * time.Millisecond
	bladeDown      = 1300 * time.Millisecond
	bladeUp        = 1000 * time.Millisecond
	feedSettle     = 500 * time.Millisecond
	ventTime       = 1000 * time.Millisecond
	startSettle    = 4000 * time.Millisecond
	pulseBlocked   = 1500 * time.Millisecond
	pulseVented    = 100 * time.Millisecond
)

func (m *Machine) mainCycle() (*step.Sequence, error) {
	return step.NewRing("main",
		step.New(StepTensionCrimp, &tensionCrimp{m: m}, step.CompletesWork()),
		step.New(StepReleaseAir, step.Funcs{
			OnEnter: func(*step.Step) {
				m.light.Set(display.LightMachineBusy)
				m.motorOutputEnable()
				m.ventSledge()
				m.stepDelay.Reset()
			},
			OnPoll: m.completeAfter(releaseAirTime),
		}),
		step.New(StepReleaseBrake, step.Funcs{
			OnEnter: func(*step.Step) {
				m.ventSledge()
				m.hideInfo()
				m.light.Set(display.LightMachineBusy)
				m.motorOutputDisable()
				m.stepDelay.Reset()
			},
			OnPoll: m.completeAfter(releaseBrake),
		}),
		step.New(StepSledgeBack, step.Funcs{
			OnEnter: func(*step.Step) {
				m.light.Set(display.LightMachineBusy)
				m.motorOutputDisable()
				m.moveSledge()
				m.stepDelay.Reset()
			},
			OnPoll: func(s *step.Step) {
				if m.stepDelay.IsUp(sledgeBackTime) {
					m.ventSledge()
					s.MarkComplete()
				}
			},
		}),
		step.New(StepCutStrap, &cutStrap{m: m, stroke: newStroke(m.blade, m.clock)}),
		step.New(StepFeedStraps, &feedStraps{m: m, upper: timer.NewDelay(m.clock), lower: timer.NewDelay(m.clock)}),
	)
}

func (m *Machine) continuousCycle() (*step.Sequence, error) {
	return step.NewRing("continuous",
		step.New(StepVent, step.Funcs{
			OnEnter: func(*step.Step) {
				m.light.Set(display.LightUserAction)
				m.ventSledge()
				m.stepDelay.Reset()
			},
			OnPoll: m.completeAfter(ventTime),
		}),
		step.New(StepSledgeBack, &continuousSledgeBack{m: m}),
		step.New(StepReleasePulses, &releasePulses{m: m}, step.CompletesWork()),
	)
}

// completeAfter completes the step once the shared step delay is up.
func (m *Machine) completeAfter(d time.Duration) func(*step.Step) {
	return func(s *step.Step) {
		if m.stepDelay.IsUp(d) {
			s.MarkComplete()
		}
	}
}

// tensionCrimp is the operator's step: the tool tensions the strap until
// the sledge hits its end position, then crimps. Completing it counts one
// cycle.
type tensionCrimp struct {
	m       *Machine
	reached bool
}

func (t *tensionCrimp) Enter(*step.Step) {
	m := t.m
	m.blockSledge()
	m.motorOutputEnable()
	m.light.Set(display.LightUserAction)
	t.reached = false
	m.showInfo("ZUGKRAFT")
	m.stepDelay.Reset()
	m.sink.Emit(telemetry.Log(telemetry.KeyStartTension))
}

func (t *tensionCrimp) Poll(s *step.Step) {
	m := t.m
	if !t.reached && m.sledgeEnd.RisingEdge() {
		t.reached = true
		m.sink.Emit(telemetry.Log(telemetry.KeyStartCrimp))
	}
	if t.reached && m.stepDelay.IsUp(tensionSettle) {
		m.countCycle()
		s.MarkComplete()
	}
}

type cutStrap struct {
	m      *Machine
	stroke *stroke
}

func (c *cutStrap) Enter(*step.Step) {
	m := c.m
	m.light.Set(display.LightMachineBusy)
	m.motorOutputDisable()
	m.ventSledge()
	m.frontclap.Set(true)
	c.stroke.reset()
}

func (c *cutStrap) Poll(s *step.Step) {
	if c.stroke.run(bladeDown, bladeUp) {
		c.m.frontclap.Set(false)
		s.MarkComplete()
	}
}

// feedStraps runs both feed motors for the configured strap lengths.
type feedStraps struct {
	m                    *Machine
	upper, lower         *timer.Delay
	upperDone, lowerDone bool
}

func (f *feedStraps) Enter(*step.Step) {
	m := f.m
	m.light.Set(display.LightMachineBusy)
	f.upperDone, f.lowerDone = false, false
	f.upper.Reset()
	f.lower.Reset()
	m.stepDelay.Reset()
	m.blockSledge()
	m.startUpperMotor()
	m.startLowerMotor()
}

func (f *feedStraps) Poll(s *step.Step) {
	m := f.m
	if !f.upperDone && f.upper.IsUp(feedTime(m.counters.Value(counter.UpperStrapFeed))) {
		m.stopUpperMotor()
		f.upperDone = true
	}
	if !f.lowerDone && f.lower.IsUp(feedTime(m.counters.Value(counter.LowerStrapFeed))) {
		m.stopLowerMotor()
		f.lowerDone = true
	}
	if f.upperDone && f.lowerDone && m.stepDelay.IsUp(feedSettle) {
		m.motorOutputDisable()
		s.MarkComplete()
	}
}

type continuousSledgeBack struct {
	m       *Machine
	reached bool
}

func (c *continuousSledgeBack) Enter(*step.Step) {
	m := c.m
	m.light.Set(display.LightUserAction)
	m.motorOutputDisable()
	m.moveSledge()
	c.reached = false
	m.stepDelay.Reset()
}

func (c *continuousSledgeBack) Poll(s *step.Step) {
	m := c.m
	if m.sledgeStart.Level() {
		c.reached = true
	}
	if c.reached && m.stepDelay.IsUp(startSettle) {
		m.blockSledge()
		m.motorOutputEnable()
		s.MarkComplete()
	}
}

// releasePulses vents the sledge briefly every 1.5 s while the operator
// tensions, until the sledge reaches its end position.
type releasePulses struct {
	m      *Machine
	vented bool
}

func (r *releasePulses) Enter(*step.Step) {
	m := r.m
	m.blockSledge()
	m.motorOutputEnable()
	m.light.Set(display.LightUserAction)
	r.vented = false
	m.showInfo("ZUGKRAFT")
	m.stepDelay.Reset()
}

func (r *releasePulses) Poll(s *step.Step) {
	m := r.m
	if !r.vented && m.stepDelay.IsUp(pulseBlocked) {
		m.ventSledge()
		r.vented = true
	} else if r.vented && m.stepDelay.IsUp(pulseVented) {
		m.blockSledge()
		r.vented = false
	}
	if m.sledgeEnd.RisingEdge() {
		s.MarkComplete()
	}
}

// stroke extends an actuator for one duration and retracts it for another.
type stroke struct {
	out      hw.Actuator
	delay    *timer.Delay
	extended bool
	done     bool
}

func newStroke(out hw.Actuator, clock timer.Clock) *stroke {
	return &stroke{out: out, delay: timer.NewDelay(clock)}
}

func (s *stroke) reset() {
	s.extended = false
	s.done = false
	s.delay.Reset()
}

// run advances the stroke and reports whether it has completed.
func (s *stroke) run(on, off time.Duration) bool {
	if s.done {
		return true
	}
	if !s.extended {
		s.out.Set(true)
		if s.delay.IsUp(on) {
			s.out.Set(false)
			s.extended = true
		}
		return false
	}
	if s.delay.IsUp(off) {
		s.done = true
	}
	return s.done
}
