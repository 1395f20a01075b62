package rig

import (
	"strconv"

	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/display/nextion"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"go.uber.org/zap"
)

// Operator controls. The REST command endpoint accepts the same names.
const (
	CtlPage0          = "page0"
	CtlPage1          = "page1"
	CtlPage2          = "page2"
	CtlStart          = "start"
	CtlStepAuto       = "step_auto"
	CtlPreviousStep   = "previous_step"
	CtlNextStep       = "next_step"
	CtlReset          = "reset"
	CtlMotorBrake     = "motor_brake"
	CtlUpperMotor     = "upper_motor"
	CtlLowerMotor     = "lower_motor"
	CtlAirRelease     = "air_release"
	CtlCut            = "cut"
	CtlSledge         = "sledge"
	CtlUpperFeedDown  = "upper_feed_down"
	CtlUpperFeedUp    = "upper_feed_up"
	CtlLowerFeedDown  = "lower_feed_down"
	CtlLowerFeedUp    = "lower_feed_up"
	CtlContinuous     = "continuous"
	CtlResetShorttime = "reset_shorttime"
)

// feedStep is the slider increment in mm.
const feedStep = 5

// PanelComponents maps the touch panel layout to operator controls.
func PanelComponents() nextion.Components {
	return nextion.Components{
		{Page: 0, ID: 0}:  CtlPage0,
		{Page: 1, ID: 0}:  CtlPage1,
		{Page: 1, ID: 6}:  CtlPreviousStep,
		{Page: 1, ID: 7}:  CtlNextStep,
		{Page: 1, ID: 5}:  CtlReset,
		{Page: 1, ID: 15}: CtlStart,
		{Page: 1, ID: 4}:  CtlStepAuto,
		{Page: 1, ID: 9}:  CtlUpperMotor,
		{Page: 1, ID: 8}:  CtlLowerMotor,
		{Page: 1, ID: 14}: CtlCut,
		{Page: 1, ID: 1}:  CtlSledge,
		{Page: 1, ID: 10}: CtlMotorBrake,
		{Page: 1, ID: 13}: CtlAirRelease,
		{Page: 2, ID: 0}:  CtlPage2,
		{Page: 2, ID: 5}:  CtlUpperFeedDown,
		{Page: 2, ID: 6}:  CtlUpperFeedUp,
		{Page: 2, ID: 16}: CtlLowerFeedDown,
		{Page: 2, ID: 17}: CtlLowerFeedUp,
		{Page: 2, ID: 18}: CtlContinuous,
		{Page: 2, ID: 12}: CtlResetShorttime,
	}
}

func (r *Rig) bindOperator() {
	m := r.Machine
	ctrl := r.Controller
	d := r.Dispatcher
	on := func(control string, fn func()) { d.Handle(control, display.Pressed, fn) }
	off := func(control string, fn func()) { d.Handle(control, display.Released, fn) }

	on(CtlPage0, func() { r.View.SetPage(display.PageSplash) })
	on(CtlPage1, func() {
		r.View.SetPage(display.PageMain)
		m.hideInfo()
	})
	on(CtlPage2, func() { r.View.SetPage(display.PageSettings) })

	on(CtlStart, func() {
		if m.light.Is(display.LightStart) {
			ctrl.SetRunning(true)
		}
		if m.light.Is(display.LightSleep) {
			m.motorOutputEnable()
		}
	})
	on(CtlStepAuto, ctrl.ToggleMode)
	on(CtlPreviousStep, func() {
		ctrl.SetRunning(false)
		ctrl.Active().Current().ResetFlags()
		ctrl.RetreatStep()
	})
	on(CtlNextStep, func() {
		ctrl.SetRunning(false)
		ctrl.Active().Current().ResetFlags()
		ctrl.AdvanceStep()
	})
	on(CtlReset, func() {
		ctrl.Active().Current().ResetFlags()
		m.SafeShutdown()
		m.clearInfo()
		ctrl.RequestReset(false)
	})
	on(CtlContinuous, func() {
		if ctrl.Mode() == machine.ModeContinuous {
			ctrl.SetRunning(false)
			ctrl.SetMode(machine.ModeStep)
			return
		}
		ctrl.SetMode(machine.ModeContinuous)
	})

	on(CtlMotorBrake, m.motorOutputToggle)
	on(CtlUpperMotor, m.startUpperMotor)
	off(CtlUpperMotor, m.stopUpperMotor)
	on(CtlLowerMotor, m.startLowerMotor)
	off(CtlLowerMotor, m.stopLowerMotor)
	on(CtlAirRelease, m.sledgeVent.Toggle)
	on(CtlCut, func() {
		m.blade.Set(true)
		m.frontclap.Set(true)
	})
	off(CtlCut, func() {
		m.blade.Set(false)
		m.frontclap.Set(false)
	})
	on(CtlSledge, func() { m.sledgeInlet.Set(true) })
	off(CtlSledge, func() { m.sledgeInlet.Set(false) })

	adjust := func(id counter.ID, delta int64) func() {
		return func() {
			if _, err := m.counters.Adjust(id, delta); err != nil {
				m.logger.Error("Failed to adjust feed length", zap.String("counter", string(id)), zap.Error(err))
			}
		}
	}
	on(CtlUpperFeedDown, adjust(counter.UpperStrapFeed, -feedStep))
	on(CtlUpperFeedUp, adjust(counter.UpperStrapFeed, feedStep))
	on(CtlLowerFeedDown, adjust(counter.LowerStrapFeed, -feedStep))
	on(CtlLowerFeedUp, adjust(counter.LowerStrapFeed, feedStep))

	on(CtlResetShorttime, r.hold.press)
	off(CtlResetShorttime, r.hold.release)
}

// PanelState collects what the operator panel shows.
func (m *Machine) PanelState() display.State {
	status := m.ctrl.Status()
	return display.State{
		StepLabel:   formatStep(status.StepIndex, status.StepName),
		StepMode:    status.Mode == machine.ModeStep,
		Continuous:  status.Mode == machine.ModeContinuous,
		Light:       m.light.State(),
		Info:        m.info,
		InfoVisible: m.infoVisible,
		AirRelease:  m.sledgeVent.Get(),
		MotorBrake:  m.motorEnable.Get(),
		Sledge:      m.sledgeInlet.Get(),
		UpperMotor:  m.upperPulse.Get(),
		Blade:       m.blade.Get(),
		LowerMotor:  m.lowerPulse.Get(),
		Longtime:    m.counters.Value(counter.Longtime),
		Shorttime:   m.counters.Value(counter.Shorttime),
		UpperFeed:   m.counters.Value(counter.UpperStrapFeed),
		LowerFeed:   m.counters.Value(counter.LowerStrapFeed),
	}
}

func formatStep(index int, name string) string {
	return strconv.Itoa(index+1) + " " + StepLabel(name)
}
