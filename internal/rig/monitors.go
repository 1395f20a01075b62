package rig

import (
	"fmt"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"go.uber.org/zap"
)

const (
	forceRefresh       = 100 * time.Millisecond
	forceMinDifference = 50
)

// forceMonitor shows the tension force. In Step and Auto mode it holds the
// peak for the hold time and logs it. In continuous mode it shows the live
// value whenever it moves by 50 N. A latched fault message is never
// overwritten.
type forceMonitor struct {
	m       *Machine
	hold    *timer.Timer
	refresh *timer.Delay

	peak      int
	shownPeak int
	shown     int
}

func newForceMonitor(m *Machine) *forceMonitor {
	f := &forceMonitor{m: m, hold: timer.New(m.clock), refresh: timer.NewDelay(m.clock), peak: -1, shownPeak: -1}
	f.hold.Arm()
	return f
}

func (f *forceMonitor) measure() int {
	return int(f.m.pressure.Value())
}

func (f *forceMonitor) Service() {
	if f.m.ctrl.Mode() == machine.ModeContinuous {
		f.serviceLive()
		return
	}
	f.servicePeak()
}

func (f *forceMonitor) servicePeak() {
	force := f.measure()
	if force > f.peak {
		f.peak = force
		f.hold.Arm()
	}

	if f.peak > 0 && f.peak > f.shownPeak && !f.m.ctrl.ErrorLatched() && f.refresh.IsUp(forceRefresh) {
		f.m.showInfo(formatForce(f.peak))
		f.shownPeak = f.peak
	}

	if f.hold.HasElapsed(f.m.settings.ForceHold) {
		if f.peak > 0 {
			f.m.sink.Emit(telemetry.Log(telemetry.KeyForceTension, f.peak))
		}
		f.peak = -1
		f.shownPeak = -1
		f.hold.Arm()
	}
}

func (f *forceMonitor) serviceLive() {
	force := f.measure()
	diff := force - f.shown
	if diff < 0 {
		diff = -diff
	}
	if diff >= forceMinDifference && !f.m.ctrl.ErrorLatched() && f.refresh.IsUp(forceRefresh) {
		f.m.showInfo(formatForce(force))
		f.shown = force
	}
}

func formatForce(n int) string {
	return fmt.Sprintf("%d N", n)
}

// motorMonitor drops the motor brakes after the output timeout so the
// motors cannot overheat on an idle rig.
type motorMonitor struct {
	m *Machine
}

func (mm motorMonitor) Service() {
	m := mm.m
	if m.motorEnable.Get() && m.motorTimeout.HasElapsed(m.settings.MotorOutputTimeout) {
		m.logger.Info("Motor output timeout, releasing brakes")
		m.motorOutputDisable()
		m.motorTimeout.Disarm()
	}
}

// lightMonitor derives the traffic light hint and drives both lamps.
type lightMonitor struct {
	m *Machine
}

func (lm lightMonitor) Service() {
	m := lm.m
	if !m.light.Is(display.LightStart) && !m.ctrl.Running() {
		m.light.Set(display.LightStart)
	}

	asleep := m.sleepTimeout.HasElapsed(m.settings.DisplaySleepTimeout)
	if m.light.Is(display.LightUserAction) && asleep {
		m.light.Set(display.LightSleep)
	}
	if m.light.Is(display.LightSleep) && !asleep {
		m.light.Set(display.LightUserAction)
	}

	green := m.light.Is(display.LightUserAction) && m.motorEnable.Get()
	m.greenLight.Set(green)
	m.redLight.Set(!green)
}

// counterResetHold resets the longtime counter when the shorttime reset
// button is held for the configured time.
type counterResetHold struct {
	m     *Machine
	timer *timer.Timer
}

func (c *counterResetHold) press() {
	if _, err := c.m.counters.Set(counter.Shorttime, 0); err != nil {
		c.m.logger.Error("Failed to reset shorttime counter", zap.Error(err))
	}
	c.timer.Arm()
}

func (c *counterResetHold) release() {
	c.timer.Disarm()
}

func (c *counterResetHold) Service() {
	if c.timer.HasElapsed(c.m.settings.CounterResetHold) {
		if _, err := c.m.counters.Set(counter.Longtime, 0); err != nil {
			c.m.logger.Error("Failed to reset longtime counter", zap.Error(err))
		}
		c.m.logger.Info("Longtime counter reset by operator")
		c.timer.Disarm()
	}
}

// emailButton sends a notification on every press of the hardware button.
type emailButton struct {
	m *Machine
}

func (e emailButton) Service() {
	if e.m.emailButton.RisingEdge() {
		e.m.sink.Emit(telemetry.Email(telemetry.KeyButtonPushed))
	}
}
