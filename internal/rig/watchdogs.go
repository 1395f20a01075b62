package rig

import (
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/watchdog"
)

// Messages shown in the info field when a fault latches.
const (
	MsgMissingStrap  = "BAND FEHLT"
	MsgJammedStrap   = "BAND KLEMMT"
	MsgStalled       = "TIMEOUT ERROR"
	MsgMotorOvertemp = "MOTOR UEBERHITZT"
)

var automatic = []machine.Mode{machine.ModeAuto, machine.ModeContinuous}

// watchdogs returns the rig's fault watchdogs. A zero timeout leaves the
// watchdog out.
func (m *Machine) watchdogs() []watchdog.Watchdog {
	cfg := m.settings.Watchdog

	stall := watchdog.Watchdog{
		Condition:       watchdog.StalledSequence,
		Duration:        cfg.StalledSequence,
		Modes:           automatic,
		ArmOnStepChange: true,
		Message:         MsgStalled,
	}
	if cfg.ForceGate > 0 {
		// A sledge held at full tension is still working.
		stall.Gate = func() bool { return m.pressure.Value() < cfg.ForceGate }
	}

	all := []watchdog.Watchdog{
		{
			Condition: watchdog.MissingMaterial,
			Duration:  cfg.MissingMaterial,
			Modes:     automatic,
			Kick:      func() bool { return m.upperStrap.Level() && m.lowerStrap.Level() },
			Message:   MsgMissingStrap,
		},
		{
			Condition: watchdog.JammedMaterial,
			Duration:  cfg.JammedMaterial,
			Modes:     automatic,
			Kick:      func() bool { return !m.strapJam.Level() },
			Message:   MsgJammedStrap,
		},
		stall,
		{
			Condition: watchdog.OverTemperature,
			Duration:  cfg.OverTemperature,
			Kick:      func() bool { return !m.motorOvertemp.Level() },
			Message:   MsgMotorOvertemp,
		},
	}

	enabled := all[:0]
	for _, w := range all {
		if w.Duration > 0 {
			enabled = append(enabled, w)
		}
	}
	return enabled
}

func (m *Machine) registerWatchdogs(p *watchdog.Policy) error {
	for _, w := range m.watchdogs() {
		if err := p.Add(w); err != nil {
			return fmt.Errorf("watchdog %s: %w", w.Condition, err)
		}
	}
	p.OnLatch(func(_ watchdog.Condition, msg string) {
		m.showInfo(msg)
	})
	return nil
}
