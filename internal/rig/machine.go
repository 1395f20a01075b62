// Package rig assembles the strapping endurance rig: its channels, the main
// and continuous cycles, operator bindings, monitors and the watchdogs, on
// top of the generic control loop.
package rig

import (
	"fmt"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"go.uber.org/zap"
)

// Channel names as declared in the I/O profile.
const (
	OutSledgeInlet   = "sledge_inlet"
	OutSledgeVent    = "sledge_vent"
	OutBlade         = "blade"
	OutFrontclap     = "frontclap"
	OutMotorEnable   = "motor_enable"
	OutUpperPulse    = "motor_upper_pulse"
	OutLowerPulse    = "motor_lower_pulse"
	OutGreenLight    = "green_light"
	OutRedLight      = "red_light"
	OutLogicPower    = "cylinder_logic_power"
	OutIsolation     = "cylinder_isolation"
	OutHydraulics    = "hydraulic_pressure"
	InSledgeStart    = "sledge_start"
	InSledgeEnd      = "sledge_end"
	InEmailButton    = "email_button"
	InUpperStrap     = "upper_strap"
	InLowerStrap     = "lower_strap"
	InStrapJam       = "strap_jam"
	InMotorOvertemp  = "motor_overtemp"
	AnalogPressure   = "pressure"
	defaultEmergency = "emergency_stop"
)

// Settings are the rig's tunables.
type Settings struct {
	HomeTimeout         time.Duration
	MotorOutputTimeout  time.Duration
	DisplaySleepTimeout time.Duration
	ForceHold           time.Duration
	CounterResetHold    time.Duration
	DisplayRefresh      time.Duration
	EmergencyInput      string
	Watchdog            config.WatchdogConfig
	Power               PowerTiming
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		HomeTimeout:         cfg.Rig.HomeTimeout,
		MotorOutputTimeout:  cfg.Rig.MotorOutputTimeout,
		DisplaySleepTimeout: cfg.Rig.DisplaySleepTimeout,
		ForceHold:           cfg.Rig.ForceHold,
		CounterResetHold:    cfg.Rig.CounterResetHold,
		DisplayRefresh:      cfg.Display.Refresh,
		EmergencyInput:      cfg.Emergency.Input,
		Watchdog:            cfg.Watchdog,
		Power: PowerTiming{
			LogicDelay:      cfg.Emergency.LogicDelay,
			InitDelay:       cfg.Emergency.InitDelay,
			DisconnectDelay: cfg.Emergency.DisconnectDelay,
			HydraulicDelay:  cfg.Emergency.HydraulicDelay,
		},
	}
}

// Machine is the rig's context: every actuator, sensor, timer and
// collaborator the steps and bindings work with. It is only touched from
// the loop goroutine.
type Machine struct {
	logger   *zap.Logger
	clock    timer.Clock
	sink     telemetry.Sink
	counters *counter.Bank
	settings Settings
	bank     *hw.Bank
	ctrl     *machine.Controller

	sledgeInlet hw.Actuator
	sledgeVent  hw.Actuator
	blade       hw.Actuator
	frontclap   hw.Actuator
	motorEnable hw.Actuator
	upperPulse  hw.Actuator
	lowerPulse  hw.Actuator
	greenLight  hw.Actuator
	redLight    hw.Actuator

	sledgeStart   *hw.Input
	sledgeEnd     *hw.Input
	emergencyStop *hw.Input
	emailButton   *hw.Input
	upperStrap    *hw.Input
	lowerStrap    *hw.Input
	strapJam      *hw.Input
	motorOvertemp *hw.Input
	pressure      *hw.Analog

	light       display.TrafficLight
	info        string
	infoVisible bool

	stepDelay    *timer.Delay
	motorTimeout *timer.Timer
	sleepTimeout *timer.Timer
}

func newMachine(bank *hw.Bank, counters *counter.Bank, sink telemetry.Sink, clock timer.Clock, settings Settings, logger *zap.Logger) (*Machine, error) {
	m := &Machine{
		logger:       logger,
		clock:        clock,
		sink:         sink,
		counters:     counters,
		settings:     settings,
		bank:         bank,
		stepDelay:    timer.NewDelay(clock),
		motorTimeout: timer.New(clock),
		sleepTimeout: timer.New(clock),
	}

	actuators := map[string]*hw.Actuator{
		OutSledgeInlet: &m.sledgeInlet,
		OutSledgeVent:  &m.sledgeVent,
		OutBlade:       &m.blade,
		OutFrontclap:   &m.frontclap,
		OutMotorEnable: &m.motorEnable,
		OutUpperPulse:  &m.upperPulse,
		OutLowerPulse:  &m.lowerPulse,
		OutGreenLight:  &m.greenLight,
		OutRedLight:    &m.redLight,
	}
	for name, dst := range actuators {
		a, err := bank.Actuator(name)
		if err != nil {
			return nil, fmt.Errorf("rig actuator: %w", err)
		}
		*dst = a
	}

	emergencyInput := settings.EmergencyInput
	if emergencyInput == "" {
		emergencyInput = defaultEmergency
	}
	sensors := map[string]**hw.Input{
		InSledgeStart:   &m.sledgeStart,
		InSledgeEnd:     &m.sledgeEnd,
		emergencyInput:  &m.emergencyStop,
		InEmailButton:   &m.emailButton,
		InUpperStrap:    &m.upperStrap,
		InLowerStrap:    &m.lowerStrap,
		InStrapJam:      &m.strapJam,
		InMotorOvertemp: &m.motorOvertemp,
	}
	for name, dst := range sensors {
		in, err := bank.Sensor(name)
		if err != nil {
			return nil, fmt.Errorf("rig sensor: %w", err)
		}
		*dst = in
	}

	pressure, err := bank.Analog(AnalogPressure)
	if err != nil {
		return nil, fmt.Errorf("rig analog: %w", err)
	}
	m.pressure = pressure

	return m, nil
}

// retainedOutputs are left alone by SafeShutdown: the power relays belong to
// the power sequencer and the lamps to the light monitor.
var retainedOutputs = []string{
	OutLogicPower, OutIsolation, OutHydraulics,
	OutGreenLight, OutRedLight,
}

// SafeShutdown drives every process actuator to the safe level declared in
// the I/O profile.
func (m *Machine) SafeShutdown() {
	m.bank.SafeShutdownExcept(retainedOutputs...)
}

func (m *Machine) moveSledge() {
	m.sledgeInlet.Set(true)
	m.sledgeVent.Set(true)
}

func (m *Machine) blockSledge() {
	m.sledgeInlet.Set(false)
	m.sledgeVent.Set(true)
}

func (m *Machine) ventSledge() {
	m.sledgeInlet.Set(false)
	m.sledgeVent.Set(false)
}

// motorOutputEnable brakes both motors and restarts the overheat timeout.
func (m *Machine) motorOutputEnable() {
	m.motorEnable.Set(true)
	m.motorTimeout.Arm()
	m.sleepTimeout.Arm()
}

func (m *Machine) motorOutputDisable() {
	m.motorEnable.Set(false)
}

func (m *Machine) motorOutputToggle() {
	if m.motorEnable.Get() {
		m.motorOutputDisable()
		return
	}
	m.motorOutputEnable()
}

func (m *Machine) startUpperMotor() {
	m.motorOutputEnable()
	m.upperPulse.Set(true)
}

func (m *Machine) stopUpperMotor() { m.upperPulse.Set(false) }

func (m *Machine) startLowerMotor() {
	m.motorOutputEnable()
	m.lowerPulse.Set(true)
}

func (m *Machine) stopLowerMotor() { m.lowerPulse.Set(false) }

// feedTime converts a strap length to motor run time at 17 ms per mm.
func feedTime(mm int64) time.Duration {
	return time.Duration(mm*17) * time.Millisecond
}

func (m *Machine) showInfo(text string) {
	m.info = text
	m.infoVisible = true
}

func (m *Machine) hideInfo() {
	m.infoVisible = false
}

func (m *Machine) clearInfo() {
	m.info = ""
	m.infoVisible = false
}

// countCycle bumps both cycle counters and logs them.
func (m *Machine) countCycle() {
	short, err := m.counters.Increment(counter.Shorttime)
	if err != nil {
		m.logger.Error("Failed to count cycle", zap.Error(err))
		return
	}
	total, err := m.counters.Increment(counter.Longtime)
	if err != nil {
		m.logger.Error("Failed to count cycle", zap.Error(err))
		return
	}
	m.sink.Emit(telemetry.Log(telemetry.KeyCycleReset, short))
	m.sink.Emit(telemetry.Log(telemetry.KeyCycleTotal, total))
}

// onReset finishes the reset routine on the rig side.
func (m *Machine) onReset(runAfter bool) {
	m.clearInfo()
	m.stepDelay.Reset()
}

// Light returns the current operator hint.
func (m *Machine) Light() display.LightState { return m.light.State() }
