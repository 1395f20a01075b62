package rig

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/emergency"
	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/watchdog"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
	"go.uber.org/zap"
)

// Deps are the rig's collaborators. Panel may be nil when no touch panel
// is attached.
type Deps struct {
	Bank     *hw.Bank
	Counters *counter.Bank
	Sink     telemetry.Sink
	Panel    display.Panel
	Clock    timer.Clock
	Settings Settings
	Logger   *zap.Logger
}

// Rig is one assembled strapping rig.
type Rig struct {
	Machine    *Machine
	Controller *machine.Controller
	Policy     *watchdog.Policy
	Arbiter    *emergency.Arbiter
	Engine     *engine.Engine
	Dispatcher *display.Dispatcher
	View       *display.View
	Power      *PowerSequencer

	hold *counterResetHold
}

func New(d Deps) (*Rig, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := d.Clock
	if clock == nil {
		clock = timer.SystemClock{}
	}
	panel := d.Panel
	if panel == nil {
		panel = display.NopPanel{}
	}

	m, err := newMachine(d.Bank, d.Counters, d.Sink, clock, d.Settings, logger)
	if err != nil {
		return nil, err
	}

	mainCycle, err := m.mainCycle()
	if err != nil {
		return nil, fmt.Errorf("main cycle: %w", err)
	}
	continuousCycle, err := m.continuousCycle()
	if err != nil {
		return nil, fmt.Errorf("continuous cycle: %w", err)
	}
	ctrl := machine.NewController(logger.Named("controller"), mainCycle, continuousCycle)
	m.ctrl = ctrl

	power, err := NewPowerSequencer(d.Bank, clock, d.Settings.Power, logger.Named("power"))
	if err != nil {
		return nil, err
	}

	policy := watchdog.NewPolicy(watchdog.Config{Budget: d.Settings.Watchdog.Budget},
		ctrl, m, clock, d.Sink, logger.Named("watchdog"))
	if err := m.registerWatchdogs(policy); err != nil {
		return nil, err
	}

	arbiter := emergency.NewArbiter(m.emergencyStop, ctrl, m, power, d.Sink, logger.Named("emergency"))

	eng := engine.NewEngine(engine.Components{
		IO:         d.Bank,
		Controller: ctrl,
		Arbiter:    arbiter,
		Policy:     policy,
		Shutdown:   m,
		Sink:       d.Sink,
		Clock:      clock,
	}, logger.Named("engine"))

	r := &Rig{
		Machine:    m,
		Controller: ctrl,
		Policy:     policy,
		Arbiter:    arbiter,
		Engine:     eng,
		Dispatcher: display.NewDispatcher(logger.Named("panel")),
		View:       display.NewView(panel, clock, d.Settings.DisplayRefresh, logger.Named("view")),
		Power:      power,
		hold:       &counterResetHold{m: m, timer: timer.New(clock)},
	}
	r.bindOperator()

	eng.AddPeripheral(r.Dispatcher)
	eng.AddPeripheral(emailButton{m: m})
	eng.AddPeripheral(motorMonitor{m: m})
	eng.AddPeripheral(r.hold)
	eng.AddPeripheral(newForceMonitor(m))
	eng.AddPeripheral(lightMonitor{m: m})
	eng.AddPeripheral(engine.PeripheralFunc(func() {
		r.View.Render(m.PanelState())
	}))
	eng.OnReset(m.onReset)

	return r, nil
}

// Start powers the rig up and shows the main page. The sledge must be
// homed before.
func (r *Rig) Start(ctx context.Context, running bool) error {
	r.View.Show(display.PageMain)
	if err := r.Arbiter.Start(ctx); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	if running && !r.Arbiter.Active() {
		r.Controller.SetMode(machine.ModeAuto)
		r.Controller.SetRunning(true)
	}
	return nil
}

// Stop halts the cycle, releases the actuators and powers the cylinder down.
func (r *Rig) Stop(ctx context.Context) error {
	r.Controller.SetRunning(false)
	r.Machine.SafeShutdown()
	return r.Power.PowerOff(ctx)
}

// Command injects an operator control as if it came from the panel.
func (r *Rig) Command(control string, action display.Action) error {
	return r.Dispatcher.Enqueue(display.Event{Control: control, Action: action})
}
