// Package engine runs the rig's control loop: one non-blocking iteration at a
// time, in a fixed order, on a single goroutine.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/emergency"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/watchdog"
	"go.uber.org/zap"
)

// IO is the process image as seen by the loop.
type IO interface {
	SampleInputs()
	Levels() (outputs, inputs map[string]bool)
}

type Shutdowner interface {
	SafeShutdown()
}

// Peripheral is serviced once per iteration after the sequence and the reset
// routine. It must not block.
type Peripheral interface {
	Service()
}

type PeripheralFunc func()

func (f PeripheralFunc) Service() { f() }

// Components are the collaborators of one rig, built once at startup.
type Components struct {
	IO         IO
	Controller *machine.Controller
	Arbiter    *emergency.Arbiter
	Policy     *watchdog.Policy
	Shutdown   Shutdowner
	Sink       telemetry.Sink
	Clock      timer.Clock
}

type Engine struct {
	logger *zap.Logger
	c      Components

	peripherals []Peripheral
	onReset     []func(runAfter bool)
	onSnapshot  func(prev, next *Snapshot)

	iteration  uint64
	wasRunning bool
	snapshot   atomic.Pointer[Snapshot]
}

func NewEngine(c Components, logger *zap.Logger) *Engine {
	e := &Engine{logger: logger, c: c}
	e.snapshot.Store(&Snapshot{Status: c.Controller.Status(), At: c.Clock.Now()})
	return e
}

func (e *Engine) AddPeripheral(p Peripheral) {
	e.peripherals = append(e.peripherals, p)
}

// OnReset registers a hook that runs at the end of the reset routine.
func (e *Engine) OnReset(fn func(runAfter bool)) {
	e.onReset = append(e.onReset, fn)
}

// OnSnapshot registers a hook called on the loop goroutine after every
// publish. prev is nil for the first iteration.
func (e *Engine) OnSnapshot(fn func(prev, next *Snapshot)) {
	e.onSnapshot = fn
}

// Snapshot returns the last published state. Safe from any goroutine.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Iterate runs one loop iteration. The order is fixed: input scan, emergency
// stop, watchdogs, sequence, reset routine, peripherals, publish.
func (e *Engine) Iterate(ctx context.Context) {
	ctrl := e.c.Controller
	e.iteration++

	e.c.IO.SampleInputs()

	stopped := e.c.Arbiter.Evaluate(ctx)

	running := ctrl.Running()
	if running && !e.wasRunning {
		e.c.Policy.ArmAll()
	}
	if running && !stopped && !ctrl.ErrorLatched() {
		e.c.Policy.Evaluate(ctrl.Mode())
	}

	e.serviceSequence()

	if ctrl.ResetRequested() {
		e.reset()
	}

	for _, p := range e.peripherals {
		p.Service()
	}

	e.wasRunning = ctrl.Running()
	e.publish(stopped)
}

func (e *Engine) serviceSequence() {
	ctrl := e.c.Controller
	seq := ctrl.Active()

	if done, ok := seq.CompleteCurrent(); ok {
		e.logger.Debug("Step completed",
			zap.String("sequence", seq.Name()),
			zap.String("step", done.Name()))
		if done.IsWorkUnit() {
			e.c.Policy.NoteWorkCompleted()
		}
		if seq.Finished() {
			e.logger.Info("Sequence finished", zap.String("sequence", seq.Name()))
			ctrl.SetRunning(false)
		}
	}

	if ctrl.NoteStepChangeEdge() {
		mode := ctrl.Mode()
		if mode == machine.ModeStep {
			ctrl.SetRunning(false)
		}
		if ctrl.Running() {
			e.c.Policy.NoteStepChange(mode)
		}
	}

	seq.Tick(ctrl.Running())
}

// reset drives the outputs safe, rewinds the sequences and clears the
// controller flags. An automatic reset resumes in Auto mode.
func (e *Engine) reset() {
	ctrl := e.c.Controller

	e.c.Shutdown.SafeShutdown()
	runAfter := ctrl.CompleteReset()
	e.c.Policy.ArmAll()
	ctrl.NoteStepChangeEdge()

	if runAfter {
		ctrl.SetMode(machine.ModeAuto)
		ctrl.SetRunning(true)
	} else {
		e.c.Policy.ClearRetries()
	}

	e.c.Sink.Emit(telemetry.Log(telemetry.KeyMachineReset, runAfter))
	for _, fn := range e.onReset {
		fn(runAfter)
	}
}

func (e *Engine) publish(stopped bool) {
	outputs, inputs := e.c.IO.Levels()
	next := &Snapshot{
		Iteration:   e.iteration,
		At:          e.c.Clock.Now(),
		Status:      e.c.Controller.Status(),
		Emergency:   stopped,
		Retries:     e.c.Policy.Retries(),
		RetryBudget: e.c.Policy.Budget(),
		Watchdogs:   e.c.Policy.Remaining(),
		Outputs:     outputs,
		Inputs:      inputs,
	}
	prev := e.snapshot.Swap(next)
	if e.onSnapshot != nil {
		if prev != nil && prev.Iteration == 0 {
			prev = nil
		}
		e.onSnapshot(prev, next)
	}
}

// Run iterates on a ticker until ctx is done, then drives every output to
// its safe state.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Control loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.c.Controller.SetRunning(false)
			e.c.Shutdown.SafeShutdown()
			e.logger.Info("Control loop stopped", zap.Uint64("iterations", e.iteration))
			return nil
		case <-ticker.C:
			e.Iterate(ctx)
		}
	}
}
