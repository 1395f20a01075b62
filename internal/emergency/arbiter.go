// Package emergency arbitrates the external emergency-stop signal. It is
// evaluated first in every loop iteration and overrides every other
// component while the signal is asserted.
package emergency

import (
	"context"

	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"go.uber.org/zap"
)

// Signal is the safety input. Level is true while the stop is asserted.
type Signal interface {
	Level() bool
}

type Shutdowner interface {
	SafeShutdown()
}

// PowerSequencer switches the actuated subsystems on and off in their
// mandated order. Both calls block for the datasheet delays between stages
// and must only be called while the rig is stopped.
type PowerSequencer interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

type Arbiter struct {
	signal   Signal
	ctrl     *machine.Controller
	shutdown Shutdowner
	power    PowerSequencer
	sink     telemetry.Sink
	logger   *zap.Logger

	asserted      bool
	resumePending bool
}

func NewArbiter(signal Signal, ctrl *machine.Controller, shutdown Shutdowner, power PowerSequencer, sink telemetry.Sink, logger *zap.Logger) *Arbiter {
	return &Arbiter{
		signal:   signal,
		ctrl:     ctrl,
		shutdown: shutdown,
		power:    power,
		sink:     sink,
		logger:   logger,
	}
}

// Start powers the rig up at boot unless the stop is already asserted, in
// which case the rig stays down until the signal is released.
func (a *Arbiter) Start(ctx context.Context) error {
	if a.signal.Level() {
		a.logger.Warn("Emergency stop asserted at boot")
		a.asserted = true
		a.ctrl.SetRunning(false)
		a.shutdown.SafeShutdown()
		a.sink.Emit(telemetry.Log(telemetry.KeyEmergencyStop, true))
		return nil
	}
	return a.power.PowerOn(ctx)
}

// Active reports whether the stop is asserted.
func (a *Arbiter) Active() bool { return a.asserted }

// Evaluate handles signal edges and, while the stop is asserted, forces the
// rig to Stopped. It reports whether the stop is active after evaluation.
func (a *Arbiter) Evaluate(ctx context.Context) bool {
	level := a.signal.Level()

	switch {
	case level && !a.asserted:
		a.onAssert(ctx)
	case !level && a.asserted:
		a.onRelease(ctx)
	}

	if a.asserted {
		a.ctrl.SetRunning(false)
	}
	return a.asserted
}

func (a *Arbiter) onAssert(ctx context.Context) {
	a.asserted = true
	a.resumePending = a.ctrl.ResetRequested() && a.ctrl.RunAfterReset()

	a.logger.Warn("Emergency stop asserted", zap.Bool("resume_pending", a.resumePending))
	a.ctrl.SetRunning(false)
	a.shutdown.SafeShutdown()
	a.ctrl.Halt()
	if err := a.power.PowerOff(ctx); err != nil {
		a.logger.Error("Power off sequence failed", zap.Error(err))
	}
	a.sink.Emit(telemetry.Log(telemetry.KeyEmergencyStop, true))
}

func (a *Arbiter) onRelease(ctx context.Context) {
	a.asserted = false

	a.logger.Info("Emergency stop released", zap.Bool("resume", a.resumePending))
	if err := a.power.PowerOn(ctx); err != nil {
		a.logger.Error("Power on sequence failed", zap.Error(err))
	}
	if a.resumePending {
		a.ctrl.RequestReset(true)
	}
	a.resumePending = false
	a.sink.Emit(telemetry.Log(telemetry.KeyEmergencyStop, false))
}
