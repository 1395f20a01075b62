package rig

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"go.uber.org/zap"
)

// PowerTiming holds the stage delays of the electric cylinder's power
// sequence (Festo ELGS-BS: logic power at least 50 ms after load power,
// analog outputs off at least 100 ms before logic power).
type PowerTiming struct {
	LogicDelay      time.Duration
	InitDelay       time.Duration
	DisconnectDelay time.Duration
	HydraulicDelay  time.Duration
}

// PowerSequencer switches the feed cylinder and the hydraulics. The calls
// block for the stage delays.
type PowerSequencer struct {
	logger *zap.Logger
	clock  timer.Clock
	timing PowerTiming

	logicPower hw.Actuator
	isolation  hw.Actuator
	hydraulics hw.Actuator
}

func NewPowerSequencer(bank *hw.Bank, clock timer.Clock, timing PowerTiming, logger *zap.Logger) (*PowerSequencer, error) {
	p := &PowerSequencer{logger: logger, clock: clock, timing: timing}
	for name, dst := range map[string]*hw.Actuator{
		OutLogicPower: &p.logicPower,
		OutIsolation:  &p.isolation,
		OutHydraulics: &p.hydraulics,
	} {
		a, err := bank.Actuator(name)
		if err != nil {
			return nil, fmt.Errorf("power sequencer: %w", err)
		}
		*dst = a
	}
	return p, nil
}

func (p *PowerSequencer) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.clock.Sleep(d)
	return ctx.Err()
}

// PowerOn brings up logic power, waits for the cylinder to initialize and
// then connects its outputs and pressurizes the hydraulics.
func (p *PowerSequencer) PowerOn(ctx context.Context) error {
	p.logger.Info("Powering on feed cylinder")

	if err := p.wait(ctx, p.timing.LogicDelay); err != nil {
		return err
	}
	p.logicPower.Set(true)

	if err := p.wait(ctx, p.timing.InitDelay); err != nil {
		return err
	}
	p.isolation.Set(true)
	p.hydraulics.Set(true)
	return nil
}

// PowerOff disconnects the cylinder outputs before dropping logic power,
// then releases the hydraulics once the cylinders have moved back. It always
// runs to the end; ctx is not consulted.
func (p *PowerSequencer) PowerOff(ctx context.Context) error {
	p.logger.Info("Powering off feed cylinder")

	p.isolation.Set(false)
	p.clock.Sleep(p.timing.DisconnectDelay)
	p.logicPower.Set(false)

	p.clock.Sleep(p.timing.HydraulicDelay)
	p.hydraulics.Set(false)
	return nil
}

// Powered reports whether the cylinder is fully powered.
func (p *PowerSequencer) Powered() bool {
	return p.logicPower.Get() && p.isolation.Get() && p.hydraulics.Get()
}
