package rig

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrHomeTimeout = errors.New("sledge did not reach its start position")

const homePoll = 10 * time.Millisecond

// Home drives the sledge back to its start position before the loop starts.
// refresh is called between samples so a polled backend can update the
// process image; it may be nil.
func (m *Machine) Home(ctx context.Context, refresh func()) error {
	m.logger.Info("Homing sledge", zap.Duration("timeout", m.settings.HomeTimeout))

	m.ventSledge()
	m.moveSledge()
	defer m.ventSledge()

	deadline := m.clock.Now().Add(m.settings.HomeTimeout)
	for {
		if refresh != nil {
			refresh()
		}
		m.bank.SampleInputs()
		if m.sledgeStart.Level() {
			m.logger.Info("Sledge homed")
			return nil
		}
		if !m.clock.Now().Before(deadline) {
			return ErrHomeTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clock.Sleep(homePoll)
	}
}
