package devices

import (
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/types"
)

// Simulator stands in for the machine when the rig runs on a memory image:
// inputs follow outputs after the configured delay. It is serviced on the
// loop goroutine like any other peripheral.
type Simulator struct {
	image *hw.MemoryImage
	clock timer.Clock
	rules []*simRule
}

type simRule struct {
	types.SimulationRule
	analog  bool
	source  hw.Actuator
	level   bool
	changed time.Time
}

func NewSimulator(p *types.IOProfile, bank *hw.Bank, image *hw.MemoryImage, clock timer.Clock) (*Simulator, error) {
	analogs := make(map[string]bool, len(p.Analog))
	for _, a := range p.Analog {
		analogs[a.Name] = true
	}

	s := &Simulator{image: image, clock: clock}
	for _, r := range p.Simulation {
		rule := &simRule{SimulationRule: r, analog: analogs[r.Input], changed: clock.Now()}
		if r.Follows != "" {
			src, err := bank.Actuator(r.Follows)
			if err != nil {
				return nil, err
			}
			rule.source = src
			rule.level = src.Get()
		}
		s.rules = append(s.rules, rule)
		s.apply(rule, r.Initial)
	}
	return s, nil
}

func (s *Simulator) apply(r *simRule, level bool) {
	if r.analog {
		raw := uint16(0)
		if level {
			raw = r.Raw
		}
		s.image.SetAnalog(r.Input, raw)
		return
	}
	s.image.SetInput(r.Input, level)
}

// Service moves every following input once its output has been stable for
// the rule's delay.
func (s *Simulator) Service() {
	now := s.clock.Now()
	for _, r := range s.rules {
		if r.source == nil {
			continue
		}
		level := r.source.Get()
		if level != r.level {
			r.level = level
			r.changed = now
		}
		if now.Sub(r.changed) >= r.Delay {
			s.apply(r, level != r.Invert)
		}
	}
}
