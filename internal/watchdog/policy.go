// Package watchdog detects stalled or faulty rig conditions with per-condition
// timers and escalates them through a bounded retry ladder.
package watchdog

import (
	"fmt"
	"sort"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"go.uber.org/zap"
)

// Condition identifies a fault condition. The numeric order is the
// evaluation priority: lower values are checked first.
type Condition int

const (
	MissingMaterial Condition = iota
	JammedMaterial
	StalledSequence
	OverTemperature
)

func (c Condition) String() string {
	switch c {
	case MissingMaterial:
		return "missing_material"
	case JammedMaterial:
		return "jammed_material"
	case StalledSequence:
		return "stalled_sequence"
	case OverTemperature:
		return "over_temperature"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// Watchdog binds one condition to a timer.
type Watchdog struct {
	Condition Condition
	Duration  time.Duration
	// Modes the watchdog is evaluated in. Empty means every mode.
	Modes []machine.Mode
	// Kick reports the healthy signal; while it is true the timer is re-armed.
	Kick func() bool
	// Gate confirms a timeout. When it returns false the timeout is ignored
	// and the timer restarts. Nil confirms every timeout.
	Gate func() bool
	// ArmOnStepChange re-arms the timer on every step transition.
	ArmOnStepChange bool
	// Message is shown to the operator when the fault latches.
	Message string

	timer *timer.Timer
}

func (w *Watchdog) enabledIn(m machine.Mode) bool {
	if len(w.Modes) == 0 {
		return true
	}
	for _, mode := range w.Modes {
		if mode == m {
			return true
		}
	}
	return false
}

// Shutdowner drives all actuated subsystems to their safe state.
type Shutdowner interface {
	SafeShutdown()
}

type Config struct {
	// Budget is the number of strikes that latches the fault. Strikes below
	// the budget are healed with an automatic reset.
	Budget int
}

// Policy evaluates the watchdogs and owns the retry counter.
type Policy struct {
	logger   *zap.Logger
	clock    timer.Clock
	ctrl     *machine.Controller
	shutdown Shutdowner
	sink     telemetry.Sink

	budget    int
	watchdogs []*Watchdog
	strikes   int

	onLatch func(c Condition, msg string)
}

func NewPolicy(cfg Config, ctrl *machine.Controller, shutdown Shutdowner, clock timer.Clock, sink telemetry.Sink, logger *zap.Logger) *Policy {
	budget := cfg.Budget
	if budget < 1 {
		budget = 1
	}
	return &Policy{
		logger:   logger,
		clock:    clock,
		ctrl:     ctrl,
		shutdown: shutdown,
		sink:     sink,
		budget:   budget,
	}
}

// OnLatch registers the operator notification for latched faults.
func (p *Policy) OnLatch(fn func(c Condition, msg string)) {
	p.onLatch = fn
}

// Add registers a watchdog. Each condition may only be registered once.
func (p *Policy) Add(w Watchdog) error {
	for _, existing := range p.watchdogs {
		if existing.Condition == w.Condition {
			return fmt.Errorf("watchdog %s already registered", w.Condition)
		}
	}
	if w.Duration <= 0 {
		return fmt.Errorf("watchdog %s: duration must be positive", w.Condition)
	}
	if w.Message == "" {
		w.Message = w.Condition.String()
	}
	w.timer = timer.New(p.clock)
	p.watchdogs = append(p.watchdogs, &w)
	sort.SliceStable(p.watchdogs, func(i, j int) bool {
		return p.watchdogs[i].Condition < p.watchdogs[j].Condition
	})
	return nil
}

func (p *Policy) Arm(c Condition) {
	for _, w := range p.watchdogs {
		if w.Condition == c {
			w.timer.Arm()
		}
	}
}

func (p *Policy) ArmAll() {
	for _, w := range p.watchdogs {
		w.timer.Arm()
	}
}

// NoteStepChange re-arms the step-bound watchdogs enabled in mode.
func (p *Policy) NoteStepChange(mode machine.Mode) {
	for _, w := range p.watchdogs {
		if w.ArmOnStepChange && w.enabledIn(mode) {
			w.timer.Arm()
		}
	}
}

// NoteWorkCompleted clears the retry history after a finished unit of work.
func (p *Policy) NoteWorkCompleted() {
	if p.strikes > 0 {
		p.logger.Info("Retry counter cleared", zap.Int("strikes", p.strikes))
	}
	p.strikes = 0
}

// ClearRetries is called on an explicit operator reset.
func (p *Policy) ClearRetries() {
	p.strikes = 0
}

func (p *Policy) Retries() int { return p.strikes }

func (p *Policy) Budget() int { return p.budget }

// Remaining reports the time left on every armed watchdog timer.
func (p *Policy) Remaining() map[string]time.Duration {
	out := make(map[string]time.Duration, len(p.watchdogs))
	for _, w := range p.watchdogs {
		if w.timer.Armed() {
			out[w.Condition.String()] = w.timer.Remaining(w.Duration)
		}
	}
	return out
}

// Evaluate checks the watchdogs of mode in priority order. The first
// confirmed timeout is escalated and reported; lower-priority watchdogs are
// not looked at in that iteration.
func (p *Policy) Evaluate(mode machine.Mode) (Condition, bool) {
	for _, w := range p.watchdogs {
		if !w.enabledIn(mode) {
			continue
		}
		if w.Kick != nil && w.Kick() {
			w.timer.Arm()
			continue
		}
		if !w.timer.HasElapsed(w.Duration) {
			continue
		}
		if w.Gate != nil && !w.Gate() {
			p.logger.Debug("Watchdog timeout not confirmed", zap.String("condition", w.Condition.String()))
			w.timer.Arm()
			continue
		}
		p.escalate(w)
		return w.Condition, true
	}
	return 0, false
}

func (p *Policy) escalate(w *Watchdog) {
	p.strikes++
	w.timer.Disarm()

	if p.strikes < p.budget {
		p.logger.Warn("Watchdog fired, resetting",
			zap.String("condition", w.Condition.String()),
			zap.Int("strike", p.strikes),
			zap.Int("budget", p.budget))
		p.ctrl.RequestReset(true)
		p.sink.Emit(telemetry.Log(telemetry.KeyAutoReset, w.Condition.String(), p.strikes))
		return
	}

	p.logger.Error("Watchdog retries exhausted, stopping machine",
		zap.String("condition", w.Condition.String()),
		zap.Int("strikes", p.strikes))
	p.ctrl.LatchError(w.Message)
	p.shutdown.SafeShutdown()
	p.sink.Emit(telemetry.Email(telemetry.KeyMachineStopped))
	if p.onLatch != nil {
		p.onLatch(w.Condition, w.Message)
	}
}
