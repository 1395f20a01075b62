package machine

import (
	"sync"

	"github.com/KevinKickass/OpenRigCore/internal/workflow/step"
	"go.uber.org/zap"
)

// Controller records the mode/run state of the rig. It only records state:
// stopping outputs or latching faults is done by its callers. All mutators
// are called from the control loop; readers on other goroutines use Status.
type Controller struct {
	logger     *zap.Logger
	main       *step.Sequence
	continuous *step.Sequence

	mu             sync.RWMutex
	mode           Mode
	running        bool
	resetRequested bool
	runAfterReset  bool
	errorLatched   bool
	errorMessage   string

	prevSeq   *step.Sequence
	prevIndex int
}

// NewController starts in Step mode, stopped. continuous may be nil for rigs
// without a continuous cycle.
func NewController(logger *zap.Logger, main, continuous *step.Sequence) *Controller {
	return &Controller{
		logger:     logger,
		main:       main,
		continuous: continuous,
		mode:       ModeStep,
		prevSeq:    main,
		prevIndex:  main.Index(),
	}
}

func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Controller) SetMode(m Mode) {
	if m == ModeContinuous && c.continuous == nil {
		c.logger.Warn("Continuous mode not available on this rig")
		return
	}
	c.mu.Lock()
	prev := c.mode
	c.mode = m
	c.mu.Unlock()

	if prev != m {
		c.logger.Info("Mode changed",
			zap.String("mode", string(m)),
			zap.String("previous", string(prev)))
	}
}

// ToggleMode flips between Step and Auto. From Continuous it goes to Step.
func (c *Controller) ToggleMode() {
	if c.Mode() == ModeAuto {
		c.SetMode(ModeStep)
		return
	}
	c.SetMode(ModeAuto)
}

func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetRunning changes the run state. Starting is refused while an error is
// latched; the return value reports whether the rig is now in the asked state.
func (c *Controller) SetRunning(on bool) bool {
	c.mu.Lock()
	if on && c.errorLatched {
		c.mu.Unlock()
		c.logger.Warn("Start refused: error latched")
		return false
	}
	changed := c.running != on
	c.running = on
	c.mu.Unlock()

	if changed {
		c.logger.Info("Run state changed", zap.Bool("running", on))
	}
	return true
}

func (c *Controller) ToggleRunning() {
	c.SetRunning(!c.Running())
}

// RequestReset asks the loop to run the reset routine at the end of the
// current iteration. runAfter resumes Auto mode once the reset is done.
func (c *Controller) RequestReset(runAfter bool) {
	c.mu.Lock()
	c.resetRequested = true
	c.runAfterReset = runAfter
	c.mu.Unlock()

	c.logger.Info("Reset requested", zap.Bool("run_after", runAfter))
}

func (c *Controller) ResetRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetRequested
}

func (c *Controller) RunAfterReset() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runAfterReset
}

// CompleteReset is the state part of the reset routine: stop, clear the
// error latch, go to Step mode and rewind every sequence. It returns whether
// the rig should resume afterwards.
func (c *Controller) CompleteReset() bool {
	c.main.ResetTo(0)
	if c.continuous != nil {
		c.continuous.ResetTo(0)
	}

	c.mu.Lock()
	runAfter := c.runAfterReset
	c.running = false
	c.mode = ModeStep
	c.resetRequested = false
	c.runAfterReset = false
	c.errorLatched = false
	c.errorMessage = ""
	c.mu.Unlock()

	c.logger.Info("Reset completed", zap.Bool("run_after", runAfter))
	return runAfter
}

// Halt stops the rig in Step mode and rewinds every sequence without
// touching the error latch. Any pending reset is dropped.
func (c *Controller) Halt() {
	c.main.ResetTo(0)
	if c.continuous != nil {
		c.continuous.ResetTo(0)
	}

	c.mu.Lock()
	c.running = false
	c.mode = ModeStep
	c.resetRequested = false
	c.runAfterReset = false
	latched := c.errorLatched
	c.mu.Unlock()

	c.logger.Info("Halted", zap.Bool("error_latched", latched))
}

// LatchError records a fault that only an explicit reset clears. The caller
// is responsible for stopping outputs.
func (c *Controller) LatchError(msg string) {
	c.mu.Lock()
	c.errorLatched = true
	c.errorMessage = msg
	c.running = false
	c.mode = ModeStep
	c.mu.Unlock()

	c.logger.Error("Error latched", zap.String("message", msg))
}

func (c *Controller) ErrorLatched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorLatched
}

// Active returns the sequence of the current mode.
func (c *Controller) Active() *step.Sequence {
	if c.Mode() == ModeContinuous && c.continuous != nil {
		return c.continuous
	}
	return c.main
}

func (c *Controller) AdvanceStep() {
	c.Active().Advance()
}

func (c *Controller) RetreatStep() {
	c.Active().Retreat()
}

// NoteStepChangeEdge reports true exactly once per observed change of the
// active step. Switching between sequences counts as a change.
func (c *Controller) NoteStepChangeEdge() bool {
	seq := c.Active()
	idx := seq.Index()
	changed := seq != c.prevSeq || idx != c.prevIndex
	c.prevSeq = seq
	c.prevIndex = idx
	return changed
}

// Status copies the run state. It reads the sequences, so it belongs to the
// loop goroutine; other goroutines read the engine snapshot instead.
func (c *Controller) Status() Status {
	seq := c.Active()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Mode:           c.mode,
		Running:        c.running,
		ResetRequested: c.resetRequested,
		RunAfterReset:  c.runAfterReset,
		ErrorLatched:   c.errorLatched,
		ErrorMessage:   c.errorMessage,
		Sequence:       seq.Name(),
		StepIndex:      seq.Index(),
		StepName:       seq.Current().Name(),
	}
}
