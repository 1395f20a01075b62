package engine

import (
	"context"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/emergency"
	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/watchdog"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopPower struct{}

func (nopPower) PowerOn(context.Context) error  { return nil }
func (nopPower) PowerOff(context.Context) error { return nil }

type rig struct {
	clock  *timer.FakeClock
	img    *hw.MemoryImage
	bank   *hw.Bank
	ctrl   *machine.Controller
	policy *watchdog.Policy
	sink   *telemetry.Recorder
	engine *Engine

	clamp    hw.Actuator
	polls    map[string]int
	holdPoll bool
}

func newRig(t *testing.T, budget int) *rig {
	t.Helper()
	r := &rig{
		clock: timer.NewFakeClock(),
		img:   hw.NewMemoryImage(),
		bank:  hw.NewBank(),
		sink:  &telemetry.Recorder{},
		polls: make(map[string]int),
	}
	require.NoError(t, r.bank.AddOutput(hw.NewOutput("clamp", false, r.img.Writer("clamp"))))
	require.NoError(t, r.bank.AddOutput(hw.NewOutput("brake", true, r.img.Writer("brake"))))
	require.NoError(t, r.bank.AddInput(hw.NewInput("estop", false, r.img.Reader("estop"))))
	require.NoError(t, r.bank.AddInput(hw.NewInput("closed", false, r.img.Reader("closed"))))

	var err error
	r.clamp, err = r.bank.Actuator("clamp")
	require.NoError(t, err)
	closed, err := r.bank.Sensor("closed")
	require.NoError(t, err)
	estop, err := r.bank.Sensor("estop")
	require.NoError(t, err)

	delay := timer.NewDelay(r.clock)
	main, err := step.NewRing("main",
		step.New("close", step.Funcs{
			OnEnter: func(*step.Step) { r.clamp.Set(true) },
			OnPoll: func(s *step.Step) {
				r.polls["close"]++
				if closed.Level() && !r.holdPoll {
					s.MarkComplete()
				}
			},
		}),
		step.New("hold", step.Funcs{
			OnEnter: func(*step.Step) { delay.Reset() },
			OnPoll: func(s *step.Step) {
				r.polls["hold"]++
				if delay.IsUp(time.Second) {
					s.MarkComplete()
				}
			},
		}),
		step.New("open", step.Funcs{
			OnEnter: func(*step.Step) { r.clamp.Set(false) },
			OnPoll: func(s *step.Step) {
				r.polls["open"]++
				s.MarkComplete()
			},
		}, step.CompletesWork()),
	)
	require.NoError(t, err)
	cont, err := step.NewRing("continuous", step.New("vent", step.Funcs{
		OnPoll: func(s *step.Step) { s.MarkComplete() },
	}))
	require.NoError(t, err)

	r.ctrl = machine.NewController(zap.NewNop(), main, cont)
	r.policy = watchdog.NewPolicy(watchdog.Config{Budget: budget}, r.ctrl, r.bank, r.clock, r.sink, zap.NewNop())
	require.NoError(t, r.policy.Add(watchdog.Watchdog{
		Condition:       watchdog.StalledSequence,
		Duration:        10 * time.Second,
		Modes:           []machine.Mode{machine.ModeAuto},
		ArmOnStepChange: true,
	}))
	arbiter := emergency.NewArbiter(estop, r.ctrl, r.bank, nopPower{}, r.sink, zap.NewNop())

	r.engine = NewEngine(Components{
		IO:         r.bank,
		Controller: r.ctrl,
		Arbiter:    arbiter,
		Policy:     r.policy,
		Shutdown:   r.bank,
		Sink:       r.sink,
		Clock:      r.clock,
	}, zap.NewNop())
	return r
}

func (r *rig) iterate(n int) {
	for i := 0; i < n; i++ {
		r.engine.Iterate(context.Background())
		r.clock.Advance(10 * time.Millisecond)
	}
}

func TestStepModeManualAdvanceWraps(t *testing.T) {
	r := newRig(t, 3)
	r.iterate(1)

	seen := []int{r.engine.Snapshot().StepIndex}
	for i := 0; i < 3; i++ {
		r.ctrl.AdvanceStep()
		r.iterate(1)
		seen = append(seen, r.engine.Snapshot().StepIndex)
		assert.False(t, r.engine.Snapshot().Running)
	}
	assert.Equal(t, []int{0, 1, 2, 0}, seen)
}

func TestStepModeStopsAfterEachStep(t *testing.T) {
	r := newRig(t, 3)
	r.img.SetInput("closed", true)
	r.ctrl.SetRunning(true)

	r.iterate(5)
	snap := r.engine.Snapshot()
	assert.Equal(t, 1, snap.StepIndex)
	assert.False(t, snap.Running)
	assert.True(t, r.img.Output("clamp"))
}

func TestAutoModeCyclesAndClearsRetries(t *testing.T) {
	r := newRig(t, 3)
	r.img.SetInput("closed", true)
	r.ctrl.SetMode(machine.ModeAuto)
	r.ctrl.SetRunning(true)

	r.iterate(300)
	assert.True(t, r.ctrl.Running())
	assert.Greater(t, r.polls["open"], 1, "ring keeps cycling")
	assert.Zero(t, r.policy.Retries())
}

func TestStallAutoResetsThenLatches(t *testing.T) {
	r := newRig(t, 2)
	r.ctrl.SetMode(machine.ModeAuto)
	r.ctrl.SetRunning(true)

	// "close" never completes: the sensor stays low.
	r.iterate(1)
	r.clock.Advance(10 * time.Second)
	r.iterate(1)

	assert.Equal(t, 1, r.policy.Retries())
	assert.True(t, r.ctrl.Running(), "first strike auto-resets and resumes")
	assert.Equal(t, machine.ModeAuto, r.ctrl.Mode())
	assert.True(t, r.sink.Has(telemetry.KeyAutoReset))

	r.iterate(1)
	r.clock.Advance(10 * time.Second)
	r.iterate(1)

	snap := r.engine.Snapshot()
	assert.True(t, snap.ErrorLatched)
	assert.False(t, snap.Running)
	assert.Equal(t, machine.ModeStep, snap.Mode)
	assert.False(t, r.img.Output("clamp"))
	assert.True(t, r.img.Output("brake"))
	assert.True(t, r.sink.Has(telemetry.KeyMachineStopped))

	// Latched: no automatic recovery and no restart.
	r.ctrl.SetRunning(true)
	r.clock.Advance(time.Minute)
	r.iterate(5)
	assert.True(t, r.engine.Snapshot().ErrorLatched)

	r.ctrl.RequestReset(false)
	r.iterate(1)
	assert.False(t, r.engine.Snapshot().ErrorLatched)
	assert.Zero(t, r.policy.Retries())
}

func TestEmergencyStopPreemptsPolling(t *testing.T) {
	r := newRig(t, 3)
	r.ctrl.SetMode(machine.ModeAuto)
	r.ctrl.SetRunning(true)
	r.iterate(3)
	require.True(t, r.img.Output("clamp"))
	polled := r.polls["close"]

	r.img.SetInput("estop", true)
	r.iterate(1)

	snap := r.engine.Snapshot()
	assert.Equal(t, polled, r.polls["close"], "step not polled after assertion")
	assert.False(t, snap.Running)
	assert.False(t, snap.ErrorLatched)
	assert.True(t, snap.Emergency)
	assert.False(t, r.img.Output("clamp"))
	assert.True(t, r.img.Output("brake"))

	r.ctrl.SetRunning(true)
	r.iterate(3)
	assert.Equal(t, polled, r.polls["close"])

	r.img.SetInput("estop", false)
	r.iterate(2)
	assert.False(t, r.engine.Snapshot().Running, "release does not restart by itself")
	assert.False(t, r.engine.Snapshot().Emergency)
}

func TestEmergencyDuringAutoResetResumesAfterRelease(t *testing.T) {
	r := newRig(t, 3)
	r.ctrl.RequestReset(true)

	r.img.SetInput("estop", true)
	r.iterate(2)
	assert.False(t, r.ctrl.Running())

	r.img.SetInput("estop", false)
	r.iterate(1)
	assert.True(t, r.ctrl.Running())
	assert.Equal(t, machine.ModeAuto, r.ctrl.Mode())
}

func TestEmergencyCycleKeepsRetryCount(t *testing.T) {
	r := newRig(t, 3)
	r.ctrl.SetMode(machine.ModeAuto)
	r.ctrl.SetRunning(true)
	r.iterate(1)
	r.clock.Advance(10 * time.Second)
	r.iterate(1)
	require.Equal(t, 1, r.policy.Retries())
	r.sink.Reset()

	r.img.SetInput("estop", true)
	r.iterate(2)
	r.img.SetInput("estop", false)
	r.iterate(2)

	assert.Equal(t, 1, r.policy.Retries())
	assert.Equal(t, 1, r.engine.Snapshot().Retries)
	assert.False(t, r.sink.Has(telemetry.KeyMachineReset), "a stop is not a reset")
}

func TestEmergencyCycleKeepsLatchedError(t *testing.T) {
	r := newRig(t, 1)
	r.ctrl.SetMode(machine.ModeAuto)
	r.ctrl.SetRunning(true)
	r.iterate(1)
	r.clock.Advance(10 * time.Second)
	r.iterate(1)
	require.True(t, r.ctrl.ErrorLatched())
	msg := r.engine.Snapshot().ErrorMessage
	require.NotEmpty(t, msg)

	r.img.SetInput("estop", true)
	r.iterate(2)
	r.img.SetInput("estop", false)
	r.iterate(2)

	snap := r.engine.Snapshot()
	assert.True(t, snap.ErrorLatched)
	assert.Equal(t, msg, snap.ErrorMessage)
	assert.False(t, snap.Running)

	r.ctrl.RequestReset(false)
	r.iterate(1)
	assert.False(t, r.ctrl.ErrorLatched())
}

func TestUnarmedWatchdogDoesNotFireBeforeStart(t *testing.T) {
	r := newRig(t, 1)
	r.ctrl.SetMode(machine.ModeAuto)
	r.clock.Advance(time.Hour)

	r.ctrl.SetRunning(true)
	r.iterate(1)
	assert.False(t, r.ctrl.ErrorLatched(), "running edge re-arms the watchdogs")
}

func TestSnapshotHook(t *testing.T) {
	r := newRig(t, 3)
	var calls int
	var firstPrev *Snapshot = &Snapshot{}
	r.engine.OnSnapshot(func(prev, next *Snapshot) {
		if calls == 0 {
			firstPrev = prev
		}
		calls++
		assert.Equal(t, uint64(calls), next.Iteration)
	})
	var resets []bool
	r.engine.OnReset(func(runAfter bool) { resets = append(resets, runAfter) })
	r.engine.AddPeripheral(PeripheralFunc(func() {}))

	r.iterate(2)
	r.ctrl.RequestReset(false)
	r.iterate(1)

	assert.Nil(t, firstPrev)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []bool{false}, resets)
	assert.Contains(t, r.engine.Snapshot().Outputs, "clamp")
	assert.True(t, r.sink.Has(telemetry.KeyMachineReset))
}

func TestSameState(t *testing.T) {
	a := &Snapshot{Status: machine.Status{Mode: machine.ModeAuto}, Iteration: 1}
	b := &Snapshot{Status: machine.Status{Mode: machine.ModeAuto}, Iteration: 2}
	assert.True(t, a.SameState(b))
	b.Running = true
	assert.False(t, a.SameState(b))
	assert.False(t, a.SameState(nil))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	r := newRig(t, 3)
	r.clamp.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.engine.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, r.img.Output("clamp"))
}
