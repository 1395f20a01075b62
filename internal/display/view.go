package display

import (
	"strconv"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"go.uber.org/zap"
)

// Panel pages.
const (
	PageSplash   = 0
	PageMain     = 1
	PageSettings = 2
)

// Components of the main page.
const (
	StepField      = "t0"
	InfoField      = "t4"
	LightButton    = "b8"
	StepAutoSwitch = "bt1"
	AirSwitch      = "bt3"
	BrakeSwitch    = "bt5"
	SledgeButton   = "b6"
	UpperButton    = "b4"
	BladeButton    = "b5"
	LowerButton    = "b3"
)

// Components of the settings page.
const (
	UpperFeedField   = "t4"
	LowerFeedField   = "t2"
	ContinuousSwitch = "bt3"
	LongtimeField    = "t10"
	ShorttimeField   = "t12"
)

// State is everything the panel shows.
type State struct {
	StepLabel   string
	StepMode    bool
	Continuous  bool
	Light       LightState
	Info        string
	InfoVisible bool

	AirRelease bool
	MotorBrake bool
	Sledge     bool
	UpperMotor bool
	Blade      bool
	LowerMotor bool

	Longtime  int64
	Shorttime int64
	UpperFeed int64
	LowerFeed int64
}

// View pushes State to a Panel. Only fields that changed since the last
// push are sent, and pushes are throttled to the refresh interval.
type View struct {
	panel   Panel
	clock   timer.Clock
	refresh time.Duration
	logger  *zap.Logger

	page     int
	last     *State
	lastPush time.Time
	failures int
}

func NewView(panel Panel, clock timer.Clock, refresh time.Duration, logger *zap.Logger) *View {
	return &View{panel: panel, clock: clock, refresh: refresh, logger: logger, page: PageSplash}
}

// SetPage records the page the operator switched to. The next Render
// repaints every field of that page.
func (v *View) SetPage(page int) {
	v.page = page
	v.last = nil
	v.lastPush = time.Time{}
}

func (v *View) Page() int { return v.page }

// Show switches the panel to page and repaints it.
func (v *View) Show(page int) {
	v.check(v.panel.ShowPage(page))
	v.SetPage(page)
}

// Render sends the differences between s and the last pushed state.
func (v *View) Render(s State) {
	now := v.clock.Now()
	if !v.lastPush.IsZero() && now.Sub(v.lastPush) < v.refresh {
		return
	}

	prev := v.last
	full := prev == nil
	if full {
		prev = &State{}
	}

	switch v.page {
	case PageMain:
		v.renderMain(s, prev, full)
	case PageSettings:
		v.renderSettings(s, prev, full)
	}

	v.last = &s
	v.lastPush = now
}

func (v *View) renderMain(s State, prev *State, full bool) {
	if full || s.StepLabel != prev.StepLabel {
		v.check(v.panel.SetText(StepField, s.StepLabel))
	}
	if full || s.Light != prev.Light {
		v.check(v.panel.SetColor(LightButton, s.Light.Color()))
		v.check(v.panel.SetText(LightButton, s.Light.Text()))
	}
	if full || s.StepMode != prev.StepMode {
		v.check(v.panel.SetSwitch(StepAutoSwitch, s.StepMode))
	}
	if full || s.InfoVisible != prev.InfoVisible {
		v.check(v.panel.SetVisible(InfoField, s.InfoVisible))
	}
	if s.InfoVisible && (full || s.Info != prev.Info || !prev.InfoVisible) {
		v.check(v.panel.SetText(InfoField, s.Info))
	}

	if full || s.AirRelease != prev.AirRelease {
		v.check(v.panel.SetSwitch(AirSwitch, s.AirRelease))
	}
	if full || s.MotorBrake != prev.MotorBrake {
		v.check(v.panel.SetSwitch(BrakeSwitch, s.MotorBrake))
	}
	if full || s.Sledge != prev.Sledge {
		v.check(v.panel.Press(SledgeButton, s.Sledge))
	}
	if full || s.UpperMotor != prev.UpperMotor {
		v.check(v.panel.Press(UpperButton, s.UpperMotor))
	}
	if full || s.Blade != prev.Blade {
		v.check(v.panel.Press(BladeButton, s.Blade))
	}
	if full || s.LowerMotor != prev.LowerMotor {
		v.check(v.panel.Press(LowerButton, s.LowerMotor))
	}
}

func (v *View) renderSettings(s State, prev *State, full bool) {
	if full || s.UpperFeed != prev.UpperFeed {
		v.check(v.panel.SetText(UpperFeedField, strconv.FormatInt(s.UpperFeed, 10)+" mm"))
	}
	if full || s.LowerFeed != prev.LowerFeed {
		v.check(v.panel.SetText(LowerFeedField, strconv.FormatInt(s.LowerFeed, 10)+" mm"))
	}
	if full || s.Continuous != prev.Continuous {
		v.check(v.panel.SetSwitch(ContinuousSwitch, s.Continuous))
	}
	if full || s.Longtime != prev.Longtime {
		v.check(v.panel.SetText(LongtimeField, strconv.FormatInt(s.Longtime, 10)))
	}
	if full || s.Shorttime != prev.Shorttime {
		v.check(v.panel.SetText(ShorttimeField, strconv.FormatInt(s.Shorttime, 10)))
	}
}

// check logs the first failure and then every 100th so a disconnected
// panel does not flood the log.
func (v *View) check(err error) {
	if err == nil {
		return
	}
	v.failures++
	if v.failures == 1 || v.failures%100 == 0 {
		v.logger.Warn("Panel write failed", zap.Error(err), zap.Int("failures", v.failures))
	}
}
