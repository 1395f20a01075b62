package display

// LightState is the operator hint shown on the traffic light button.
type LightState int

const (
	LightStart LightState = iota
	LightUserAction
	LightMachineBusy
	LightSleep
)

// RGB565 colors of the panel.
const (
	ColorGreen uint16 = 2016
	ColorBlue  uint16 = 500
	ColorRed   uint16 = 63488
)

func (s LightState) Text() string {
	switch s {
	case LightUserAction:
		return "CRIMPEN"
	case LightMachineBusy:
		return "WARTEN"
	case LightSleep:
		return "SLEEP"
	default:
		return "START"
	}
}

func (s LightState) Color() uint16 {
	switch s {
	case LightUserAction:
		return ColorGreen
	case LightMachineBusy:
		return ColorRed
	default:
		return ColorBlue
	}
}

func (s LightState) String() string {
	switch s {
	case LightUserAction:
		return "user_action"
	case LightMachineBusy:
		return "machine_busy"
	case LightSleep:
		return "sleep"
	default:
		return "start"
	}
}

// TrafficLight tracks the operator hint. Steps set it on entry; the rig
// falls back to START whenever the machine is stopped.
type TrafficLight struct {
	state LightState
}

func (t *TrafficLight) Set(s LightState)     { t.state = s }
func (t *TrafficLight) State() LightState    { return t.state }
func (t *TrafficLight) Is(s LightState) bool { return t.state == s }
