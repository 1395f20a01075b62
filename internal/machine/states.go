package machine

import "fmt"

// Mode is the operating mode of the rig. Exactly one mode is active.
type Mode string

const (
	ModeStep       Mode = "step"
	ModeAuto       Mode = "auto"
	ModeContinuous Mode = "continuous"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStep, ModeAuto, ModeContinuous:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode: %q", s)
	}
}

// Status is a copy of the run state for readers outside the control loop.
type Status struct {
	Mode           Mode   `json:"mode"`
	Running        bool   `json:"running"`
	ResetRequested bool   `json:"reset_requested"`
	RunAfterReset  bool   `json:"run_after_reset"`
	ErrorLatched   bool   `json:"error_latched"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Sequence       string `json:"sequence"`
	StepIndex      int    `json:"step_index"`
	StepName       string `json:"step_name"`
}
