package display

import (
	"fmt"
	"sync"
)

// Panel is the outward command set of an operator display.
type Panel interface {
	SetText(component, text string) error
	SetValue(component string, v int64) error
	SetVisible(component string, on bool) error
	// SetSwitch sets the state of a two-state button.
	SetSwitch(component string, on bool) error
	// Press shows a momentary button as held or released.
	Press(component string, down bool) error
	SetColor(component string, color uint16) error
	ShowPage(page int) error
}

// NopPanel discards all commands. Used when the rig runs headless.
type NopPanel struct{}

func (NopPanel) SetText(string, string) error  { return nil }
func (NopPanel) SetValue(string, int64) error  { return nil }
func (NopPanel) SetVisible(string, bool) error { return nil }
func (NopPanel) SetSwitch(string, bool) error  { return nil }
func (NopPanel) Press(string, bool) error      { return nil }
func (NopPanel) SetColor(string, uint16) error { return nil }
func (NopPanel) ShowPage(int) error            { return nil }

// RecordingPanel remembers the commands it received, formatted as strings.
type RecordingPanel struct {
	mu       sync.Mutex
	commands []string
}

func (r *RecordingPanel) add(format string, args ...any) error {
	r.mu.Lock()
	r.commands = append(r.commands, fmt.Sprintf(format, args...))
	r.mu.Unlock()
	return nil
}

func (r *RecordingPanel) SetText(c, text string) error {
	return r.add("%s.txt=%q", c, text)
}

func (r *RecordingPanel) SetValue(c string, v int64) error {
	return r.add("%s.val=%d", c, v)
}

func (r *RecordingPanel) SetVisible(c string, on bool) error {
	return r.add("vis %s,%d", c, bit(on))
}

func (r *RecordingPanel) SetSwitch(c string, on bool) error {
	return r.add("%s.val=%d", c, bit(on))
}

func (r *RecordingPanel) Press(c string, down bool) error {
	return r.add("click %s,%d", c, bit(down))
}

func (r *RecordingPanel) SetColor(c string, color uint16) error {
	return r.add("%s.bco=%d", c, color)
}

func (r *RecordingPanel) ShowPage(page int) error {
	return r.add("page %d", page)
}

// Commands returns and clears the recorded commands.
func (r *RecordingPanel) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.commands
	r.commands = nil
	return out
}

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}
