// Package display connects the operator panel to the control loop. Touch
// events are queued from any goroutine and dispatched on the loop goroutine;
// the View pushes rig state back to the panel.
package display

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnknownControl = errors.New("unknown control")
	ErrQueueFull      = errors.New("operator event queue full")
)

type Action string

const (
	Pressed  Action = "pressed"
	Released Action = "released"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Pressed, Released:
		return Action(s), nil
	case "":
		return Pressed, nil
	default:
		return "", fmt.Errorf("invalid action: %s", s)
	}
}

// Event is one operator input, from the touch panel or the API.
type Event struct {
	Control string `json:"control"`
	Action  Action `json:"action"`
}

type handlerKey struct {
	control string
	action  Action
}

const maxQueued = 64

// Dispatcher queues operator events and runs their handlers in Poll.
// Handlers are registered before the loop starts.
type Dispatcher struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[handlerKey]func()
	controls map[string]bool
	queue    []Event
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[handlerKey]func()),
		controls: make(map[string]bool),
	}
}

func (d *Dispatcher) Handle(control string, action Action, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[handlerKey{control, action}] = fn
	d.controls[control] = true
}

func (d *Dispatcher) Known(control string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controls[control]
}

// Controls returns the registered control names, sorted.
func (d *Dispatcher) Controls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.controls))
	for c := range d.controls {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Enqueue queues an event for the next Poll. Safe from any goroutine.
func (d *Dispatcher) Enqueue(ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.controls[ev.Control] {
		return fmt.Errorf("%w: %s", ErrUnknownControl, ev.Control)
	}
	if len(d.queue) >= maxQueued {
		return ErrQueueFull
	}
	d.queue = append(d.queue, ev)
	return nil
}

// Poll dispatches every queued event in arrival order and returns how many
// were handled. Events without a handler for their action are dropped.
func (d *Dispatcher) Poll() int {
	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	d.mu.Unlock()

	handled := 0
	for _, ev := range queued {
		d.mu.Lock()
		fn := d.handlers[handlerKey{ev.Control, ev.Action}]
		d.mu.Unlock()
		if fn == nil {
			continue
		}
		d.logger.Debug("Operator event",
			zap.String("control", ev.Control),
			zap.String("action", string(ev.Action)))
		fn()
		handled++
	}
	return handled
}

// Service lets the dispatcher run as a loop peripheral.
func (d *Dispatcher) Service() { d.Poll() }
