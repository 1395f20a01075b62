package hw

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrDuplicateChannel = errors.New("duplicate channel")
)

// Bank is the registry of every channel of one rig.
type Bank struct {
	outputs map[string]*Output
	gangs   map[string]*Gang
	members map[string][]string
	inputs  map[string]*Input
	analogs map[string]*Analog

	order []*Output
	scan  []*Input
}

func NewBank() *Bank {
	return &Bank{
		outputs: make(map[string]*Output),
		gangs:   make(map[string]*Gang),
		members: make(map[string][]string),
		inputs:  make(map[string]*Input),
		analogs: make(map[string]*Analog),
	}
}

func (b *Bank) taken(name string) bool {
	_, o := b.outputs[name]
	_, g := b.gangs[name]
	_, i := b.inputs[name]
	_, a := b.analogs[name]
	return o || g || i || a
}

func (b *Bank) AddOutput(o *Output) error {
	if b.taken(o.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, o.Name())
	}
	b.outputs[o.Name()] = o
	b.order = append(b.order, o)
	return nil
}

// AddGang groups existing outputs under a new name.
func (b *Bank) AddGang(name string, members ...string) error {
	if b.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	acts := make([]Actuator, 0, len(members))
	for _, m := range members {
		o, ok := b.outputs[m]
		if !ok {
			return fmt.Errorf("gang %s: %w: %s", name, ErrUnknownChannel, m)
		}
		acts = append(acts, o)
	}
	b.gangs[name] = NewGang(name, acts...)
	b.members[name] = append([]string(nil), members...)
	return nil
}

func (b *Bank) AddInput(i *Input) error {
	if b.taken(i.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, i.Name())
	}
	b.inputs[i.Name()] = i
	b.scan = append(b.scan, i)
	return nil
}

func (b *Bank) AddAnalog(a *Analog) error {
	if b.taken(a.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, a.Name())
	}
	b.analogs[a.Name()] = a
	return nil
}

// Actuator returns an output or gang by name.
func (b *Bank) Actuator(name string) (Actuator, error) {
	if o, ok := b.outputs[name]; ok {
		return o, nil
	}
	if g, ok := b.gangs[name]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
}

func (b *Bank) Sensor(name string) (*Input, error) {
	i, ok := b.inputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return i, nil
}

func (b *Bank) Analog(name string) (*Analog, error) {
	a, ok := b.analogs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return a, nil
}

// SampleInputs is the input scan run at the start of every loop iteration.
func (b *Bank) SampleInputs() {
	for _, i := range b.scan {
		i.Sample()
	}
}

// SafeShutdown drives every output to its safe level. Calling it repeatedly
// from any state converges to the same output image.
func (b *Bank) SafeShutdown() {
	b.SafeShutdownExcept()
}

// SafeShutdownExcept is SafeShutdown leaving the named outputs untouched.
// A gang name leaves all of its members untouched.
func (b *Bank) SafeShutdownExcept(keep ...string) {
	skip := make(map[string]bool, len(keep))
	for _, name := range keep {
		skip[name] = true
		for _, m := range b.members[name] {
			skip[m] = true
		}
	}
	for _, o := range b.order {
		if !skip[o.Name()] {
			o.Set(o.Safe())
		}
	}
}

// Levels reports the commanded output levels and sampled input levels by name.
func (b *Bank) Levels() (outputs, inputs map[string]bool) {
	outputs = make(map[string]bool, len(b.outputs))
	for name, o := range b.outputs {
		outputs[name] = o.Get()
	}
	inputs = make(map[string]bool, len(b.inputs))
	for name, i := range b.inputs {
		inputs[name] = i.Level()
	}
	return outputs, inputs
}

// Names lists every channel name, sorted.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.outputs)+len(b.gangs)+len(b.inputs)+len(b.analogs))
	for n := range b.outputs {
		names = append(names, n)
	}
	for n := range b.gangs {
		names = append(names, n)
	}
	for n := range b.inputs {
		names = append(names, n)
	}
	for n := range b.analogs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
