// Package hw defines the actuator and sensor contracts the control loop
// drives, plus a Bank that owns every channel of a rig.
package hw

// Actuator is a digital output channel.
type Actuator interface {
	Set(on bool)
	Get() bool
	Toggle()
}

// Sensor is a digitized input. Edge flags latch until read.
type Sensor interface {
	Level() bool
	RisingEdge() bool
	FallingEdge() bool
}

// WriteFunc pushes an output level to the process image.
type WriteFunc func(on bool)

// ReadFunc samples an input level from the process image.
type ReadFunc func() bool

// Output is a single digital output. The commanded level is kept locally so
// Get never has to read back from the I/O coupler.
type Output struct {
	name  string
	safe  bool
	state bool
	write WriteFunc
}

func NewOutput(name string, safe bool, write WriteFunc) *Output {
	o := &Output{name: name, safe: safe, state: safe, write: write}
	o.write(safe)
	return o
}

func (o *Output) Name() string { return o.name }

// Safe returns the level the output takes on safe shutdown.
func (o *Output) Safe() bool { return o.safe }

func (o *Output) Set(on bool) {
	o.state = on
	o.write(on)
}

func (o *Output) Get() bool { return o.state }

func (o *Output) Toggle() { o.Set(!o.state) }

// Gang drives several outputs as one channel, like a bit-masked write to a
// group of pins. Get reports true only when every member is on.
type Gang struct {
	name    string
	members []Actuator
}

func NewGang(name string, members ...Actuator) *Gang {
	return &Gang{name: name, members: members}
}

func (g *Gang) Name() string { return g.name }

func (g *Gang) Set(on bool) {
	for _, m := range g.members {
		m.Set(on)
	}
}

func (g *Gang) Get() bool {
	if len(g.members) == 0 {
		return false
	}
	for _, m := range g.members {
		if !m.Get() {
			return false
		}
	}
	return true
}

func (g *Gang) Toggle() { g.Set(!g.Get()) }

// Input is a digital input sampled once per loop iteration.
type Input struct {
	name    string
	read    ReadFunc
	invert  bool
	level   bool
	primed  bool
	rising  bool
	falling bool
}

func NewInput(name string, invert bool, read ReadFunc) *Input {
	return &Input{name: name, invert: invert, read: read}
}

func (i *Input) Name() string { return i.name }

// Sample reads the current level and latches edges. The first sample only
// establishes the level.
func (i *Input) Sample() {
	level := i.read() != i.invert
	if i.primed {
		if level && !i.level {
			i.rising = true
		}
		if !level && i.level {
			i.falling = true
		}
	}
	i.level = level
	i.primed = true
}

func (i *Input) Level() bool { return i.level }

func (i *Input) RisingEdge() bool {
	r := i.rising
	i.rising = false
	return r
}

func (i *Input) FallingEdge() bool {
	f := i.falling
	i.falling = false
	return f
}

// Analog is a scaled analog input: value = raw*Scale + Offset.
type Analog struct {
	name   string
	read   func() uint16
	scale  float64
	offset float64
}

func NewAnalog(name string, scale, offset float64, read func() uint16) *Analog {
	return &Analog{name: name, read: read, scale: scale, offset: offset}
}

func (a *Analog) Name() string { return a.name }

func (a *Analog) Raw() uint16 { return a.read() }

func (a *Analog) Value() float64 {
	return float64(a.read())*a.scale + a.offset
}
