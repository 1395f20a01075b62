package hw

import "sync"

// MemoryImage is an in-process I/O image used for simulation and tests.
// It is safe for concurrent use so a simulator goroutine or an API handler
// can drive inputs while the loop runs.
type MemoryImage struct {
	mu      sync.RWMutex
	outputs map[string]bool
	inputs  map[string]bool
	analogs map[string]uint16
}

func NewMemoryImage() *MemoryImage {
	return &MemoryImage{
		outputs: make(map[string]bool),
		inputs:  make(map[string]bool),
		analogs: make(map[string]uint16),
	}
}

func (m *MemoryImage) Writer(name string) WriteFunc {
	return func(on bool) {
		m.mu.Lock()
		m.outputs[name] = on
		m.mu.Unlock()
	}
}

func (m *MemoryImage) Reader(name string) ReadFunc {
	return func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.inputs[name]
	}
}

func (m *MemoryImage) AnalogReader(name string) func() uint16 {
	return func() uint16 {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.analogs[name]
	}
}

func (m *MemoryImage) SetInput(name string, on bool) {
	m.mu.Lock()
	m.inputs[name] = on
	m.mu.Unlock()
}

func (m *MemoryImage) SetAnalog(name string, raw uint16) {
	m.mu.Lock()
	m.analogs[name] = raw
	m.mu.Unlock()
}

func (m *MemoryImage) Output(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outputs[name]
}

func (m *MemoryImage) Input(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputs[name]
}

// Outputs returns a copy of the output image.
func (m *MemoryImage) Outputs() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.outputs))
	for k, v := range m.outputs {
		out[k] = v
	}
	return out
}
