package counter

import (
	"context"
	"sync"
)

// MemoryBackend keeps counters for the lifetime of the process.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]int64
	saves  int
	err    error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]int64)}
}

func (m *MemoryBackend) LoadCounters(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) SaveCounters(ctx context.Context, values map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for k, v := range values {
		m.values[k] = v
	}
	m.saves++
	return nil
}

// FailWith makes every following save return err. Nil clears it.
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Saves returns the number of successful saves.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
