// Package counter keeps the rig's persistent counters in memory for the
// control loop and writes changes back to a storage backend in the
// background.
package counter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownCounter   = errors.New("unknown counter")
	ErrDuplicateCounter = errors.New("duplicate counter")
)

type ID string

const (
	Longtime       ID = "longtime"
	Shorttime      ID = "shorttime"
	UpperStrapFeed ID = "upper_strap_feed"
	LowerStrapFeed ID = "lower_strap_feed"
)

// Def declares one counter and the range its value is clamped to.
type Def struct {
	ID      ID    `json:"id"`
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Default int64 `json:"default"`
}

func (d Def) clamp(v int64) int64 {
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// Defaults returns the strapping rig's counters. Feed lengths are in mm.
func Defaults() []Def {
	return []Def{
		{ID: Longtime, Min: 0, Max: math.MaxInt64},
		{ID: Shorttime, Min: 0, Max: math.MaxInt64},
		{ID: UpperStrapFeed, Min: 0, Max: 350, Default: 100},
		{ID: LowerStrapFeed, Min: 0, Max: 350, Default: 100},
	}
}

// Backend persists counter values.
type Backend interface {
	LoadCounters(ctx context.Context) (map[string]int64, error)
	SaveCounters(ctx context.Context, values map[string]int64) error
}

// Bank is safe for concurrent use: the loop writes, the API reads and the
// flusher persists.
type Bank struct {
	logger  *zap.Logger
	backend Backend

	mu     sync.RWMutex
	defs   map[ID]Def
	order  []ID
	values map[ID]int64
	dirty  map[ID]bool
}

func NewBank(backend Backend, logger *zap.Logger, defs ...Def) (*Bank, error) {
	b := &Bank{
		logger:  logger,
		backend: backend,
		defs:    make(map[ID]Def, len(defs)),
		values:  make(map[ID]int64, len(defs)),
		dirty:   make(map[ID]bool),
	}
	for _, d := range defs {
		if _, ok := b.defs[d.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCounter, d.ID)
		}
		if d.Min > d.Max {
			return nil, fmt.Errorf("counter %s: min %d above max %d", d.ID, d.Min, d.Max)
		}
		b.defs[d.ID] = d
		b.order = append(b.order, d.ID)
		b.values[d.ID] = d.clamp(d.Default)
	}
	return b, nil
}

// Load replaces the cached values with the stored ones. Stored values are
// clamped to the current ranges; unknown ids are ignored.
func (b *Bank) Load(ctx context.Context) error {
	stored, err := b.backend.LoadCounters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load counters: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, v := range stored {
		def, ok := b.defs[ID(key)]
		if !ok {
			b.logger.Warn("Ignoring stored counter", zap.String("id", key))
			continue
		}
		b.values[def.ID] = def.clamp(v)
	}
	return nil
}

func (b *Bank) Get(id ID) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, id)
	}
	return v, nil
}

// Value is Get for ids the caller registered itself. Unknown ids read 0.
func (b *Bank) Value(id ID) int64 {
	v, _ := b.Get(id)
	return v
}

// Set stores v clamped to the counter's range and returns the stored value.
func (b *Bank) Set(id ID, v int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.defs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, id)
	}
	return b.store(def, def.clamp(v)), nil
}

func (b *Bank) Increment(id ID) (int64, error) {
	return b.Adjust(id, 1)
}

// Adjust adds delta and clamps the result to the counter's range.
func (b *Bank) Adjust(id ID, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.defs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, id)
	}
	cur := b.values[id]
	next := cur + delta
	switch {
	case delta > 0 && next < cur:
		next = def.Max
	case delta < 0 && next > cur:
		next = def.Min
	}
	return b.store(def, def.clamp(next)), nil
}

func (b *Bank) store(def Def, v int64) int64 {
	if b.values[def.ID] != v {
		b.values[def.ID] = v
		b.dirty[def.ID] = true
	}
	return v
}

// Values returns a copy of all counters.
func (b *Bank) Values() map[ID]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[ID]int64, len(b.values))
	for id, v := range b.values {
		out[id] = v
	}
	return out
}

// Defs returns the counter definitions in registration order.
func (b *Bank) Defs() []Def {
	out := make([]Def, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.defs[id])
	}
	return out
}

// Dirty returns the ids changed since the last flush, sorted.
func (b *Bank) Dirty() []ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ID, 0, len(b.dirty))
	for id := range b.dirty {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Flush writes the changed counters. On failure they stay dirty and are
// retried on the next flush.
func (b *Bank) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.dirty) == 0 {
		b.mu.Unlock()
		return nil
	}
	pending := make(map[string]int64, len(b.dirty))
	for id := range b.dirty {
		pending[string(id)] = b.values[id]
	}
	b.dirty = make(map[ID]bool)
	b.mu.Unlock()

	if err := b.backend.SaveCounters(ctx, pending); err != nil {
		b.mu.Lock()
		for key := range pending {
			b.dirty[ID(key)] = true
		}
		b.mu.Unlock()
		return fmt.Errorf("failed to save counters: %w", err)
	}
	return nil
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (b *Bank) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.Flush(final); err != nil {
				b.logger.Error("Final counter flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.logger.Warn("Counter flush failed", zap.Error(err))
			}
		}
	}
}
