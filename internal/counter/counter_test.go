package counter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBank(t *testing.T) (*Bank, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	b, err := NewBank(backend, zap.NewNop(), Defaults()...)
	require.NoError(t, err)
	return b, backend
}

func TestDefaultsAndUnknownCounter(t *testing.T) {
	b, _ := newTestBank(t)

	assert.Equal(t, int64(100), b.Value(UpperStrapFeed))
	assert.Equal(t, int64(0), b.Value(Longtime))
	assert.Len(t, b.Defs(), 4)
	assert.Equal(t, Longtime, b.Defs()[0].ID)

	_, err := b.Get("spindle")
	assert.ErrorIs(t, err, ErrUnknownCounter)
	_, err = b.Set("spindle", 1)
	assert.ErrorIs(t, err, ErrUnknownCounter)
	_, err = b.Adjust("spindle", 1)
	assert.ErrorIs(t, err, ErrUnknownCounter)
}

func TestNewBankRejectsBadDefs(t *testing.T) {
	_, err := NewBank(NewMemoryBackend(), zap.NewNop(), Def{ID: "a", Max: 1}, Def{ID: "a", Max: 1})
	assert.ErrorIs(t, err, ErrDuplicateCounter)

	_, err = NewBank(NewMemoryBackend(), zap.NewNop(), Def{ID: "a", Min: 5, Max: 1})
	assert.Error(t, err)
}

func TestAdjustClampsToRange(t *testing.T) {
	b, _ := newTestBank(t)

	v, err := b.Set(UpperStrapFeed, 345)
	require.NoError(t, err)
	assert.Equal(t, int64(345), v)

	v, err = b.Adjust(UpperStrapFeed, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(350), v)

	v, err = b.Adjust(UpperStrapFeed, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(350), v)

	v, err = b.Set(LowerStrapFeed, 3)
	require.NoError(t, err)
	v, err = b.Adjust(LowerStrapFeed, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = b.Set(Longtime, -7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestAdjustSaturatesOnOverflow(t *testing.T) {
	b, _ := newTestBank(t)

	_, err := b.Set(Longtime, math.MaxInt64)
	require.NoError(t, err)
	v, err := b.Increment(Longtime)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)
}

func TestFlushWritesOnlyChangedCounters(t *testing.T) {
	b, backend := newTestBank(t)
	ctx := context.Background()

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 0, backend.Saves(), "nothing dirty, nothing saved")

	_, _ = b.Increment(Shorttime)
	_, _ = b.Increment(Longtime)
	_, _ = b.Set(UpperStrapFeed, 100)
	assert.Equal(t, []ID{Longtime, Shorttime}, b.Dirty())

	require.NoError(t, b.Flush(ctx))
	assert.Empty(t, b.Dirty())

	stored, err := backend.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"longtime": 1, "shorttime": 1}, stored)
}

func TestFailedFlushKeepsCountersDirty(t *testing.T) {
	b, backend := newTestBank(t)
	ctx := context.Background()

	_, _ = b.Increment(Longtime)
	backend.FailWith(errors.New("disk full"))
	assert.Error(t, b.Flush(ctx))
	assert.Equal(t, []ID{Longtime}, b.Dirty())

	backend.FailWith(nil)
	require.NoError(t, b.Flush(ctx))
	assert.Empty(t, b.Dirty())
}

func TestLoadClampsAndIgnoresUnknown(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.SaveCounters(context.Background(), map[string]int64{
		"longtime":         1234,
		"upper_strap_feed": 900,
		"retired":          5,
	}))

	b, err := NewBank(backend, zap.NewNop(), Defaults()...)
	require.NoError(t, err)
	require.NoError(t, b.Load(context.Background()))

	assert.Equal(t, int64(1234), b.Value(Longtime))
	assert.Equal(t, int64(350), b.Value(UpperStrapFeed))
	assert.Empty(t, b.Dirty())
}

func TestRunFlushesOnShutdown(t *testing.T) {
	b, backend := newTestBank(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx, time.Hour)
		close(done)
	}()

	_, _ = b.Increment(Shorttime)
	cancel()
	<-done

	stored, err := backend.LoadCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored["shorttime"])
}
