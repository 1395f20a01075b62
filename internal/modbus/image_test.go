package modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoupler struct {
	inputs    []bool
	registers []uint16
	written   [][]bool
	failRead  error
	failWrite error
}

func (f *fakeCoupler) ReadDiscreteInputs(_ context.Context, _ uint8, _, quantity uint16) ([]bool, error) {
	if f.failRead != nil {
		return nil, f.failRead
	}
	return f.inputs[:quantity], nil
}

func (f *fakeCoupler) ReadInputRegisters(_ context.Context, _ uint8, _, quantity uint16) ([]uint16, error) {
	if f.failRead != nil {
		return nil, f.failRead
	}
	return f.registers[:quantity], nil
}

func (f *fakeCoupler) WriteMultipleCoils(_ context.Context, _ uint8, _ uint16, coils []bool) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.written = append(f.written, coils)
	return nil
}

func TestImageExchange(t *testing.T) {
	img := NewImage(1, 4, 3, 2)
	coupler := &fakeCoupler{inputs: []bool{false, true, true}, registers: []uint16{200, 7}}

	in1, err := img.InputReader(1)
	require.NoError(t, err)
	reg0, err := img.RegisterReader(0)
	require.NoError(t, err)
	coil2, err := img.CoilWriter(2)
	require.NoError(t, err)

	assert.True(t, img.Stale())
	now := time.Unix(100, 0)
	require.NoError(t, img.Exchange(context.Background(), coupler, now))
	assert.False(t, img.Stale())
	assert.Equal(t, now, img.LastSync())
	assert.True(t, in1())
	assert.Equal(t, uint16(200), reg0())
	require.Len(t, coupler.written, 1, "first exchange writes the initial coil image")

	require.NoError(t, img.Exchange(context.Background(), coupler, now))
	assert.Len(t, coupler.written, 1, "unchanged coils are not rewritten")

	coil2(true)
	coil2(true)
	require.NoError(t, img.Exchange(context.Background(), coupler, now))
	require.Len(t, coupler.written, 2)
	assert.Equal(t, []bool{false, false, true, false}, coupler.written[1])
}

func TestImageKeepsValuesWhenStale(t *testing.T) {
	img := NewImage(1, 1, 1, 0)
	coupler := &fakeCoupler{inputs: []bool{true}}
	require.NoError(t, img.Exchange(context.Background(), coupler, time.Now()))

	in0, _ := img.InputReader(0)
	coupler.failRead = errors.New("timeout")
	coupler.inputs = []bool{false}
	assert.Error(t, img.Exchange(context.Background(), coupler, time.Now()))
	assert.True(t, img.Stale())
	assert.True(t, in0(), "last value kept")
}

func TestImageRetriesFailedCoilWrite(t *testing.T) {
	img := NewImage(1, 2, 0, 0)
	coupler := &fakeCoupler{failWrite: errors.New("broken pipe")}
	assert.Error(t, img.Exchange(context.Background(), coupler, time.Now()))

	coupler.failWrite = nil
	require.NoError(t, img.Exchange(context.Background(), coupler, time.Now()))
	assert.Len(t, coupler.written, 1)
}

func TestImageAddressBounds(t *testing.T) {
	img := NewImage(1, 2, 2, 1)
	_, err := img.CoilWriter(2)
	assert.Error(t, err)
	_, err = img.InputReader(5)
	assert.Error(t, err)
	_, err = img.RegisterReader(1)
	assert.Error(t, err)
}
