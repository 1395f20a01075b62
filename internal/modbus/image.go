package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Exchanger is the part of the client the image needs for one exchange.
type Exchanger interface {
	ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error)
	ReadInputRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error)
	WriteMultipleCoils(ctx context.Context, unitID uint8, startAddr uint16, coils []bool) error
}

// Image is the process image of one coupler: coils written by the loop,
// discrete inputs and input registers read from the coupler. The loop only
// touches memory; a Poller moves the image over the wire.
type Image struct {
	unitID uint8

	mu        sync.RWMutex
	coils     []bool
	discrete  []bool
	registers []uint16
	dirty     bool
	stale     bool
	lastSync  time.Time
}

// NewImage sizes the image for the highest addresses the rig uses.
func NewImage(unitID uint8, coils, discrete, registers int) *Image {
	return &Image{
		unitID:    unitID,
		coils:     make([]bool, coils),
		discrete:  make([]bool, discrete),
		registers: make([]uint16, registers),
		dirty:     coils > 0,
		stale:     true,
	}
}

// CoilWriter returns a write function for one coil address.
func (img *Image) CoilWriter(addr uint16) (func(bool), error) {
	if int(addr) >= len(img.coils) {
		return nil, fmt.Errorf("coil %d outside image of %d", addr, len(img.coils))
	}
	return func(on bool) {
		img.mu.Lock()
		if img.coils[addr] != on {
			img.coils[addr] = on
			img.dirty = true
		}
		img.mu.Unlock()
	}, nil
}

// InputReader returns a read function for one discrete input address.
func (img *Image) InputReader(addr uint16) (func() bool, error) {
	if int(addr) >= len(img.discrete) {
		return nil, fmt.Errorf("discrete input %d outside image of %d", addr, len(img.discrete))
	}
	return func() bool {
		img.mu.RLock()
		defer img.mu.RUnlock()
		return img.discrete[addr]
	}, nil
}

// RegisterReader returns a read function for one input register address.
func (img *Image) RegisterReader(addr uint16) (func() uint16, error) {
	if int(addr) >= len(img.registers) {
		return nil, fmt.Errorf("input register %d outside image of %d", addr, len(img.registers))
	}
	return func() uint16 {
		img.mu.RLock()
		defer img.mu.RUnlock()
		return img.registers[addr]
	}, nil
}

// Stale reports whether the last exchange failed, or none succeeded yet.
func (img *Image) Stale() bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.stale
}

func (img *Image) LastSync() time.Time {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.lastSync
}

// Coils returns a copy of the coil image.
func (img *Image) Coils() []bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	out := make([]bool, len(img.coils))
	copy(out, img.coils)
	return out
}

// Exchange reads inputs and registers and writes the coils if they changed.
// On failure the image keeps its last values and is marked stale.
func (img *Image) Exchange(ctx context.Context, c Exchanger, now time.Time) error {
	err := img.exchange(ctx, c)

	img.mu.Lock()
	img.stale = err != nil
	if err == nil {
		img.lastSync = now
	}
	img.mu.Unlock()
	return err
}

func (img *Image) exchange(ctx context.Context, c Exchanger) error {
	if n := len(img.discrete); n > 0 {
		inputs, err := c.ReadDiscreteInputs(ctx, img.unitID, 0, uint16(n))
		if err != nil {
			return fmt.Errorf("read discrete inputs: %w", err)
		}
		img.mu.Lock()
		copy(img.discrete, inputs)
		img.mu.Unlock()
	}

	if n := len(img.registers); n > 0 {
		regs, err := c.ReadInputRegisters(ctx, img.unitID, 0, uint16(n))
		if err != nil {
			return fmt.Errorf("read input registers: %w", err)
		}
		img.mu.Lock()
		copy(img.registers, regs)
		img.mu.Unlock()
	}

	img.mu.Lock()
	if !img.dirty {
		img.mu.Unlock()
		return nil
	}
	coils := make([]bool, len(img.coils))
	copy(coils, img.coils)
	img.dirty = false
	img.mu.Unlock()

	if err := c.WriteMultipleCoils(ctx, img.unitID, 0, coils); err != nil {
		img.mu.Lock()
		img.dirty = true
		img.mu.Unlock()
		return fmt.Errorf("write coils: %w", err)
	}
	return nil
}
