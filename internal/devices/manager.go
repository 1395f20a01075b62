// Package devices loads the rig's I/O profile and binds its channels to
// either the Modbus coupler or an in-process memory image.
package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/modbus"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/types"
	"go.uber.org/zap"
)

const (
	BackendModbus = "modbus"
	BackendMemory = "memory"
)

type Options struct {
	Backend      string
	Profile      string
	Address      string
	Timeout      time.Duration
	PollInterval time.Duration
}

type Manager struct {
	loader *ProfileLoader
	logger *zap.Logger

	profile   *types.IOProfile
	bank      *hw.Bank
	memory    *hw.MemoryImage
	image     *modbus.Image
	client    *modbus.Client
	poller    *modbus.Poller
	simulator *Simulator
}

func NewManager(searchPaths []string, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{loader: loader, logger: logger}, nil
}

// Open loads the profile and builds the channel bank on the chosen backend.
func (m *Manager) Open(opts Options, clock timer.Clock) (*hw.Bank, error) {
	profile, err := m.loader.Load(opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", opts.Profile, err)
	}
	m.profile = profile

	switch opts.Backend {
	case BackendModbus:
		coils, inputs, registers := profile.ImageSize()
		m.image = modbus.NewImage(uint8(profile.Coupler.UnitID), coils, inputs, registers)
		m.client = modbus.NewClient(opts.Address, opts.Timeout)
		m.poller = modbus.NewPoller(m.client, m.image, opts.PollInterval, m.logger)
		m.bank, err = BuildBank(profile, ModbusBinding{Image: m.image})

	case BackendMemory, "":
		m.memory = hw.NewMemoryImage()
		m.bank, err = BuildBank(profile, MemoryBinding{Image: m.memory})
		if err == nil {
			m.simulator, err = NewSimulator(profile, m.bank, m.memory, clock)
		}

	default:
		return nil, fmt.Errorf("unknown io backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build io bank: %w", err)
	}

	m.logger.Info("I/O profile loaded",
		zap.String("profile", profile.Profile.Name),
		zap.String("version", profile.Profile.Version),
		zap.String("backend", opts.Backend),
		zap.Int("outputs", len(profile.Outputs)),
		zap.Int("inputs", len(profile.Inputs)))

	return m.bank, nil
}

// Start connects to the coupler and starts the exchange poller. The first
// exchange is done synchronously so the loop starts on real input levels.
func (m *Manager) Start(ctx context.Context) error {
	if m.poller == nil {
		return nil
	}
	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect coupler %s: %w", m.client.Address(), err)
	}
	if err := m.image.Exchange(ctx, m.client, time.Now()); err != nil {
		return fmt.Errorf("initial exchange with %s failed: %w", m.client.Address(), err)
	}
	return m.poller.Start()
}

// StopAll stops the poller and disconnects the coupler.
func (m *Manager) StopAll(ctx context.Context) error {
	if m.poller == nil {
		return nil
	}
	m.poller.Stop()
	if err := m.client.Close(); err != nil {
		m.logger.Error("Failed to disconnect coupler", zap.Error(err))
		return err
	}
	return nil
}

func (m *Manager) Profile() *types.IOProfile { return m.profile }

func (m *Manager) Bank() *hw.Bank { return m.bank }

// Memory returns the memory image, or nil on the Modbus backend.
func (m *Manager) Memory() *hw.MemoryImage { return m.memory }

// Simulator returns the input simulator, or nil on the Modbus backend.
func (m *Manager) Simulator() *Simulator { return m.simulator }

// Stale reports whether the coupler image is out of date.
func (m *Manager) Stale() bool {
	if m.image == nil {
		return false
	}
	return m.image.Stale()
}
