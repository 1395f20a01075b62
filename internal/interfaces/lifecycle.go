package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	Profile          string `json:"profile"`
	IOBackend        string `json:"io_backend"`
	IOStale          bool   `json:"io_stale"`
	StorageDriver    string `json:"storage_driver"`
	TelemetryDropped uint64 `json:"telemetry_dropped"`
	StreamDropped    uint64 `json:"stream_dropped"`
	Error            string `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Counters() *counter.Bank
	Snapshot() *engine.Snapshot
	Controls() []string
	Command(control string, action display.Action) error
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
