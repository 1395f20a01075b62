package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/api/rest"
	"github.com/KevinKickass/OpenRigCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/devices"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/display/nextion"
	"github.com/KevinKickass/OpenRigCore/internal/interfaces"
	"github.com/KevinKickass/OpenRigCore/internal/rig"
	"github.com/KevinKickass/OpenRigCore/internal/serialport"
	"github.com/KevinKickass/OpenRigCore/internal/storage"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/streaming"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// snapshotInterval is how often an unchanged snapshot is still streamed.
const snapshotInterval = time.Second

var errNotStarted = errors.New("rig not started")

// LifecycleManager builds the rig from the configuration, runs the control
// loop and the API servers, and tears everything down in reverse order.
type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger
	clock  timer.Clock

	deviceManager *devices.Manager
	counters      *counter.Bank
	closeStore    func() error
	telemetry     *telemetry.Writer
	telemetryPort io.Closer
	link          *nextion.Link
	streamer      *streaming.EventStreamer
	rig           *rig.Rig

	authService *auth.AuthService
	wsHub       *websocket.Hub
	restServer  *rest.Server
	grpcServer  *grpc.Server

	cancel  context.CancelFunc
	workers sync.WaitGroup
	loop    chan struct{}

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	deviceManager, err := devices.NewManager(cfg.IO.SearchPaths, logger.Named("devices"))
	if err != nil {
		return nil, fmt.Errorf("failed to create device manager: %w", err)
	}

	authService, err := auth.NewAuthService(cfg.Auth, logger.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}

	clock := timer.SystemClock{}
	return &LifecycleManager{
		config:        cfg,
		logger:        logger,
		clock:         clock,
		deviceManager: deviceManager,
		streamer:      streaming.NewEventStreamer(clock.Now),
		authService:   authService,
		currentState:  StateInitializing,
		shutdownChan:  make(chan struct{}),
	}, nil
}

// Start brings the rig up: storage, telemetry, I/O, homing, control loop
// and finally the API servers. On error the parts already started are
// left for Shutdown.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenRigCore",
		zap.String("io_backend", lm.config.IO.Backend),
		zap.String("profile", lm.config.IO.Profile))

	runCtx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	if err := lm.openCounters(ctx); err != nil {
		return lm.fail(err)
	}
	lm.workers.Add(1)
	go func() {
		defer lm.workers.Done()
		lm.counters.Run(runCtx, lm.config.Storage.FlushInterval)
	}()

	sink, err := lm.openTelemetry()
	if err != nil {
		return lm.fail(err)
	}

	bank, err := lm.deviceManager.Open(devices.Options{
		Backend:      lm.config.IO.Backend,
		Profile:      lm.config.IO.Profile,
		Address:      lm.config.IO.Address,
		Timeout:      lm.config.IO.Timeout,
		PollInterval: lm.config.IO.PollInterval,
	}, lm.clock)
	if err != nil {
		return lm.fail(err)
	}
	if err := lm.deviceManager.Start(ctx); err != nil {
		return lm.fail(err)
	}

	var panel display.Panel
	var panelPort serialport.Port
	if lm.config.Display.Enabled {
		panelPort, err = serialport.Open(lm.config.Display.Port, lm.config.Display.Baud)
		if err != nil {
			return lm.fail(fmt.Errorf("touch panel: %w", err))
		}
		panel = nextion.NewPanel(panelPort)
	}

	r, err := rig.New(rig.Deps{
		Bank:     bank,
		Counters: lm.counters,
		Sink:     sink,
		Panel:    panel,
		Clock:    lm.clock,
		Settings: rig.SettingsFromConfig(lm.config),
		Logger:   lm.logger.Named("rig"),
	})
	if err != nil {
		if panelPort != nil {
			_ = panelPort.Close()
		}
		return lm.fail(fmt.Errorf("failed to assemble rig: %w", err))
	}
	lm.rig = r

	if panelPort != nil {
		lm.link = nextion.NewLink(panelPort, rig.PanelComponents(), r.Dispatcher, lm.logger.Named("nextion"))
		lm.link.Start(runCtx)
	}

	var refresh func()
	if sim := lm.deviceManager.Simulator(); sim != nil {
		r.Engine.AddPeripheral(sim)
		refresh = sim.Service
	}
	r.Engine.OnSnapshot(lm.streamer.SnapshotHook(snapshotInterval))

	lm.setState(StateHoming)
	if err := r.Machine.Home(ctx, refresh); err != nil {
		return lm.fail(fmt.Errorf("homing failed: %w", err))
	}
	if err := r.Start(ctx, lm.config.Loop.StartRunning); err != nil {
		return lm.fail(err)
	}

	lm.loop = make(chan struct{})
	go func() {
		defer close(lm.loop)
		if err := r.Engine.Run(runCtx, lm.config.Loop.Interval); err != nil {
			lm.logger.Error("Control loop failed", zap.Error(err))
		}
	}()

	lm.startHub(runCtx)

	if err := lm.startGRPCServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start gRPC: %w", err))
	}

	if err := lm.startRESTServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("auth_enabled", lm.authService.Enabled()))

	return nil
}

func (lm *LifecycleManager) openCounters(ctx context.Context) error {
	store, err := storage.Open(ctx, lm.config.Storage)
	if err != nil {
		return err
	}
	lm.closeStore = store.Close

	bank, err := counter.NewBank(store, lm.logger.Named("counters"), counter.Defaults()...)
	if err != nil {
		return err
	}
	if err := bank.Load(ctx); err != nil {
		return err
	}
	lm.counters = bank

	lm.logger.Info("Counters loaded",
		zap.String("driver", lm.config.Storage.Driver),
		zap.Any("values", bank.Values()))
	return nil
}

// openTelemetry starts the line writer and returns the sink the rig emits
// to: the telemetry line plus the live event stream.
func (lm *LifecycleManager) openTelemetry() (telemetry.Sink, error) {
	var out io.Writer = os.Stdout
	if lm.config.Telemetry.Port != "" {
		port, err := serialport.Open(lm.config.Telemetry.Port, lm.config.Telemetry.Baud)
		if err != nil {
			return nil, fmt.Errorf("telemetry line: %w", err)
		}
		out, lm.telemetryPort = port, port
	}

	lm.telemetry = telemetry.NewWriter(out, lm.config.Telemetry.Buffer, lm.logger.Named("telemetry"))
	lm.telemetry.Start()

	return telemetry.Fanout{lm.telemetry, lm.streamer}, nil
}

func (lm *LifecycleManager) startHub(ctx context.Context) {
	lm.wsHub = websocket.NewHub(lm.logger.Named("websocket"), lm.authService)
	lm.wsHub.SetCommandHandler(func(control, action string) error {
		a, err := display.ParseAction(action)
		if err != nil {
			return err
		}
		return lm.Command(control, a)
	})

	events := lm.streamer.Subscribe()
	lm.workers.Add(2)
	go func() {
		defer lm.workers.Done()
		lm.wsHub.Run(ctx)
	}()
	go func() {
		defer lm.workers.Done()
		defer lm.streamer.Unsubscribe(events)
		lm.wsHub.Forward(ctx, events)
	}()
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	streaming.RegisterTelemetryServer(lm.grpcServer, streaming.NewTelemetryService(lm.streamer))

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", "Telemetry"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm, lm.logger.Named("rest"), lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

// Shutdown stops the servers, then the loop, then powers the rig down and
// closes storage and serial links.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished, including a shutdown
// requested over the API.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
		cancel()
	}

	if lm.grpcServer != nil {
		lm.logger.Info("Stopping gRPC server")
		stopped := make(chan struct{})
		go func() {
			lm.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			lm.grpcServer.Stop()
		}
	}

	if lm.cancel != nil {
		lm.cancel()
	}
	if lm.loop != nil {
		<-lm.loop
	}

	if lm.rig != nil {
		if err := lm.rig.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rig power down failed: %w", err))
		}
	}

	if lm.link != nil {
		if err := lm.link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("touch panel close failed: %w", err))
		}
	}

	if err := lm.deviceManager.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("device manager stop failed: %w", err))
	}

	// Counter flusher and websocket workers end with the run context.
	lm.workers.Wait()

	if lm.telemetry != nil {
		lm.telemetry.Stop()
	}
	if lm.telemetryPort != nil {
		if err := lm.telemetryPort.Close(); err != nil {
			errs = append(errs, fmt.Errorf("telemetry line close failed: %w", err))
		}
	}
	if lm.closeStore != nil {
		if err := lm.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("storage close failed: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("Startup failed", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastErr = err
	lm.stateMu.Unlock()
	return err
}

// State returns the lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:         lm.currentState.String(),
		Profile:       lm.config.IO.Profile,
		IOBackend:     lm.config.IO.Backend,
		IOStale:       lm.deviceManager.Stale(),
		StorageDriver: lm.config.Storage.Driver,
		StreamDropped: lm.streamer.Dropped(),
	}
	if p := lm.deviceManager.Profile(); p != nil {
		status.Profile = p.Profile.Name + " " + p.Profile.Version
	}
	if lm.telemetry != nil {
		status.TelemetryDropped = lm.telemetry.Dropped()
	}
	if lm.lastErr != nil {
		status.Error = lm.lastErr.Error()
	}
	return status
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Counters() *counter.Bank {
	return lm.counters
}

// Snapshot returns the last state published by the loop, or nil before
// the rig is assembled.
func (lm *LifecycleManager) Snapshot() *engine.Snapshot {
	if lm.rig == nil {
		return nil
	}
	return lm.rig.Engine.Snapshot()
}

func (lm *LifecycleManager) Controls() []string {
	if lm.rig == nil {
		return nil
	}
	return lm.rig.Dispatcher.Controls()
}

// Command queues an operator control for the next loop iteration.
func (lm *LifecycleManager) Command(control string, action display.Action) error {
	if lm.rig == nil {
		return errNotStarted
	}
	return lm.rig.Command(control, action)
}

// Streamer returns the live event stream.
func (lm *LifecycleManager) Streamer() *streaming.EventStreamer {
	return lm.streamer
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
