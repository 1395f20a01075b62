package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/devices"
	"github.com/KevinKickass/OpenRigCore/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rig on the configured hardware",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the rig on a simulated process image",
	Long: `simulate runs the full controller against an in-memory process image.
Inputs follow outputs as described in the profile's simulation section.
The touch panel is disabled and telemetry goes to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.IO.Backend = devices.BackendMemory
		cfg.Display.Enabled = false
		cfg.Telemetry.Port = ""
		if keep, _ := cmd.Flags().GetBool("keep-storage"); !keep {
			cfg.Storage.Driver = "memory"
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	simulateCmd.Flags().Bool("keep-storage", false, "Persist counters to the configured storage")
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startErr := lifecycle.Start(ctx)
	if startErr != nil {
		logger.Error("Failed to start system", zap.Error(startErr))
	} else {
		logger.Info("OpenRigCore started successfully")

		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case <-lifecycle.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		if startErr == nil {
			return err
		}
	}
	if startErr != nil {
		return startErr
	}

	logger.Info("OpenRigCore stopped successfully")
	return nil
}
