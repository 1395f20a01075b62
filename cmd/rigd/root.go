package main

import (
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var flags = viper.New()

var rootCmd = &cobra.Command{
	Use:   "rigd",
	Short: "Strapping endurance rig controller",
	Long: `rigd runs the strapping endurance rig: the cycle sequence, the fault
watchdogs, the emergency stop and the operator panel, plus a REST, websocket
and gRPC interface for monitoring.

The configuration file is taken from --config or RIG_CONFIG. Every setting
can be overridden with a RIG_ environment variable, e.g. RIG_IO_BACKEND.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "configs/rig.yaml", "Configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Development logging")

	_ = flags.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = flags.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = flags.BindEnv("config", "RIG_CONFIG")

	rootCmd.AddCommand(runCmd, simulateCmd, countersCmd, mergeCmd, watchCmd, hashPasswordCmd, portsCmd)
}

func newLogger() (*zap.Logger, error) {
	if flags.GetBool("debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig() (*config.Config, error) {
	path := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
