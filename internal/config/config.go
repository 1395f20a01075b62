package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Emergency EmergencyConfig `mapstructure:"emergency"`
	IO        IOConfig        `mapstructure:"io"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Display   DisplayConfig   `mapstructure:"display"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Rig       RigConfig       `mapstructure:"rig"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoopConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// StartRunning starts the rig in Auto mode after homing, like the
	// firmware did after power-up.
	StartRunning bool `mapstructure:"start_running"`
}

// WatchdogConfig sets the retry budget and one timeout per fault condition.
// A zero timeout disables that watchdog.
type WatchdogConfig struct {
	Budget          int           `mapstructure:"budget"`
	MissingMaterial time.Duration `mapstructure:"missing_material"`
	JammedMaterial  time.Duration `mapstructure:"jammed_material"`
	StalledSequence time.Duration `mapstructure:"stalled_sequence"`
	OverTemperature time.Duration `mapstructure:"over_temperature"`
	// ForceGate confirms a stall only while the measured tension force is
	// below this value in N. Zero confirms every stall.
	ForceGate float64 `mapstructure:"force_gate"`
}

type EmergencyConfig struct {
	Input string `mapstructure:"input"`
	// Power sequencing of the electric cylinder (Festo ELGS-BS).
	LogicDelay      time.Duration `mapstructure:"logic_delay"`
	InitDelay       time.Duration `mapstructure:"init_delay"`
	DisconnectDelay time.Duration `mapstructure:"disconnect_delay"`
	HydraulicDelay  time.Duration `mapstructure:"hydraulic_delay"`
}

type IOConfig struct {
	Backend      string        `mapstructure:"backend"`
	Profile      string        `mapstructure:"profile"`
	SearchPaths  []string      `mapstructure:"search_paths"`
	Address      string        `mapstructure:"address"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type TelemetryConfig struct {
	// Port is the serial port of the log merger. Empty writes to stdout.
	Port   string `mapstructure:"port"`
	Baud   int    `mapstructure:"baud"`
	Buffer int    `mapstructure:"buffer"`
}

type DisplayConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Refresh time.Duration `mapstructure:"refresh"`
}

type StorageConfig struct {
	Driver        string         `mapstructure:"driver"`
	SQLitePath    string         `mapstructure:"sqlite_path"`
	Database      DatabaseConfig `mapstructure:"database"`
	FlushInterval time.Duration  `mapstructure:"flush_interval"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string           `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration    `mapstructure:"access_token_ttl"`
	Operators      []OperatorConfig `mapstructure:"operators"`
}

// OperatorConfig is one operator account. PasswordHash is an argon2id hash
// as printed by "rigd hash-password".
type OperatorConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type RigConfig struct {
	HomeTimeout         time.Duration `mapstructure:"home_timeout"`
	MotorOutputTimeout  time.Duration `mapstructure:"motor_output_timeout"`
	DisplaySleepTimeout time.Duration `mapstructure:"display_sleep_timeout"`
	ForceHold           time.Duration `mapstructure:"force_hold"`
	CounterResetHold    time.Duration `mapstructure:"counter_reset_hold"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("loop.interval", "5ms")
	v.SetDefault("loop.start_running", true)

	v.SetDefault("watchdog.budget", 3)
	v.SetDefault("watchdog.missing_material", "20s")
	v.SetDefault("watchdog.jammed_material", "5s")
	v.SetDefault("watchdog.stalled_sequence", "25s")
	v.SetDefault("watchdog.over_temperature", "2s")

	v.SetDefault("emergency.input", "emergency_stop")
	v.SetDefault("emergency.logic_delay", "200ms")
	v.SetDefault("emergency.init_delay", "8s")
	v.SetDefault("emergency.disconnect_delay", "200ms")
	v.SetDefault("emergency.hydraulic_delay", "1500ms")

	v.SetDefault("io.backend", "modbus")
	v.SetDefault("io.profile", "strapping-rig")
	v.SetDefault("io.search_paths", []string{"./configs"})
	v.SetDefault("io.address", "192.168.1.10:502")
	v.SetDefault("io.timeout", "1s")
	v.SetDefault("io.poll_interval", "10ms")

	v.SetDefault("telemetry.baud", 115200)
	v.SetDefault("telemetry.buffer", 256)

	v.SetDefault("display.baud", 9600)
	v.SetDefault("display.refresh", "100ms")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "rig.db")
	v.SetDefault("storage.flush_interval", "5s")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.max_connections", 4)

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "RIG_JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "12h")

	v.SetDefault("rig.home_timeout", "30s")
	v.SetDefault("rig.motor_output_timeout", "72h")
	v.SetDefault("rig.display_sleep_timeout", "71h56m40s")
	v.SetDefault("rig.force_hold", "5s")
	v.SetDefault("rig.counter_reset_hold", "3s")
}

// Default returns the configuration without reading a file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults decode without error.
	_ = v.Unmarshal(&config)
	return &config
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	// Environment Variables mit Prefix RIG_, z.B. RIG_IO_BACKEND
	v.SetEnvPrefix("RIG")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the loop cannot run with.
func (c *Config) Validate() error {
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive, got %s", c.Loop.Interval)
	}
	if c.Watchdog.Budget < 1 {
		return fmt.Errorf("watchdog.budget must be at least 1, got %d", c.Watchdog.Budget)
	}
	switch c.IO.Backend {
	case "modbus", "memory":
	default:
		return fmt.Errorf("unknown io.backend %q", c.IO.Backend)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "RIG_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}
