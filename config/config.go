package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global localnet configuration.
type Config struct {
	// RootDir is the base directory for persistent data (registry, node data dirs).
	// Env: LOCALNET_ROOT_DIR. Default: $XDG_DATA_HOME/localnet.
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// RunDir is the base directory for service definitions and PID files.
	// Env: LOCALNET_RUN_DIR. Default: {RootDir}/run.
	RunDir string `json:"run_dir" mapstructure:"run_dir"`
	// LogDir is the base directory for node and faucet logs.
	// Env: LOCALNET_LOG_DIR. Default: {RootDir}/logs.
	LogDir string `json:"log_dir" mapstructure:"log_dir"`
	// StopTimeoutSeconds is the SIGTERM→SIGKILL window when stopping a node.
	// Default: 10.
	StopTimeoutSeconds int `json:"stop_timeout_seconds" mapstructure:"stop_timeout_seconds"`
	// ValidationTimeoutSeconds bounds the health probe of a freshly started node.
	// Default: 30.
	ValidationTimeoutSeconds int `json:"validation_timeout_seconds" mapstructure:"validation_timeout_seconds"`
	// PoolSize caps how many services kill tears down at once.
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// MetricsFile, when set, receives orchestration metrics in the
	// node-exporter textfile format after every command.
	MetricsFile string `json:"metrics_file" mapstructure:"metrics_file"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config rooted at the per-user data directory.
func DefaultConfig() *Config {
	return &Config{
		RootDir:                  defaultRootDir(),
		StopTimeoutSeconds:       10, //nolint:mnd
		ValidationTimeoutSeconds: 30, //nolint:mnd
		PoolSize:                 runtime.NumCPU(),
		Log: coretypes.ServerLogConfig{
			Level: "info",
		},
	}
}

// Normalize fills zero values with defaults and derives RunDir/LogDir from RootDir.
func (c *Config) Normalize() {
	if c.RootDir == "" {
		c.RootDir = defaultRootDir()
	}
	if c.RunDir == "" {
		c.RunDir = filepath.Join(c.RootDir, "run")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.RootDir, "logs")
	}
	if c.PoolSize <= 0 {
		c.PoolSize = runtime.NumCPU()
	}
	if c.StopTimeoutSeconds <= 0 {
		c.StopTimeoutSeconds = 10 //nolint:mnd
	}
	if c.ValidationTimeoutSeconds <= 0 {
		c.ValidationTimeoutSeconds = 30 //nolint:mnd
	}
}

// StopTimeout returns StopTimeoutSeconds as a duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// ValidationTimeout returns ValidationTimeoutSeconds as a duration.
func (c *Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutSeconds) * time.Second
}

func defaultRootDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "localnet")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "localnet")
	}
	return filepath.Join(os.TempDir(), "localnet")
}
