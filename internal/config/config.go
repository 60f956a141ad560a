// Package config loads oracle configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the oracle needs to start.
type Config struct {
	// Ledger
	RPCEndpoint string // VRF_ORACLE_RPC_URL, required
	ProgramID   string // VRF_ORACLE_PROGRAM_ID, base58, required
	KeypairPath string // VRF_ORACLE_KEYPAIR, required

	// Proving tool
	VRFCLIPath       string // VRF_ORACLE_CLI_PATH, required
	VRFKeyPath       string // VRF_ORACLE_VRF_KEYPAIR, optional (keygen at startup otherwise)
	PipelineSelfTest bool   // VRF_ORACLE_SELF_TEST, default false

	// Timing
	PollInterval time.Duration // VRF_ORACLE_POLL_INTERVAL, default 3s
	RequestDelay time.Duration // VRF_ORACLE_REQUEST_DELAY, default 500ms
	Backoff      time.Duration // VRF_ORACLE_BACKOFF, default 4x poll interval
	CallTimeout  time.Duration // VRF_ORACLE_CALL_TIMEOUT, default 30s
	DedupWindow  time.Duration // VRF_ORACLE_DEDUP_WINDOW, default 10m

	// Operations
	StatePath   string // VRF_ORACLE_STATE_FILE, optional dedup snapshot path
	MetricsAddr string // VRF_ORACLE_METRICS_ADDR, optional; empty disables the listener
	LogLevel    string // VRF_ORACLE_LOG_LEVEL, default "info"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		RPCEndpoint:  os.Getenv("VRF_ORACLE_RPC_URL"),
		ProgramID:    os.Getenv("VRF_ORACLE_PROGRAM_ID"),
		KeypairPath:  os.Getenv("VRF_ORACLE_KEYPAIR"),
		VRFCLIPath:   os.Getenv("VRF_ORACLE_CLI_PATH"),
		VRFKeyPath:   os.Getenv("VRF_ORACLE_VRF_KEYPAIR"),
		StatePath:    os.Getenv("VRF_ORACLE_STATE_FILE"),
		MetricsAddr:  os.Getenv("VRF_ORACLE_METRICS_ADDR"),
		LogLevel:     envOr("VRF_ORACLE_LOG_LEVEL", "info"),
		PollInterval: 3 * time.Second,
		RequestDelay: 500 * time.Millisecond,
		CallTimeout:  30 * time.Second,
		DedupWindow:  10 * time.Minute,
	}

	var err error
	if cfg.PollInterval, err = envDuration("VRF_ORACLE_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = envDuration("VRF_ORACLE_REQUEST_DELAY", cfg.RequestDelay); err != nil {
		return nil, err
	}
	if cfg.Backoff, err = envDuration("VRF_ORACLE_BACKOFF", 4*cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = envDuration("VRF_ORACLE_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return nil, err
	}
	if cfg.DedupWindow, err = envDuration("VRF_ORACLE_DEDUP_WINDOW", cfg.DedupWindow); err != nil {
		return nil, err
	}
	if cfg.PipelineSelfTest, err = envBool("VRF_ORACLE_SELF_TEST", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("VRF_ORACLE_RPC_URL is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("VRF_ORACLE_PROGRAM_ID is required")
	}
	if c.KeypairPath == "" {
		return fmt.Errorf("VRF_ORACLE_KEYPAIR is required")
	}
	if c.VRFCLIPath == "" {
		return fmt.Errorf("VRF_ORACLE_CLI_PATH is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
