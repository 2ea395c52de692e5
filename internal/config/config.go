// Package config handles configuration loading and validation for proctord.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the fusion pipeline plus the ambient
// settings needed to run the daemon (listen address, database path, log
// level). The fusion tunables mirror spec.md §6 exactly; field names are
// kept close to the table there so the mapping is obvious on inspection.
type Config struct {
	// Server
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
	LogLevel   string `toml:"log_level"`

	// Smoothing (component B)
	SmoothWindow int     `toml:"smooth_w"`
	SmoothRatio  float64 `toml:"smooth_rho"`

	// Session history (component C)
	HistoryCapacity int `toml:"hist_h"`

	// Fusion evaluation cadence and cooldowns (component D)
	EvalIntervalSeconds  float64 `toml:"t_eval_seconds"`
	GhostCooldownSeconds float64 `toml:"ghost_cooldown_seconds"`
	FaceCooldownSeconds  float64 `toml:"face_cooldown_seconds"`

	// Scenario 1 thresholds: hands absent
	Scenario1PrimaryScreen int `toml:"s1_r_screen"`
	Scenario1PrimaryAbsent int `toml:"s1_r_absent"`
	Scenario1ConfirmScreen int `toml:"s1_l_screen"`
	Scenario1ConfirmAbsent int `toml:"s1_l_absent"`

	// Scenario 2 thresholds: hands idle
	Scenario2PrimaryScreen    int `toml:"s2_r_screen"`
	Scenario2PrimaryTypingMax int `toml:"s2_r_typing_max"`
	Scenario2PrimaryIdle      int `toml:"s2_r_idle"`
	Scenario2ConfirmScreen    int `toml:"s2_l_screen"`
	Scenario2ConfirmTypingMax int `toml:"s2_l_typing_max"`

	// Detector adapters (component A)
	TypingConfidenceThreshold float64 `toml:"tau_typing"`
	ScreenConfirmFrames       int     `toml:"screen_confirm_frames"`

	// Session manager (component E)
	StatusEvery        int     `toml:"status_every"`
	IdleTimeoutSeconds float64 `toml:"idle_timeout_seconds"`

	// Ingress (component F)
	InboundQueueCapacity int `toml:"inbound_queue_capacity"`
}

// Default returns the configuration with the defaults named in spec.md §6.
func Default() *Config {
	return &Config{
		ListenAddr: ":8088",
		DBPath:     "proctord.db",
		LogLevel:   "info",

		SmoothWindow: 20,
		SmoothRatio:  0.40,

		HistoryCapacity: 40,

		EvalIntervalSeconds:  2.0,
		GhostCooldownSeconds: 8.0,
		FaceCooldownSeconds:  5.0,

		Scenario1PrimaryScreen: 12,
		Scenario1PrimaryAbsent: 14,
		Scenario1ConfirmScreen: 18,
		Scenario1ConfirmAbsent: 21,

		Scenario2PrimaryScreen:    12,
		Scenario2PrimaryTypingMax: 4,
		Scenario2PrimaryIdle:      14,
		Scenario2ConfirmScreen:    18,
		Scenario2ConfirmTypingMax: 6,

		TypingConfidenceThreshold: 0.40,
		ScreenConfirmFrames:       3,

		StatusEvery:        50,
		IdleTimeoutSeconds: 600,

		InboundQueueCapacity: 8,
	}
}

// Load reads configuration from path, falling back to defaults for any
// field TOML doesn't set, then applies PROCTORD_* environment overrides,
// then validates. If path doesn't exist, pure defaults (plus env) are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets PROCTORD_SMOOTH_W-style env vars win over the
// file, using explicit os.Getenv checks rather than an envconfig
// struct-tag library.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROCTORD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PROCTORD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PROCTORD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envInt("PROCTORD_SMOOTH_W"); ok {
		cfg.SmoothWindow = v
	}
	if v, ok := envFloat("PROCTORD_SMOOTH_RHO"); ok {
		cfg.SmoothRatio = v
	}
	if v, ok := envInt("PROCTORD_HIST_H"); ok {
		cfg.HistoryCapacity = v
	}
	if v, ok := envFloat("PROCTORD_T_EVAL_SECONDS"); ok {
		cfg.EvalIntervalSeconds = v
	}
	if v, ok := envFloat("PROCTORD_GHOST_COOLDOWN_SECONDS"); ok {
		cfg.GhostCooldownSeconds = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.SmoothWindow < 1 {
		return errors.New("config: smooth_w must be at least 1")
	}
	if c.SmoothRatio <= 0 || c.SmoothRatio > 1 {
		return errors.New("config: smooth_rho must be in (0, 1]")
	}
	if c.HistoryCapacity < 1 {
		return errors.New("config: hist_h must be at least 1")
	}
	if c.EvalIntervalSeconds <= 0 {
		return errors.New("config: t_eval_seconds must be positive")
	}
	if c.GhostCooldownSeconds < 0 {
		return errors.New("config: ghost_cooldown_seconds must be non-negative")
	}
	if c.InboundQueueCapacity < 1 {
		return errors.New("config: inbound_queue_capacity must be at least 1")
	}
	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	return nil
}

// EvalInterval returns T_EVAL as a time.Duration.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.EvalIntervalSeconds * float64(time.Second))
}

// GhostCooldown returns Δ_GHOST as a time.Duration.
func (c *Config) GhostCooldown() time.Duration {
	return time.Duration(c.GhostCooldownSeconds * float64(time.Second))
}

// FaceCooldown returns the per-kind cooldown for face-based violations.
func (c *Config) FaceCooldown() time.Duration {
	return time.Duration(c.FaceCooldownSeconds * float64(time.Second))
}

// IdleTimeout returns the session inactivity reclaim timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds * float64(time.Second))
}
