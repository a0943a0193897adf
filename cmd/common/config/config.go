// Package config provides configuration loading for mixdeck.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gigurra/mixdeck/cmd/common"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
)

// ErrAlreadyRunning is returned by LockInstance when another process holds
// the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Config represents the mixdeck configuration file structure.
type Config struct {
	Mixer         *MixerConfig        `json:"mixer,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty"`
	Serve         *ServeConfig        `json:"serve,omitempty"`
}

// MixerConfig holds engine timings and limits.
type MixerConfig struct {
	FadeMillis    int    `json:"fade_millis,omitempty"`
	SettleMillis  int    `json:"settle_millis,omitempty"`
	AdvanceMillis int    `json:"advance_millis,omitempty"`
	MaxFileSize   string `json:"max_file_size,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
}

// NotificationConfig holds settings for OS notifications.
type NotificationConfig struct {
	Enabled         bool   `json:"enabled"`
	MinSeverity     string `json:"min_severity,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
}

// ServeConfig holds defaults for the browser control surface.
type ServeConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mixer: &MixerConfig{
			FadeMillis:    300,
			SettleMillis:  100,
			AdvanceMillis: 300,
			MaxFileSize:   "100MB",
			SampleRate:    44100,
		},
		Notifications: &NotificationConfig{
			Enabled:         false,
			MinSeverity:     string(mixer.SeverityWarning),
			CooldownSeconds: 2,
		},
		Serve: &ServeConfig{
			Bind: "127.0.0.1",
			Port: 8765,
		},
	}
}

// ConfigDir returns the mixdeck config directory (~/.mixdeck).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mixdeck")
}

// ConfigPath returns the path to the config file (~/.mixdeck/config.json).
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads the config from ~/.mixdeck/config.json and applies MIXDECK_*
// overrides from the environment or a .env file in the working directory.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	config, err := loadFile(ConfigPath())
	if err != nil {
		return nil, err
	}
	// Existing environment variables win over .env entries.
	_ = godotenv.Load()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Apply defaults for missing sections and fields
	def := DefaultConfig()
	if config.Mixer == nil {
		config.Mixer = def.Mixer
	} else {
		m := config.Mixer
		if m.FadeMillis == 0 {
			m.FadeMillis = def.Mixer.FadeMillis
		}
		if m.SettleMillis == 0 {
			m.SettleMillis = def.Mixer.SettleMillis
		}
		if m.AdvanceMillis == 0 {
			m.AdvanceMillis = def.Mixer.AdvanceMillis
		}
		if m.MaxFileSize == "" {
			m.MaxFileSize = def.Mixer.MaxFileSize
		}
		if m.SampleRate == 0 {
			m.SampleRate = def.Mixer.SampleRate
		}
	}
	if config.Notifications == nil {
		config.Notifications = def.Notifications
	} else {
		if config.Notifications.MinSeverity == "" {
			config.Notifications.MinSeverity = def.Notifications.MinSeverity
		}
		if config.Notifications.CooldownSeconds == 0 {
			config.Notifications.CooldownSeconds = def.Notifications.CooldownSeconds
		}
	}
	if config.Serve == nil {
		config.Serve = def.Serve
	} else {
		if config.Serve.Bind == "" {
			config.Serve.Bind = def.Serve.Bind
		}
		if config.Serve.Port == 0 {
			config.Serve.Port = def.Serve.Port
		}
	}

	return &config, nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv("MIXDECK_BIND"); v != "" {
		c.Serve.Bind = v
	}
	if v := os.Getenv("MIXDECK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("MIXDECK_PORT: invalid port %q", v)
		}
		c.Serve.Port = port
	}
	if v := os.Getenv("MIXDECK_MAX_FILE_SIZE"); v != "" {
		if _, err := common.ParseSize(v); err != nil {
			return fmt.Errorf("MIXDECK_MAX_FILE_SIZE: %w", err)
		}
		c.Mixer.MaxFileSize = v
	}
	if v := os.Getenv("MIXDECK_SAMPLE_RATE"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return fmt.Errorf("MIXDECK_SAMPLE_RATE: invalid rate %q", v)
		}
		c.Mixer.SampleRate = rate
	}
	return nil
}

// Save saves the config to ~/.mixdeck/config.json.
func Save(config *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// LockInstance takes a non-blocking file lock named name in ConfigDir().
// The caller releases it with Unlock.
func LockInstance(name string) (*flock.Flock, error) {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, name+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	return lock, nil
}

// Options converts the mixer section into session options.
func (c *MixerConfig) Options() (mixer.Options, error) {
	opts := mixer.DefaultOptions()
	if c == nil {
		return opts, nil
	}
	if c.FadeMillis > 0 {
		opts.FadeDuration = time.Duration(c.FadeMillis) * time.Millisecond
	}
	if c.SettleMillis > 0 {
		opts.SettleDelay = time.Duration(c.SettleMillis) * time.Millisecond
	}
	if c.AdvanceMillis > 0 {
		opts.AdvanceDelay = time.Duration(c.AdvanceMillis) * time.Millisecond
	}
	if c.MaxFileSize != "" {
		n, err := common.ParseSize(c.MaxFileSize)
		if err != nil {
			return opts, fmt.Errorf("mixer.max_file_size: %w", err)
		}
		opts.MaxFileSize = n
	}
	return opts, nil
}

var severityRank = map[mixer.Severity]int{
	mixer.SeverityInfo:    0,
	mixer.SeveritySuccess: 1,
	mixer.SeverityWarning: 2,
	mixer.SeverityDanger:  3,
}

// Allows checks if a notice of the given severity should raise an OS
// notification.
func (c *NotificationConfig) Allows(sev mixer.Severity) bool {
	if c == nil || !c.Enabled {
		return false
	}
	min, ok := severityRank[mixer.Severity(c.MinSeverity)]
	if !ok {
		min = severityRank[mixer.SeverityWarning]
	}
	return severityRank[sev] >= min
}

// Cooldown is the minimum time between two OS notifications.
func (c *NotificationConfig) Cooldown() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}
