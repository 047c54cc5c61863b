// Package config loads chordverify's settings via viper from an embedded
// default config.yaml, a user config file, and environment variables, and
// exposes the resulting Settings to the rest of the application.
package config

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogRotation selects how the main application log file rolls over.
type LogRotation string

const (
	RotationSize   LogRotation = "size"
	RotationDaily  LogRotation = "daily"
	RotationWeekly LogRotation = "weekly"
)

// Settings is the fully resolved configuration tree, unmarshaled from
// viper. Field names mirror the YAML keys (snake_case in the file, exported
// CamelCase here) via mapstructure's default matching.
type Settings struct {
	Debug bool

	Main struct {
		Name string
		Log  struct {
			Level     string
			Rotation  LogRotation `mapstructure:"rotation"`
			MaxSizeMB int         `mapstructure:"max_size_mb"`
		}
	}

	Capture struct {
		Source     string
		SampleRate int     `mapstructure:"sample_rate"`
		Gain       float64 `mapstructure:"gain"`
	}

	Verify struct {
		WindowSec          float64 `mapstructure:"window_sec"`
		TickMs             int     `mapstructure:"tick_ms"`
		ModelSampleRate    int     `mapstructure:"model_sample_rate"`
		FramesConfirm      int     `mapstructure:"frames_confirm"`
		MissCooldownMs     int     `mapstructure:"miss_cooldown_ms"`
		SalienceThreshold  float64 `mapstructure:"salience_threshold"`
		CentsTolerance     int     `mapstructure:"cents_tolerance"`
		TransposeSemitones int     `mapstructure:"transpose_semitones"`
		AcceptInversions   bool    `mapstructure:"accept_inversions"`
		Policy             string
		AggregatorMaxLen   int `mapstructure:"aggregator_max_len"`
	}

	Model struct {
		Path       string
		Threads    int
		UseXNNPACK bool `mapstructure:"use_xnnpack"`
	}

	Metrics struct {
		Enabled       bool
		ListenAddress string `mapstructure:"listen_address"`
	}

	Diagnostics struct {
		VerdictLogSize int `mapstructure:"verdict_log_size"`
	}

	OSC struct {
		Enabled       bool
		Host          string
		Port          int
		AddressPrefix string `mapstructure:"address_prefix"`
	}

	MQTT struct {
		Enabled   bool
		BrokerURL string `mapstructure:"broker_url"`
		ClientID  string `mapstructure:"client_id"`
		Topic     string
	}
}

// TickInterval converts TickMs into a time.Duration for the scheduler.
func (s *Settings) TickInterval() time.Duration {
	return time.Duration(s.Verify.TickMs) * time.Millisecond
}

// MissCooldown converts MissCooldownMs into a time.Duration for the policy engine.
func (s *Settings) MissCooldown() time.Duration {
	return time.Duration(s.Verify.MissCooldownMs) * time.Millisecond
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads config.yaml (creating it from the embedded default on first
// run), layers environment variable overrides (prefixed CHORDVERIFY_), and
// returns the resulting Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := validate(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("CHORDVERIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return viper.ReadInConfig()
}

func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("error reading embedded default config: %v", err)
	}
	return string(data)
}

// validate checks option ranges the rest of the system assumes hold, per
// the ConfigInvalid error category.
func validate(s *Settings) error {
	if s.Verify.WindowSec <= 0 {
		return fmt.Errorf("verify.window_sec must be positive, got %v", s.Verify.WindowSec)
	}
	if s.Verify.TickMs <= 0 {
		return fmt.Errorf("verify.tick_ms must be positive, got %v", s.Verify.TickMs)
	}
	if s.Verify.FramesConfirm <= 0 {
		return fmt.Errorf("verify.frames_confirm must be positive, got %v", s.Verify.FramesConfirm)
	}
	switch strings.ToUpper(s.Verify.Policy) {
	case "K_OF_N", "INCLUDES_TARGET", "BASS_PRIORITY":
	default:
		return fmt.Errorf("verify.policy must be one of K_OF_N, INCLUDES_TARGET, BASS_PRIORITY, got %q", s.Verify.Policy)
	}
	return nil
}

// GetSettings returns the most recently loaded Settings, or nil if Load
// has not run yet.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
