// Package config handles application configuration using Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the store root.
const FileName = "config.yaml"

// Config holds the application configuration.
type Config struct {
	Root    string        `mapstructure:"root"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Backend BackendConfig `mapstructure:"backend"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// File is the config file that was read, empty when none exists.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

// SpeechConfig selects external speech programs. Empty commands mean
// transcripts are read from stdin and replies are printed.
type SpeechConfig struct {
	Lang           string `mapstructure:"lang"`
	CaptureCommand string `mapstructure:"capture_command"`
	OutputCommand  string `mapstructure:"output_command"`
}

// BackendConfig points at the optional assistant service used for
// motivation and task details.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultRoot returns TASKER_ROOT, or ~/.tasker when unset.
func DefaultRoot() string {
	if env := strings.TrimSpace(os.Getenv("TASKER_ROOT")); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return ".tasker"
	}
	return filepath.Join(home, ".tasker")
}

// DefaultPath is the config file inside root.
func DefaultPath(root string) string {
	return filepath.Join(expandHome(root), FileName)
}

// Load reads configuration from file and environment. An empty configPath
// means DefaultPath(DefaultRoot()). A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = DefaultPath(DefaultRoot())
	}
	v.SetConfigFile(expandHome(configPath))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TASKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := v.ConfigFileUsed()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		file = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Root = expandHome(cfg.Root)
	cfg.File = file
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", DefaultRoot())
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("ui.theme", "light")
	v.SetDefault("speech.lang", "en-US")
	v.SetDefault("speech.capture_command", "")
	v.SetDefault("speech.output_command", "")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("metrics.addr", "")
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// Set writes one key to the config file at path, keeping the other values
// already stored there.
func Set(path, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown config key %q (allowed: %s)", key, strings.Join(Keys(), ", "))
	}
	if key == "backend.timeout" {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q for %s", value, key)
		}
	}

	path = expandHome(path)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// SetTheme persists the theme preference.
func SetTheme(path, theme string) error {
	return Set(path, "ui.theme", theme)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
