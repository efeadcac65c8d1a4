// Package config loads fusionidx configuration from defaults, the user
// config file, the project config file and FUSIONIDX_* environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/fusion"
)

// Config represents the complete fusionidx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Fusion     FusionConfig     `yaml:"fusion" json:"fusion"`
	Descriptor DescriptorConfig `yaml:"descriptor" json:"descriptor"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// FusionConfig configures the routing layer.
type FusionConfig struct {
	// DefaultVersion is the slot selector version given to new indexes.
	DefaultVersion string `yaml:"default_version" json:"default_version"`

	// Backends lists the slots this deployment provides a backend for.
	// Opening an index whose selector needs a different set fails.
	Backends []string `yaml:"backends" json:"backends"`
}

// DescriptorConfig configures the descriptor store.
type DescriptorConfig struct {
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Fusion: FusionConfig{
			DefaultVersion: string(fusion.DefaultVersion),
			Backends:       []string{"generic", "text"},
		},
		Descriptor: DescriptorConfig{
			CacheSize: 128,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fusionidx", "data")
	}
	return filepath.Join(home, ".fusionidx", "data")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/fusionidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/fusionidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fusionidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "fusionidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "fusionidx", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/fusionidx/config.yaml)
//  3. Project config (.fusionidx.yaml in dir)
//  4. Environment variables (FUSIONIDX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges .fusionidx.yaml, or .fusionidx.yml, from dir.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".fusionidx.yaml", ".fusionidx.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fuserr.New(fuserr.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fuserr.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = expandHome(other.DataDir)
	}
	if other.Fusion.DefaultVersion != "" {
		c.Fusion.DefaultVersion = other.Fusion.DefaultVersion
	}
	if len(other.Fusion.Backends) > 0 {
		c.Fusion.Backends = append([]string(nil), other.Fusion.Backends...)
	}
	if other.Descriptor.CacheSize != 0 {
		c.Descriptor.CacheSize = other.Descriptor.CacheSize
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies FUSIONIDX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FUSIONIDX_DATA_DIR"); v != "" {
		c.DataDir = expandHome(v)
	}
	if v := os.Getenv("FUSIONIDX_DEFAULT_VERSION"); v != "" {
		c.Fusion.DefaultVersion = v
	}
	// Comma-separated, e.g. FUSIONIDX_BACKENDS=generic,text
	if v := os.Getenv("FUSIONIDX_BACKENDS"); v != "" {
		var backends []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				backends = append(backends, b)
			}
		}
		c.Fusion.Backends = backends
	}
	if v := os.Getenv("FUSIONIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate validates the configuration and returns an ERR_102_CONFIG_INVALID
// error naming the offending key.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return invalid("data_dir", "data_dir must not be empty")
	}

	if _, err := fusion.DefaultRegistry().Lookup(fusion.Version(c.Fusion.DefaultVersion)); err != nil {
		return invalid("fusion.default_version", err.Error())
	}

	if _, err := c.BackendSlots(); err != nil {
		return invalid("fusion.backends", err.Error())
	}

	if c.Descriptor.CacheSize < 0 {
		return invalid("descriptor.cache_size",
			fmt.Sprintf("descriptor.cache_size must be non-negative, got %d", c.Descriptor.CacheSize))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level",
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level))
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging", "logging.max_size_mb and logging.max_files must be non-negative")
	}
	return nil
}

func invalid(key, msg string) error {
	return fuserr.ConfigError(msg, nil).WithDetail("key", key)
}

// BackendSlots parses fusion.backends into slots. The list must be non-empty
// and free of duplicates.
func (c *Config) BackendSlots() ([]fusion.Slot, error) {
	if len(c.Fusion.Backends) == 0 {
		return nil, fmt.Errorf("fusion.backends must name at least one backend")
	}
	seen := make(map[fusion.Slot]bool, len(c.Fusion.Backends))
	slots := make([]fusion.Slot, 0, len(c.Fusion.Backends))
	for _, name := range c.Fusion.Backends {
		slot, err := fusion.ParseSlot(name)
		if err != nil {
			return nil, err
		}
		if seen[slot] {
			return nil, fmt.Errorf("fusion.backends lists %s twice", slot)
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	return fusion.SortSlots(slots), nil
}

// DescriptorPath returns the location of the descriptor database.
func (c *Config) DescriptorPath() string {
	return filepath.Join(c.DataDir, "descriptors.db")
}

// IndexDir returns the directory holding an index's backends and lock.
func (c *Config) IndexDir(name string) string {
	return filepath.Join(c.DataDir, "indexes", name)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
