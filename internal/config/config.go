// Package config handles application configuration
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// KnownBackends lists the backend types accepted in backend.type
var KnownBackends = []string{"sqlite", "notion", "microsoft"}

// DefaultBackend is used when backend.type is unset
const DefaultBackend = "sqlite"

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// BackendConfig selects the active backend and holds every backend's settings.
// Settings for a backend live under a key named after it, e.g. backend.notion.token.
type BackendConfig struct {
	Type     string                       `yaml:"type"`
	Settings map[string]map[string]string `yaml:",inline"`
}

// Config represents the application configuration
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`

	mu   sync.Mutex
	path string
}

// DefaultConfig returns a configuration using the local SQLite backend
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Type: DefaultBackend,
			Settings: map[string]map[string]string{
				"sqlite": {"db_path": filepath.Join(GetDataDir(), "tasks.db")},
			},
		},
	}
}

// DefaultPath returns the config file location under the XDG config dir
func DefaultPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = configPath
	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults for unset fields.
// The returned config has no backing file until SaveTo is called.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Type == "" {
		c.Backend.Type = DefaultBackend
	}
	c.Backend.Type = strings.ToLower(strings.TrimSpace(c.Backend.Type))
	if c.Backend.Settings == nil {
		c.Backend.Settings = make(map[string]map[string]string)
	}
}

// writeSample writes the embedded sample configuration to path
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the file this config was loaded from, or "" if none
func (c *Config) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Save writes the configuration back to the file it was loaded from
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// SaveTo writes the configuration to path and makes it the backing file
func (c *Config) SaveTo(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	// Settings may hold API tokens.
	if err := os.WriteFile(c.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !IsKnownBackend(c.Backend.Type) {
		return fmt.Errorf("unknown backend.type: %q (valid: %s)", c.Backend.Type, strings.Join(KnownBackends, ", "))
	}
	return nil
}

// IsKnownBackend reports whether name is an accepted backend type
func IsKnownBackend(name string) bool {
	for _, b := range KnownBackends {
		if b == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Backend Settings
// =============================================================================

// BackendName returns the active backend type
func (c *Config) BackendName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Backend.Type
}

// BackendSettings returns a copy of the settings for the named backend
func (c *Config) BackendSettings(name string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]string, len(c.Backend.Settings[name]))
	for k, v := range c.Backend.Settings[name] {
		result[k] = v
	}
	return result
}

// SetBackendSetting stores one setting for a backend and persists the file immediately.
func (c *Config) SetBackendSetting(name, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Backend.Settings == nil {
		c.Backend.Settings = make(map[string]map[string]string)
	}
	if c.Backend.Settings[name] == nil {
		c.Backend.Settings[name] = make(map[string]string)
	}
	c.Backend.Settings[name][key] = value
	return c.saveLocked()
}

// SetBackend makes name the active backend, replaces its settings, and persists.
func (c *Config) SetBackend(name string, settings map[string]string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !IsKnownBackend(name) {
		return fmt.Errorf("unknown backend: %q (valid: %s)", name, strings.Join(KnownBackends, ", "))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Backend.Settings == nil {
		c.Backend.Settings = make(map[string]map[string]string)
	}
	copied := make(map[string]string, len(settings))
	for k, v := range settings {
		if v != "" {
			copied[k] = v
		}
	}
	c.Backend.Type = name
	c.Backend.Settings[name] = copied
	return c.saveLocked()
}

// =============================================================================
// Dotted Key Access
// =============================================================================

// Get returns the value at a dotted key such as "backend.type" or
// "backend.notion.database_id". ok is false when the key is not set.
func (c *Config) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := strings.Split(key, ".")
	switch {
	case key == "backend.type":
		return c.Backend.Type, true
	case key == "logging.verbose":
		return strconv.FormatBool(c.Logging.Verbose), true
	case len(parts) == 3 && parts[0] == "backend":
		v, ok := c.Backend.Settings[parts[1]][parts[2]]
		return v, ok
	}
	return "", false
}

// Set stores the value at a dotted key and persists the file.
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	switch {
	case key == "backend.type":
		c.mu.Lock()
		defer c.mu.Unlock()
		value = strings.ToLower(strings.TrimSpace(value))
		if !IsKnownBackend(value) {
			return fmt.Errorf("unknown backend: %q (valid: %s)", value, strings.Join(KnownBackends, ", "))
		}
		c.Backend.Type = value
		return c.saveLocked()
	case key == "logging.verbose":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("logging.verbose must be true or false, got %q", value)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.Logging.Verbose = b
		return c.saveLocked()
	case len(parts) == 3 && parts[0] == "backend" && parts[1] != "" && parts[2] != "":
		return c.SetBackendSetting(parts[1], parts[2], value)
	}
	return fmt.Errorf("unknown config key: %q", key)
}

// Keys returns every dotted key that currently has a value, sorted
func (c *Config) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := []string{"backend.type", "logging.verbose"}
	for name, settings := range c.Backend.Settings {
		for k := range settings {
			keys = append(keys, "backend."+name+"."+k)
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Paths
// =============================================================================

// appName is the directory name used under each XDG base directory
const appName = "vibetodo"

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, appName)
	}
	return filepath.Join(home, fallbackPath, appName)
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
