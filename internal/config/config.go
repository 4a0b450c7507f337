package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zpdzap/aoe/internal/session"
)

const (
	Dir        = ".agent-of-empires"
	ConfigFile = "config.yaml"

	// DefaultImage is the sandbox image built from the bundled Dockerfile.
	DefaultImage = "aoe-sandbox:latest"
)

type Config struct {
	Version string  `yaml:"version"`
	Profile string  `yaml:"profile,omitempty"`
	Storage Storage `yaml:"storage"`
	Sandbox Sandbox `yaml:"sandbox"`
	Log     Log     `yaml:"log"`
}

type Storage struct {
	Driver string `yaml:"driver,omitempty"` // json, sqlite, postgres
	DSN    string `yaml:"dsn,omitempty"`
}

type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // console or json
	File   string `yaml:"file,omitempty"`
}

// Default returns the configuration `aoe init` writes.
func Default() *Config {
	return &Config{
		Version: "1",
		Profile: session.DefaultProfile,
		Storage: Storage{Driver: "json"},
		Sandbox: Sandbox{
			Runtime:      RuntimeCLI,
			Image:        DefaultImage,
			Environment:  []string{"TERM", "COLORTERM"},
			CacheVolumes: true,
		},
		Log: Log{Level: "warn", Format: "console"},
	}
}

// HomeDir returns the application directory: $AOE_HOME when set, otherwise
// ~/.agent-of-empires.
func HomeDir(lookup func(string) (string, bool)) (string, error) {
	if dir, ok := lookup("AOE_HOME"); ok && dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, Dir), nil
}

// StoreConfig returns the session store location for profile (the configured
// profile when empty).
func (c *Config) StoreConfig(dir, profile string) session.StoreConfig {
	if profile == "" {
		profile = c.Profile
	}
	return session.StoreConfig{
		Dir:     dir,
		Profile: profile,
		Driver:  c.Storage.Driver,
		DSN:     c.Storage.DSN,
	}
}

// Load reads config.yaml from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when no config file exists.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return Default(), nil
	}
	return Load(dir)
}

// Save writes config.yaml to dir.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, ConfigFile)
	return os.WriteFile(path, data, 0o644)
}

// Exists returns true if config.yaml exists in dir.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFile)
	_, err := os.Stat(path)
	return err == nil
}
