package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/user/scrollterm/configs"
)

// Config is the process configuration, loaded from a YAML file with flag
// overrides. The scrollback line count is the single knob the buffer core
// exposes; everything else configures the surrounding service.
type Config struct {
	Port            int    `yaml:"port"`
	Token           string `yaml:"token"`
	Shell           string `yaml:"shell"`
	ScrollbackLines int    `yaml:"scrollback_lines"`
	Database        string `yaml:"database"`

	ConfigPath string `yaml:"-"`
	PrintToken bool   `yaml:"-"`
}

const (
	defaultPort            = 8766
	defaultScrollbackLines = 300
)

// Load reads the config file (seeding it from the embedded default on first
// run), applies command-line overrides, and validates the result.
func Load() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{
		Port:            defaultPort,
		ScrollbackLines: defaultScrollbackLines,
	}

	if path := os.Getenv("SCROLLTERM_CONFIG"); path != "" {
		cfg.ConfigPath = path
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.ConfigPath = filepath.Join(homeDir, ".config", "scrollterm", "config.yaml")
	}

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := cfg.seedDefaultFile(); err != nil {
			return nil, fmt.Errorf("failed to write default config file: %w", err)
		}
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "authentication token (auto-generated if empty)")
	fs.StringVar(&cfg.Shell, "shell", cfg.Shell, "default shell command for new sessions")
	fs.IntVar(&cfg.ScrollbackLines, "scrollback-lines", cfg.ScrollbackLines, "scrollback lines retained per session")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "session metadata database path")
	fs.BoolVar(&cfg.PrintToken, "print-token", false, "print token to stdout (for local debugging)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Shell == "" {
		cfg.Shell = os.Getenv("SHELL")
		if cfg.Shell == "" {
			cfg.Shell = "/bin/sh"
		}
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(filepath.Dir(cfg.ConfigPath), "scrollterm.db")
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	// A non-positive capacity is a configuration error; it is never
	// silently replaced with the default.
	if c.ScrollbackLines <= 0 {
		return fmt.Errorf("invalid scrollback_lines %d: must be positive", c.ScrollbackLines)
	}
	return nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config file %q: %w", c.ConfigPath, err)
	}
	return nil
}

func (c *Config) seedDefaultFile() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.ConfigPath, configs.DefaultConfig, 0o600)
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(c.ConfigPath, data, 0o600)
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
