// Package config loads the engine's TOML configuration: which storage
// backend to open and how, default page sizing, dirty-feed behavior, debug
// logging, and where the playbook directory lives.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the engine's top-level configuration, loaded from a single TOML
// file. Every field carries a `toml:"..."` tag so the file's keys read as
// plain snake_case.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Engine   EngineConfig   `toml:"engine"`
	Debug    bool           `toml:"debug"`
	Playbook PlaybookConfig `toml:"playbook"`
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	// Driver is "embedded" (default, in-process Dolt) or "server" (Dolt
	// sql-server over the MySQL wire protocol).
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	Database string `toml:"database"`

	ServerHost     string `toml:"server_host"`
	ServerPort     int    `toml:"server_port"`
	ServerUser     string `toml:"server_user"`
	ServerPassword string `toml:"server_password"`
	ServerTLS      bool   `toml:"server_tls"`

	CommitterName  string `toml:"committer_name"`
	CommitterEmail string `toml:"committer_email"`
}

// EngineConfig holds cross-cutting defaults not specific to one backend.
type EngineConfig struct {
	DefaultPageSize  int  `toml:"default_page_size"`
	MaxPageSize      int  `toml:"max_page_size"`
	DirtyFeedEnabled bool `toml:"dirty_feed_enabled"`
}

// PlaybookConfig points the playbook loader at its source directory.
type PlaybookConfig struct {
	Dir string `toml:"dir"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			Driver:   "embedded",
			Path:     ".elemental/db",
			Database: "elemental",
		},
		Engine: EngineConfig{
			DefaultPageSize:  50,
			MaxPageSize:      500,
			DirtyFeedEnabled: true,
		},
		Playbook: PlaybookConfig{
			Dir: ".elemental/playbooks",
		},
	}
}

// Load reads and decodes the TOML file at path, applying defaults for any
// field the file leaves unset.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults, rather than an
// error, when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaults()
		return &cfg, nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "embedded", "server":
	default:
		return fmt.Errorf("config: storage.driver must be \"embedded\" or \"server\", got %q", c.Storage.Driver)
	}
	if c.Engine.DefaultPageSize <= 0 {
		return fmt.Errorf("config: engine.default_page_size must be positive")
	}
	if c.Engine.MaxPageSize < c.Engine.DefaultPageSize {
		return fmt.Errorf("config: engine.max_page_size must be >= default_page_size")
	}
	return nil
}
