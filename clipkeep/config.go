package clipkeep

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/clipkeep/dbopen"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config holds all clipkeep configuration.
type Config struct {
	DBPath   string        `yaml:"db_path"`
	Storage  string        `yaml:"storage"`
	SQLite   SQLiteConfig  `yaml:"sqlite"`
	FilePath string        `yaml:"file_path"`
	History  HistoryConfig `yaml:"history"`
	Capture  CaptureConfig `yaml:"capture"`
	Browser  BrowserConfig `yaml:"browser"`
	Pages    []string      `yaml:"pages"`
	Panel    PanelConfig   `yaml:"panel"`
}

// SQLiteConfig tunes the sqlite backend. Zero values keep the dbopen defaults
// (busy_timeout 10s, synchronous NORMAL).
type SQLiteConfig struct {
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"`
}

// HistoryConfig controls the stored list.
type HistoryConfig struct {
	Limit int    `yaml:"limit"`
	Key   string `yaml:"key"`
}

// CaptureConfig controls the capture coordinator.
type CaptureConfig struct {
	SettleDelay     time.Duration `yaml:"settle_delay"`
	MinHighlightLen int           `yaml:"min_highlight_len"`
}

// BrowserConfig controls the live Chrome pages.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`
	Headless bool   `yaml:"headless"`
	Stealth  bool   `yaml:"stealth"`
}

// PanelConfig controls the history panel server.
type PanelConfig struct {
	Addr string `yaml:"addr"`
}

func (c *Config) defaults() {
	if c.Storage == "" {
		c.Storage = StorageSQLite
	}
	if c.DBPath == "" {
		c.DBPath = "clipkeep.db"
	}
	if c.FilePath == "" {
		c.FilePath = "clipkeep-data"
	}
	if c.History.Limit <= 0 {
		c.History.Limit = 100
	}
	if c.History.Key == "" {
		c.History.Key = "clipboardHistory"
	}
	if c.Capture.SettleDelay <= 0 {
		c.Capture.SettleDelay = 10 * time.Millisecond
	}
	if c.Capture.MinHighlightLen <= 0 {
		c.Capture.MinHighlightLen = 5
	}
	if c.Panel.Addr == "" {
		c.Panel.Addr = "127.0.0.1:8787"
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageSQLite, StorageFile, StorageMemory:
	default:
		return fmt.Errorf("clipkeep: unknown storage %q (want sqlite, file or memory)", c.Storage)
	}
	switch strings.ToUpper(c.SQLite.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("clipkeep: unknown sqlite synchronous mode %q", c.SQLite.Synchronous)
	}
	return nil
}

// sqliteOptions maps the sqlite settings onto dbopen options.
func (c *Config) sqliteOptions() []dbopen.Option {
	var opts []dbopen.Option
	if c.SQLite.BusyTimeout > 0 {
		opts = append(opts, dbopen.WithBusyTimeout(int(c.SQLite.BusyTimeout.Milliseconds())))
	}
	if c.SQLite.Synchronous != "" {
		opts = append(opts, dbopen.WithSynchronous(strings.ToUpper(c.SQLite.Synchronous)))
	}
	return opts
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("clipkeep: parse config: %w", err)
	}
	return cfg, nil
}
