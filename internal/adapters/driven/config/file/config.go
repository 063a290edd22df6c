package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the recognised chattail options. Values are read from the
// TOML config file and overridden by command-line flags.
type Config struct {
	// LogRoot is the session log directory to tail.
	LogRoot string `toml:"log_root"`

	// DBPath is the conversation database to tail. The database source is
	// enabled only when this is set.
	DBPath string `toml:"db_path"`

	// PollIntervalLogMs is the log source's tick interval in milliseconds.
	PollIntervalLogMs int `toml:"poll_interval_log_ms"`

	// PollIntervalDBMs is the database source's tick interval in
	// milliseconds. Faster than the log interval: its read path is cheap.
	PollIntervalDBMs int `toml:"poll_interval_db_ms"`

	// Filter restricts tailing to units whose label contains this
	// substring, case-insensitively.
	Filter string `toml:"filter"`

	// Compact drops the per-message unit header from the output.
	Compact bool `toml:"compact"`

	// Watch enables filesystem-event wake-ups between ticks.
	Watch bool `toml:"watch"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	cfg := Config{
		PollIntervalLogMs: 250,
		PollIntervalDBMs:  100,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.LogRoot = filepath.Join(home, ".claude", "projects")
	}
	return cfg
}

// DefaultPath returns the default config file location,
// ~/.chattail/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".chattail", "config.toml"), nil
}

// Load reads the config file at path, applying defaults for absent keys.
// An empty path means the default location. A missing file is not an
// error: defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as TOML to path, creating parent directories.
func (c Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// LogInterval returns the log source's poll interval as a duration.
func (c Config) LogInterval() time.Duration {
	return time.Duration(c.PollIntervalLogMs) * time.Millisecond
}

// DBInterval returns the database source's poll interval as a duration.
func (c Config) DBInterval() time.Duration {
	return time.Duration(c.PollIntervalDBMs) * time.Millisecond
}
