package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	// Output configuration
	Output OutputConfig `toml:"output"`

	// Tracker enablement
	Trackers TrackerConfig `toml:"trackers"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// OutputConfig controls where report files are written.
type OutputConfig struct {
	// Directory for the .stat report files. Empty means: use the
	// REGIONPROF_OUTPUT_DIR environment variable, falling back to the
	// platform temp directory. The environment variable always wins over
	// this setting when set.
	Directory string `toml:"directory"`
}

// TrackerConfig enables or disables individual tracking subsystems.
// Disabled subsystems still accept calls but skip their report block.
type TrackerConfig struct {
	// Cycle attribution per execution state (default: true)
	Cycles bool `toml:"cycles"`

	// Heap object tracking (default: true)
	Heap bool `toml:"heap"`

	// Tagged source-line coverage (default: true)
	Coverage bool `toml:"coverage"`

	// Per-function call and instruction statistics (default: true)
	FuncStats bool `toml:"funcstats"`
}

// LoggingConfig contains runtime logger settings.
type LoggingConfig struct {
	// Log level: trace, debug, info, warn, error, fatal (default: "warn").
	// The runtime lives inside an instrumented host program, so it stays
	// quiet unless something degrades.
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Output: OutputConfig{
			Directory: "",
		},
		Trackers: TrackerConfig{
			Cycles:    true,
			Heap:      true,
			Coverage:  true,
			FuncStats: true,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// LoadConfig loads configuration from a TOML file, applying defaults for
// missing fields. An empty path or a missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot honor.
func (c *AppConfig) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Output.Directory != "" {
		if info, err := os.Stat(c.Output.Directory); err == nil && !info.IsDir() {
			return fmt.Errorf("output directory %s is not a directory", c.Output.Directory)
		}
	}
	return nil
}
