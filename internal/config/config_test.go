package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name       string
		configTOML string
		expectErr  bool
		validate   func(*testing.T, *AppConfig)
	}{
		{
			name: "defaults",
			validate: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, "warn", c.Logging.Level)
				assert.True(t, c.Trackers.Cycles)
				assert.True(t, c.Trackers.Heap)
				assert.True(t, c.Trackers.Coverage)
				assert.True(t, c.Trackers.FuncStats)
				assert.Empty(t, c.Output.Directory)
			},
		},
		{
			name: "custom trackers and level",
			configTOML: `
[logging]
level = "debug"

[trackers]
coverage = false
funcstats = false
`,
			validate: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, "debug", c.Logging.Level)
				assert.False(t, c.Trackers.Coverage)
				assert.False(t, c.Trackers.FuncStats)
				// Unmentioned trackers keep their defaults.
				assert.True(t, c.Trackers.Cycles)
				assert.True(t, c.Trackers.Heap)
			},
		},
		{
			name: "output directory",
			configTOML: `
[output]
directory = "/tmp/regionprof-test-out"
`,
			validate: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, "/tmp/regionprof-test-out", c.Output.Directory)
			},
		},
		{
			name:       "malformed toml",
			configTOML: "[output\ndirectory=",
			expectErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.configTOML != "" {
				path = filepath.Join(t.TempDir(), "regionprof.toml")
				require.NoError(t, os.WriteFile(path, []byte(tt.configTOML), 0o644))
			}

			cfg, err := LoadConfig(path)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.Output.Directory = file
	assert.Error(t, cfg.Validate())
}
