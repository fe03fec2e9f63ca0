package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrad/pkg/spectro"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spectrad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "spectrad.db", cfg.Server.DatabasePath)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  database_path: /var/lib/spectrad/state.db
  poll_interval_ms: 500
mqtt:
  broker: tcp://localhost:1883
  topic_root: lab/spectrometer
instrument:
  exposure_time: 0.5
  acquisition_mode: accumulate
  number_of_accumulations: 4
  cooler: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 0.5, cfg.Instrument[spectro.FieldExposureTime])
	assert.Equal(t, "accumulate", cfg.Instrument[spectro.FieldAcquisitionMode])
	assert.Equal(t, true, cfg.Instrument[spectro.FieldCooler])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:        "bad port",
			mutate:      func(c *Config) { c.Server.Port = 0 },
			expectError: true,
		},
		{
			name:        "empty database path",
			mutate:      func(c *Config) { c.Server.DatabasePath = "" },
			expectError: true,
		},
		{
			name:        "poll interval too short",
			mutate:      func(c *Config) { c.Server.PollIntervalMs = 10 },
			expectError: true,
		},
		{
			name: "broker without topic root",
			mutate: func(c *Config) {
				c.MQTT.Broker = "tcp://localhost:1883"
				c.MQTT.TopicRoot = ""
			},
			expectError: true,
		},
		{
			name: "unknown instrument field",
			mutate: func(c *Config) {
				c.Instrument = spectro.Config{"exposrue_time": 0.5}
			},
			expectError: true,
		},
		{
			name: "known instrument fields",
			mutate: func(c *Config) {
				c.Instrument = spectro.Config{
					spectro.FieldExposureTime: 0.5,
					spectro.FieldCooler:       true,
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig
			tc.mutate(&cfg)
			err := Validate(&cfg)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
