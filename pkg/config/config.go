// Package config loads the spectrad service configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"spectrad/pkg/spectro"
)

type Config struct {
	Server     ServerConfig   `yaml:"server"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	Instrument spectro.Config `yaml:"instrument"`
}

type ServerConfig struct {
	Port           int    `yaml:"port"`
	DatabasePath   string `yaml:"database_path"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// MQTTConfig configures the optional telemetry publisher. An empty broker
// disables it.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TopicRoot string `yaml:"topic_root"`
}

var defaultConfig = Config{
	Server: ServerConfig{
		Port:           8090,
		DatabasePath:   "spectrad.db",
		PollIntervalMs: 2000,
	},
	MQTT: MQTTConfig{
		TopicRoot: "spectrad",
	},
}

// Load reads and validates the configuration file. A missing path returns
// the defaults, so the service can run with no file at all.
func Load(path string) (Config, error) {
	cfg := defaultConfig

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration correctness. It does not mutate the
// configuration.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if cfg.Server.PollIntervalMs < 100 {
		return fmt.Errorf("poll_interval_ms must be at least 100, got %d", cfg.Server.PollIntervalMs)
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicRoot == "" {
		return fmt.Errorf("topic_root must not be empty when a broker is configured")
	}

	for field := range cfg.Instrument {
		if !knownFields[field] {
			return fmt.Errorf("unknown instrument field: %q", field)
		}
	}
	return nil
}

// PollInterval returns the telemetry poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Server.PollIntervalMs) * time.Millisecond
}

var knownFields = map[string]bool{
	spectro.FieldCCDDeviceIndex:             true,
	spectro.FieldSPGDeviceIndex:             true,
	spectro.FieldGrating:                    true,
	spectro.FieldCenterWavelength:           true,
	spectro.FieldPixelOffset:                true,
	spectro.FieldWavelengthOffset:           true,
	spectro.FieldInputPort:                  true,
	spectro.FieldOutputPort:                 true,
	spectro.FieldReadMode:                   true,
	spectro.FieldAcquisitionMode:            true,
	spectro.FieldTriggerMode:                true,
	spectro.FieldExposureTime:               true,
	spectro.FieldNumberAccumulations:        true,
	spectro.FieldAccumulationCycleTime:      true,
	spectro.FieldNumberKinetics:             true,
	spectro.FieldKineticCycleTime:           true,
	spectro.FieldBaselineClamp:              true,
	spectro.FieldCosmicRayRemoval:           true,
	spectro.FieldKeepCleanOnExternalTrigger: true,
	spectro.FieldSingleTrackCenterRow:       true,
	spectro.FieldSingleTrackHeight:          true,
	spectro.FieldVerticalShiftSpeed:         true,
	spectro.FieldHorizontalShiftSpeed:       true,
	spectro.FieldPreAmpGain:                 true,
	spectro.FieldTargetSensorTemperature:    true,
	spectro.FieldReachTemperatureBeforeAcq:  true,
	spectro.FieldCooler:                     true,
	spectro.FieldCoolerPersistence:          true,
}
