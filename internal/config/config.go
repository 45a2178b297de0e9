package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Network     NetworkConfig     `yaml:"network"`
	Audio       AudioConfig       `yaml:"audio"`
	Conditioner ConditionerConfig `yaml:"conditioner"`
	Recording   RecordingConfig   `yaml:"recording"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// NetworkConfig contains transport configuration
type NetworkConfig struct {
	Port        int `yaml:"port"`         // default listen/connect port
	DialTimeout int `yaml:"dial_timeout"` // seconds
}

// AudioConfig contains audio format and device parameters
type AudioConfig struct {
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	WindowDuration float64 `yaml:"window_duration"` // seconds
	InputDevice    string  `yaml:"input_device"`
	OutputDevice   string  `yaml:"output_device"`
}

// ConditionerConfig contains signal conditioning parameters
type ConditionerConfig struct {
	NoiseGate float32 `yaml:"noise_gate"`
	Gain      float32 `yaml:"gain"`
}

// RecordingConfig controls per-call WAV recording
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// MonitorConfig contains the monitoring HTTP server configuration
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is given.
// A voice chat client has to work with zero setup.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Port:        8888,
			DialTimeout: 10,
		},
		Audio: AudioConfig{
			SampleRate:     22050,
			Channels:       1,
			WindowDuration: 1.0,
			InputDevice:    "default",
			OutputDevice:   "default",
		},
		Conditioner: ConditionerConfig{
			NoiseGate: 1e-4,
			Gain:      1.0,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			Directory: "recordings",
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. Values not present in the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Conditioner.Validate(); err != nil {
		return fmt.Errorf("conditioner config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates network configuration
func (n *NetworkConfig) Validate() error {
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", n.Port)
	}

	if n.DialTimeout < 1 {
		return fmt.Errorf("dial_timeout must be at least 1 second, got %d", n.DialTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", a.Channels)
	}

	if a.WindowDuration < 0.1 || a.WindowDuration > 5.0 {
		return fmt.Errorf("window_duration must be between 0.1 and 5.0 seconds, got %f", a.WindowDuration)
	}

	if a.InputDevice == "" {
		return fmt.Errorf("input_device cannot be empty (use \"default\")")
	}

	if a.OutputDevice == "" {
		return fmt.Errorf("output_device cannot be empty (use \"default\")")
	}

	return nil
}

// Validate validates conditioner configuration
func (c *ConditionerConfig) Validate() error {
	if c.NoiseGate < 0 || c.NoiseGate > 0.1 {
		return fmt.Errorf("noise_gate must be between 0 and 0.1, got %f", c.NoiseGate)
	}

	if c.Gain <= 0 || c.Gain > 10 {
		return fmt.Errorf("gain must be between 0 (exclusive) and 10, got %f", c.Gain)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.Enabled && r.Directory == "" {
		return fmt.Errorf("directory cannot be empty when recording is enabled")
	}

	return nil
}

// Validate validates monitor configuration
func (m *MonitorConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("monitor port must be between 1 and 65535, got %d", m.Port)
		}

		if m.Address == "" {
			return fmt.Errorf("monitor address cannot be empty when enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWindowDuration returns the transport window as a time.Duration
func (a *AudioConfig) GetWindowDuration() time.Duration {
	return time.Duration(a.WindowDuration * float64(time.Second))
}

// GetDialTimeout returns the dial timeout as a time.Duration
func (n *NetworkConfig) GetDialTimeout() time.Duration {
	return time.Duration(n.DialTimeout) * time.Second
}
