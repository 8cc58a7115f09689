package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"uartviewer/serial"
)

// Config is the root configuration structure
type Config struct {
	App        AppConfig        `json:"app" yaml:"app"`
	Ports      []PortConfig     `json:"ports" yaml:"ports"`
	Discovery  DiscoveryConfig  `json:"discovery" yaml:"discovery"`
	Timestamp  TimestampConfig  `json:"timestamp" yaml:"timestamp"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Search     SearchConfig     `json:"search" yaml:"search"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
	Slack      SlackConfig      `json:"slack" yaml:"slack"`
	MQTT       MQTTConfig       `json:"mqtt" yaml:"mqtt"`
}

// AppConfig contains application metadata
type AppConfig struct {
	Name       string `json:"name" yaml:"name"`
	InstanceID string `json:"instance_id" yaml:"instance_id"`
}

// PortConfig defines configuration for a single serial port
type PortConfig struct {
	Device      string `json:"device" yaml:"device"`
	BaudRate    int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits    int    `json:"data_bits" yaml:"data_bits"`
	StopBits    int    `json:"stop_bits" yaml:"stop_bits"`
	Parity      string `json:"parity" yaml:"parity"`
	Backend     string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	AutoConnect bool   `json:"auto_connect" yaml:"auto_connect"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Serial converts the port settings for serial.Open
func (p PortConfig) Serial() serial.PortConfig {
	return serial.PortConfig{
		Device:   p.Device,
		BaudRate: p.BaudRate,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity,
		Backend:  p.Backend,
	}
}

// DiscoveryConfig controls which enumerated ports are offered as candidates
type DiscoveryConfig struct {
	Prefixes []string `json:"prefixes" yaml:"prefixes"`
}

// TimestampConfig controls per-line timestamps
type TimestampConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// SessionConfig tunes the ingestion loop and the drain tick
type SessionConfig struct {
	DrainIntervalMs int `json:"drain_interval_ms" yaml:"drain_interval_ms"`
	ReadTimeoutMs   int `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	IdleSleepMs     int `json:"idle_sleep_ms" yaml:"idle_sleep_ms"`
	JoinTimeoutMs   int `json:"join_timeout_ms" yaml:"join_timeout_ms"`
	ReadBufferBytes int `json:"read_buffer_bytes" yaml:"read_buffer_bytes"`
}

// SearchConfig controls the find cursor
type SearchConfig struct {
	ResumeOnReopen bool `json:"resume_on_reopen" yaml:"resume_on_reopen"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	BasePath   string `json:"base_path" yaml:"base_path"`
	Filename   string `json:"filename" yaml:"filename"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// MonitoringConfig defines HTTP monitoring settings
type MonitoringConfig struct {
	Disabled bool   `json:"disabled" yaml:"disabled"`
	Port     int    `json:"port" yaml:"port"`
	SaveDir  string `json:"save_dir" yaml:"save_dir"`
}

// SlackConfig defines Slack notification settings
type SlackConfig struct {
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url"`
	NotifyStartup  bool   `json:"notify_startup" yaml:"notify_startup"`
	NotifyShutdown bool   `json:"notify_shutdown" yaml:"notify_shutdown"`
	NotifyErrors   bool   `json:"notify_errors" yaml:"notify_errors"`
}

// MQTTConfig defines the optional broker bridge
type MQTTConfig struct {
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos"`
}

// Enabled reports whether a broker is configured
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// Load reads and parses a configuration file. Files ending in .yaml or .yml
// are YAML, everything else is JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration data and applies defaults
func Parse(data []byte, asYAML bool) (*Config, error) {
	var cfg Config
	if asYAML {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// Save writes cfg to path in the format implied by its extension
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Default returns a configuration with every default applied and no ports
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// ApplyDefaults fills unset fields again, for ports added after Load
func (c *Config) ApplyDefaults() {
	c.applyDefaults()
}

// applyDefaults sets default values for unspecified fields
func (c *Config) applyDefaults() {
	// App defaults
	if c.App.Name == "" {
		c.App.Name = "UARTViewer"
	}
	if c.App.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.App.InstanceID = hostname
	}

	// Port defaults
	for i := range c.Ports {
		if c.Ports[i].BaudRate == 0 {
			c.Ports[i].BaudRate = serial.DefaultBaudRate
		}
		if c.Ports[i].DataBits == 0 {
			c.Ports[i].DataBits = 8
		}
		if c.Ports[i].StopBits == 0 {
			c.Ports[i].StopBits = 1
		}
		if c.Ports[i].Parity == "" {
			c.Ports[i].Parity = "none"
		}
		if c.Ports[i].Backend == "" {
			c.Ports[i].Backend = serial.BackendBugst
		}
	}

	// Discovery defaults
	if c.Discovery.Prefixes == nil {
		c.Discovery.Prefixes = append([]string(nil), serial.DefaultCandidatePrefixes...)
	}

	// Session defaults
	if c.Session.DrainIntervalMs == 0 {
		c.Session.DrainIntervalMs = 50
	}
	if c.Session.ReadTimeoutMs == 0 {
		c.Session.ReadTimeoutMs = 100
	}
	if c.Session.IdleSleepMs == 0 {
		c.Session.IdleSleepMs = 20
	}
	if c.Session.JoinTimeoutMs == 0 {
		c.Session.JoinTimeoutMs = 1000
	}
	if c.Session.ReadBufferBytes == 0 {
		c.Session.ReadBufferBytes = 4096
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = "uartviewer.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}

	// Monitoring defaults
	if c.Monitoring.Port == 0 {
		c.Monitoring.Port = 8080
	}
	if c.Monitoring.SaveDir == "" {
		c.Monitoring.SaveDir = "."
	}

	// MQTT defaults
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "uartviewer"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "uartviewer-" + c.App.InstanceID
	}
}

// GetDrainInterval returns the drain tick period
func (c *SessionConfig) GetDrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalMs) * time.Millisecond
}

// GetReadTimeout returns the bounded read timeout
func (c *SessionConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// GetIdleSleep returns the pause after an empty read
func (c *SessionConfig) GetIdleSleep() time.Duration {
	return time.Duration(c.IdleSleepMs) * time.Millisecond
}

// GetJoinTimeout returns how long disconnect waits for the reader
func (c *SessionConfig) GetJoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMs) * time.Millisecond
}
