package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/spimrig/internal/device"
)

// Config is the root configuration structure for spimrig.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Rig       RigConfig       `yaml:"rig"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the instrument.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RigConfig describes the hardware backend and which devices fill the slots.
type RigConfig struct {
	// Backend selects the hardware backend. Only "sim" ships with spimrig.
	Backend string `yaml:"backend"`

	// Devices names the backend's primary devices. Secondary slots are
	// discovered from the loaded devices.
	Devices RigDevicesConfig `yaml:"devices"`

	// Slots pins individual slots to labels, keyed by slot key
	// (e.g. "synchronizer": "Arduino"). An empty label leaves the slot empty.
	Slots map[string]string `yaml:"slots"`

	// WaitTimeout bounds every wait for a busy device, in seconds.
	WaitTimeout int `yaml:"wait_timeout"`

	// OriginMoveProtection rejects stage moves to (0, 0, 0).
	OriginMoveProtection bool `yaml:"origin_move_protection"`

	Simulation SimulationConfig `yaml:"simulation"`
}

// RigDevicesConfig names the primary device labels.
type RigDevicesConfig struct {
	XYStage string `yaml:"xy_stage"`
	Focus   string `yaml:"focus"`
	Shutter string `yaml:"shutter"`
	Camera  string `yaml:"camera"`
}

// SimulationConfig tunes the simulated backend.
type SimulationConfig struct {
	AutoShutter bool `yaml:"auto_shutter"`
	MoveTimeMS  int  `yaml:"move_time_ms"`
	FrameWidth  int  `yaml:"frame_width"`
	FrameHeight int  `yaml:"frame_height"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`

	// TopicPrefix roots every spimrig topic, so several rigs can share a broker.
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// RateLimitConfig limits hardware-control requests.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SPIMRIG_SECTION_KEY
// For example: SPIMRIG_DATABASE_PATH, SPIMRIG_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults: the simulated demo rig
// with MQTT and InfluxDB switched off.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "spim-001",
			Name: "Light-sheet microscope",
		},
		Rig: RigConfig{
			Backend: "sim",
			Devices: RigDevicesConfig{
				XYStage: "XYStage",
				Focus:   "ZStage",
				Shutter: "Laser0",
				Camera:  "Cam0",
			},
			WaitTimeout:          30,
			OriginMoveProtection: true,
			Simulation: SimulationConfig{
				AutoShutter: false,
				MoveTimeMS:  50,
				FrameWidth:  512,
				FrameHeight: 512,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/spimrig.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "spimrig",
			},
			QoS:         1,
			TopicPrefix: "spimrig",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             20,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "spimrig",
			Bucket:        "rig",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SPIMRIG_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Rig
	if v := os.Getenv("SPIMRIG_RIG_BACKEND"); v != "" {
		cfg.Rig.Backend = v
	}
	if v := os.Getenv("SPIMRIG_RIG_WAIT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rig.WaitTimeout = n
		}
	}

	// Database
	if v := os.Getenv("SPIMRIG_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SPIMRIG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SPIMRIG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SPIMRIG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SPIMRIG_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SPIMRIG_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}

	// InfluxDB
	if v := os.Getenv("SPIMRIG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SPIMRIG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Rig.Backend != "sim" {
		errs = append(errs, fmt.Sprintf("rig.backend %q is not supported (use \"sim\")", c.Rig.Backend))
	}
	if c.Rig.WaitTimeout < 1 {
		errs = append(errs, "rig.wait_timeout must be at least 1 second")
	}
	for key := range c.Rig.Slots {
		if _, err := device.ParseSlot(key); err != nil {
			errs = append(errs, fmt.Sprintf("rig.slots: unknown slot %q", key))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#")) {
		errs = append(errs, "mqtt.topic_prefix must be non-empty and free of wildcards when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "api.rate_limit.requests_per_minute must be positive when enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SlotLabels returns the pinned slot labels keyed by Slot. Unknown keys are
// skipped; Validate reports them.
func (c *Config) SlotLabels() map[device.Slot]string {
	out := make(map[device.Slot]string, len(c.Rig.Slots))
	for key, label := range c.Rig.Slots {
		slot, err := device.ParseSlot(key)
		if err != nil {
			continue
		}
		out[slot] = label
	}
	return out
}

// GetWaitTimeout returns the device wait bound as a Duration.
func (c *Config) GetWaitTimeout() time.Duration {
	return time.Duration(c.Rig.WaitTimeout) * time.Second
}

// GetMoveTime returns the simulated move time as a Duration.
func (c *Config) GetMoveTime() time.Duration {
	return time.Duration(c.Rig.Simulation.MoveTimeMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
