package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for graysim.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Journal    JournalConfig    `yaml:"journal"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig contains cycle engine settings.
type SimulationConfig struct {
	// CycleRate is the target cycle frequency in cycles per second.
	CycleRate float64 `yaml:"cycle_rate"`

	// Speed scales simulated time relative to wall-clock time.
	// Values above 1 fast-forward the simulation; below 1 slow it down.
	// Must be greater than zero.
	Speed float64 `yaml:"speed"`

	// MaxCycles stops the run after this many cycles. 0 means unlimited.
	MaxCycles uint64 `yaml:"max_cycles"`

	// MaxRuntime stops the run after this much simulated time (seconds).
	// 0 means unlimited.
	MaxRuntime float64 `yaml:"max_runtime"`
}

// DeviceConfig selects and names a simulated device instance.
type DeviceConfig struct {
	// Name identifies the instance on adapter surfaces (topics, URLs, commands).
	Name string `yaml:"name"`

	// Model is the device model key in the catalogue (e.g. "tempcontrol").
	Model string `yaml:"model"`

	// Setup holds initial parameter overrides applied at construction.
	Setup map[string]float64 `yaml:"setup"`
}

// AdaptersConfig contains protocol adapter settings.
type AdaptersConfig struct {
	Stream StreamConfig `yaml:"stream"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// StreamConfig contains line-oriented TCP adapter settings.
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// Terminator is the line terminator for replies. Requests are accepted
	// with either LF or CRLF endings regardless of this setting.
	Terminator string `yaml:"terminator"`

	// IdleTimeout is how long a session may stay silent before the
	// connection is closed (seconds). 0 disables the timeout.
	IdleTimeout int `yaml:"idle_timeout"`
}

// MQTTConfig contains MQTT adapter connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of the request/response topic tree.
	TopicPrefix string `yaml:"topic_prefix"`
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

// APIConfig contains control API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// Empty lists allow all origins and use default methods/headers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// JournalConfig contains run journal (SQLite) settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig contains InfluxDB parameter sampling settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// SampleEvery writes one parameter sample per device every N cycles.
	SampleEvery uint64 `yaml:"sample_every"`
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
// Environment variables follow the pattern: GRAYSIM_SECTION_KEY
// For example: GRAYSIM_JOURNAL_PATH, GRAYSIM_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			CycleRate: 10,
			Speed:     1,
		},
		Adapters: AdaptersConfig{
			Stream: StreamConfig{
				Host:       "0.0.0.0",
				Port:       9999,
				Terminator: "\r\n",
			},
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "graysim",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
					MaxAttempts:  0,
				},
				TopicPrefix: "graysim",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Journal: JournalConfig{
			Path:        "./data/graysim.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Telemetry: TelemetryConfig{
			BatchSize:     100,
			FlushInterval: 10,
			SampleEvery:   10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYSIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Simulation
	if v := os.Getenv("GRAYSIM_SIMULATION_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.Speed = f
		}
	}
	if v := os.Getenv("GRAYSIM_SIMULATION_CYCLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.CycleRate = f
		}
	}

	// Journal
	if v := os.Getenv("GRAYSIM_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYSIM_MQTT_HOST"); v != "" {
		cfg.Adapters.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYSIM_MQTT_USERNAME"); v != "" {
		cfg.Adapters.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYSIM_MQTT_PASSWORD"); v != "" {
		cfg.Adapters.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYSIM_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telemetry
	if v := os.Getenv("GRAYSIM_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Simulation validation
	if c.Simulation.CycleRate <= 0 {
		errs = append(errs, "simulation.cycle_rate must be greater than zero")
	}
	if c.Simulation.Speed <= 0 {
		errs = append(errs, "simulation.speed must be greater than zero")
	}
	if c.Simulation.MaxRuntime < 0 {
		errs = append(errs, "simulation.max_runtime must not be negative")
	}

	// Device validation
	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device must be configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
		}
		if d.Model == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].model is required", i))
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Sprintf("devices[%d].name %q is not unique", i, d.Name))
		}
		seen[d.Name] = true
	}

	// Adapter validation
	if c.Adapters.Stream.Enabled {
		if c.Adapters.Stream.Port < 1 || c.Adapters.Stream.Port > 65535 {
			errs = append(errs, "adapters.stream.port must be between 1 and 65535")
		}
		if c.Adapters.Stream.IdleTimeout < 0 {
			errs = append(errs, "adapters.stream.idle_timeout must not be negative")
		}
	}
	if c.Adapters.MQTT.Enabled {
		if c.Adapters.MQTT.QoS < 0 || c.Adapters.MQTT.QoS > 2 {
			errs = append(errs, "adapters.mqtt.qos must be 0, 1, or 2")
		}
		if c.Adapters.MQTT.TopicPrefix == "" || strings.ContainsAny(c.Adapters.MQTT.TopicPrefix, "+#") {
			errs = append(errs, "adapters.mqtt.topic_prefix must be non-empty and wildcard-free")
		}
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// Telemetry validation
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.SampleEvery == 0 {
			errs = append(errs, "telemetry.sample_every must be at least 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CyclePeriod returns the target time between two cycle starts.
func (c *SimulationConfig) CyclePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.CycleRate)
}

// IdleTimeoutDuration returns the stream idle timeout as a Duration.
func (c *StreamConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
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
