package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Marstek account and polling limits.
// The poll interval bounds match what the vendor cloud tolerates without
// rate-limiting; the capacity bounds cover every battery model it reports.
const (
	MinPollInterval = 10
	MaxPollInterval = 3600

	MinCapacityKWh = 0.1
	MaxCapacityKWh = 100.0
)

// Config is the root configuration structure for the Marstek Cloud Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Marstek  MarstekConfig  `yaml:"marstek"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MarstekConfig contains the vendor cloud account and polling settings.
type MarstekConfig struct {
	// Email and Password are the Marstek app credentials. The password is
	// only ever sent as an MD5 digest (upstream login contract).
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// LoginURL and DevicesURL override the vendor endpoints.
	// Leave empty for the production EU cloud.
	LoginURL   string `yaml:"login_url"`
	DevicesURL string `yaml:"devices_url"`

	// PollInterval is the refresh period in seconds (10-3600).
	PollInterval int `yaml:"poll_interval"`

	// Timeout bounds each HTTP exchange, in seconds.
	Timeout int `yaml:"timeout"`

	// DefaultCapacityKWh is the assumed battery capacity when no per-device
	// override has been configured.
	DefaultCapacityKWh float64 `yaml:"default_capacity_kwh"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads, merges and validates the configuration.
//
// Precedence (lowest to highest): built-in defaults, the YAML file at path,
// environment variable overrides (MARSTEK_EMAIL, MARSTEK_PASSWORD,
// MARSTEK_MQTT_HOST, MARSTEK_INFLUXDB_TOKEN, MARSTEK_DATABASE_PATH).
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Marstek: MarstekConfig{
			PollInterval:       60,
			Timeout:            10,
			DefaultCapacityKWh: 5.12,
		},
		Database: DatabaseConfig{
			Path:        "./data/marstek-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "marstek-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MARSTEK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account credentials - prefer env vars over YAML in deployments
	if v := os.Getenv("MARSTEK_EMAIL"); v != "" {
		cfg.Marstek.Email = v
	}
	if v := os.Getenv("MARSTEK_PASSWORD"); v != "" {
		cfg.Marstek.Password = v
	}

	// Database
	if v := os.Getenv("MARSTEK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MARSTEK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MARSTEK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MARSTEK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MARSTEK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Marstek.Email == "" {
		errs = append(errs, "marstek.email is required (set MARSTEK_EMAIL environment variable)")
	}
	if c.Marstek.Password == "" {
		errs = append(errs, "marstek.password is required (set MARSTEK_PASSWORD environment variable)")
	}

	// Polling validation
	if c.Marstek.PollInterval < MinPollInterval || c.Marstek.PollInterval > MaxPollInterval {
		errs = append(errs, fmt.Sprintf("marstek.poll_interval must be between %d and %d seconds",
			MinPollInterval, MaxPollInterval))
	}
	if c.Marstek.Timeout < 1 {
		errs = append(errs, "marstek.timeout must be at least 1 second")
	}
	if c.Marstek.DefaultCapacityKWh < MinCapacityKWh || c.Marstek.DefaultCapacityKWh > MaxCapacityKWh {
		errs = append(errs, fmt.Sprintf("marstek.default_capacity_kwh must be between %.1f and %.1f",
			MinCapacityKWh, MaxCapacityKWh))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Marstek.PollInterval) * time.Second
}

// GetTimeout returns the per-request cloud API timeout as a Duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Marstek.Timeout) * time.Second
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
