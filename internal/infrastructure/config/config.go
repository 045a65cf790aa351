package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file
// when no --config flag is given.
const EnvConfigPath = "PM8SIM_CONFIG"

// Config is the root configuration structure for pm8sim.
// All configuration can be loaded from YAML and overridden by environment
// variables and command-line flags.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Serial    SerialConfig    `yaml:"serial"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Poller    PollerConfig    `yaml:"poller"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the simulated controller in telemetry.
type DeviceConfig struct {
	// ID tags MQTT topics, InfluxDB points and history rows.
	ID string `yaml:"id"`
}

// SerialConfig contains the serial link settings shared by server and client.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`

	// Timeout bounds one client transaction. The server reads without a
	// timeout so an idle link does not end the listener.
	Timeout time.Duration `yaml:"timeout"`
}

// SimulatorConfig contains the initial device state and physics constants.
type SimulatorConfig struct {
	InitialPV       float32       `yaml:"initial_pv"`
	InitialSetpoint float32       `yaml:"initial_setpoint"`
	Ambient         float32       `yaml:"ambient"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	HeatingStep     float32       `yaml:"heating_step"`
	CoolingStep     float32       `yaml:"cooling_step"`
	Deadband        float32       `yaml:"deadband"`

	// Jitter disables sensor noise when false.
	Jitter bool `yaml:"jitter"`
}

// PollerConfig contains polling client settings.
type PollerConfig struct {
	UnitID   int           `yaml:"unit_id"`
	Interval time.Duration `yaml:"interval"`

	// Setpoint, when set, is written once at startup.
	Setpoint *float64 `yaml:"setpoint"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// HealthInterval is how often the server publishes health and state.
	HealthInterval time.Duration `yaml:"health_interval"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
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

// DatabaseConfig contains the SQLite reading history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention prunes history rows older than this on startup. Zero keeps all.
	Retention time.Duration `yaml:"retention"`
}

// APIConfig contains the status HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// StreamInterval is the websocket state push period.
	StreamInterval time.Duration `yaml:"stream_interval"`

	// PanelDir serves the status page from disk instead of the embedded copy.
	PanelDir string `yaml:"panel_dir"`
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

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty
//  3. Environment variables (override file values)
//
// Command-line flags are applied by the caller after Load, followed by a
// call to Validate.
//
// Environment variables follow the pattern: PM8SIM_SECTION_KEY
// For example: PM8SIM_SERIAL_PORT, PM8SIM_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for none
//
// Returns:
//   - *Config: Loaded configuration (not yet validated)
//   - error: If the file cannot be read or parsed, or an env value is malformed
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "pm8-01",
		},
		Serial: SerialConfig{
			BaudRate: 9600,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  time.Second,
		},
		Simulator: SimulatorConfig{
			InitialPV:       22.1,
			InitialSetpoint: 50.0,
			Ambient:         22.0,
			TickInterval:    200 * time.Millisecond,
			HeatingStep:     0.08,
			CoolingStep:     0.02,
			Deadband:        0.05,
			Jitter:          true,
		},
		Poller: PollerConfig{
			UnitID:   1,
			Interval: time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pm8sim",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "pm8sim",
			Bucket:        "pm8sim",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/pm8sim.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			StreamInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PM8SIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Serial
	if v := os.Getenv("PM8SIM_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("PM8SIM_SERIAL_BAUD"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PM8SIM_SERIAL_BAUD: %w", err)
		}
		cfg.Serial.BaudRate = baud
	}

	// MQTT
	if v := os.Getenv("PM8SIM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PM8SIM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PM8SIM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PM8SIM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("PM8SIM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// Serial validation
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required (use --port or PM8SIM_SERIAL_PORT)")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, "serial.data_bits must be between 5 and 8")
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, "serial.stop_bits must be 1 or 2")
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		errs = append(errs, "serial.parity must be N, E or O")
	}

	// Simulator validation
	if c.Simulator.TickInterval <= 0 {
		errs = append(errs, "simulator.tick_interval must be positive")
	}

	// Poller validation
	if c.Poller.UnitID < 1 || c.Poller.UnitID > 247 {
		errs = append(errs, "poller.unit_id must be between 1 and 247")
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, "poller.interval must be positive")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation; empty values fall back to the logger defaults.
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr", "discard", "none":
	default:
		errs = append(errs, "logging.output must be stdout, stderr or discard")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("configuration errors")

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
