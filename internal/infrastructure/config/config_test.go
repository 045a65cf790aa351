package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
device:
  id: "oven-7"
serial:
  port: "/dev/pts/4"
  baud_rate: 19200
simulator:
  tick_interval: 100ms
  initial_setpoint: 80
poller:
  unit_id: 3
  interval: 500ms
  setpoint: 65.5
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "oven-7" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "oven-7")
	}
	if cfg.Serial.Port != "/dev/pts/4" || cfg.Serial.BaudRate != 19200 {
		t.Errorf("Serial = %+v", cfg.Serial)
	}
	if cfg.Serial.DataBits != 8 || cfg.Serial.Parity != "N" {
		t.Errorf("Serial defaults lost: %+v", cfg.Serial)
	}
	if cfg.Simulator.TickInterval != 100*time.Millisecond {
		t.Errorf("Simulator.TickInterval = %v, want 100ms", cfg.Simulator.TickInterval)
	}
	if cfg.Simulator.InitialSetpoint != 80 || cfg.Simulator.InitialPV != 22.1 {
		t.Errorf("Simulator = %+v", cfg.Simulator)
	}
	if cfg.Poller.UnitID != 3 || cfg.Poller.Interval != 500*time.Millisecond {
		t.Errorf("Poller = %+v", cfg.Poller)
	}
	if cfg.Poller.Setpoint == nil || *cfg.Poller.Setpoint != 65.5 {
		t.Errorf("Poller.Setpoint = %v, want 65.5", cfg.Poller.Setpoint)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Serial.BaudRate != 9600 || cfg.Poller.Interval != time.Second {
		t.Errorf("defaults not applied: %+v %+v", cfg.Serial, cfg.Poller)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Logging.Output = %q, want stderr", cfg.Logging.Output)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: "/dev/ttyUSB0"
mqtt:
  broker:
    host: "file-host"
`)
	t.Setenv("PM8SIM_SERIAL_PORT", "/dev/pts/9")
	t.Setenv("PM8SIM_SERIAL_BAUD", "115200")
	t.Setenv("PM8SIM_MQTT_HOST", "env-host")
	t.Setenv("PM8SIM_MQTT_USERNAME", "user")
	t.Setenv("PM8SIM_MQTT_PASSWORD", "secret")
	t.Setenv("PM8SIM_INFLUXDB_TOKEN", "token")
	t.Setenv("PM8SIM_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Serial.Port != "/dev/pts/9" {
		t.Errorf("Serial.Port = %q, want env override", cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.Broker.Host != "env-host" {
		t.Errorf("MQTT.Broker.Host = %q, want env-host", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Auth.Username != "user" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_BadBaudEnv(t *testing.T) {
	t.Setenv("PM8SIM_SERIAL_BAUD", "fast")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric baud, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Serial.Port = "/dev/pts/1"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Serial.Port = "" }, wantErr: "serial.port"},
		{name: "zero baud", mutate: func(c *Config) { c.Serial.BaudRate = 0 }, wantErr: "serial.baud_rate"},
		{name: "bad data bits", mutate: func(c *Config) { c.Serial.DataBits = 9 }, wantErr: "serial.data_bits"},
		{name: "bad stop bits", mutate: func(c *Config) { c.Serial.StopBits = 3 }, wantErr: "serial.stop_bits"},
		{name: "bad parity", mutate: func(c *Config) { c.Serial.Parity = "X" }, wantErr: "serial.parity"},
		{name: "zero tick", mutate: func(c *Config) { c.Simulator.TickInterval = 0 }, wantErr: "simulator.tick_interval"},
		{name: "unit id zero", mutate: func(c *Config) { c.Poller.UnitID = 0 }, wantErr: "poller.unit_id"},
		{name: "unit id too high", mutate: func(c *Config) { c.Poller.UnitID = 248 }, wantErr: "poller.unit_id"},
		{name: "zero interval", mutate: func(c *Config) { c.Poller.Interval = 0 }, wantErr: "poller.interval"},
		{name: "bad qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "bad log output", mutate: func(c *Config) { c.Logging.Output = "syslog" }, wantErr: "logging.output"},
		{name: "log level case", mutate: func(c *Config) { c.Logging.Level = "DEBUG" }},
		{
			name:    "influx without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "" },
			wantErr: "influxdb.url",
		},
		{
			name:    "database without path",
			mutate:  func(c *Config) { c.Database.Enabled = true; c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "api bad port",
			mutate:  func(c *Config) { c.API.Enabled = true; c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:   "api port ignored when disabled",
			mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error does not wrap ErrInvalid: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_JoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Serial.BaudRate = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "serial.port") || !strings.Contains(err.Error(), "; ") {
		t.Errorf("Validate() error = %v, want both failures joined", err)
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
