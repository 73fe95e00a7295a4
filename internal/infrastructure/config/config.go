package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device profiles understood by the field node.
const (
	ProfileClimate  = "climate"
	ProfileMoisture = "moisture"
	ProfilePump     = "pump"
)

// Hardware drivers understood by the field node.
const (
	DriverSim    = "sim"
	DriverSerial = "serial"
)

// Device ids are MQTT topic segments, SQL table names and store key
// prefixes; the last is the narrowest (letters, digits, underscore).
// API keys only appear in topics.
var (
	deviceIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{0,63}$`)
	deviceKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)
)

// Config is the root configuration structure for the Gray Logic field node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// NodeConfig identifies this field node.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite telemetry database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StoreConfig locates the KEY=VALUE file holding per-device settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

	// ConnectTimeout bounds the initial dial, retries included (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry mirror.
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

// DeviceConfig describes one physical unit attached to the node.
type DeviceConfig struct {
	// ID is the device identifier registered with the IoT agent.
	// Used as topic segment, store key prefix and telemetry table name.
	ID string `yaml:"id"`

	// Key is the IoT agent API key used to compose the device topics.
	Key string `yaml:"key"`

	// Profile selects the device behaviour: climate, moisture or pump.
	Profile string `yaml:"profile"`

	// Driver selects the hardware channel: sim or serial.
	// Default: sim
	Driver string `yaml:"driver"`

	// Serial configures the serial driver.
	Serial SerialConfig `yaml:"serial"`
}

// SerialConfig configures a serial-attached probe board.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// Timeout is the per-request read timeout (milliseconds).
	// Default: 2000
	Timeout int `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIELDNODE_SECTION_KEY
// For example: FIELDNODE_DATABASE_PATH, FIELDNODE_MQTT_HOST.
// Device credentials use FIELDNODE_DEVICE_<N>_ID and FIELDNODE_DEVICE_<N>_KEY
// where N is the 1-based position in the devices list.
//
// Parameters:
//   - path: Path to the YAML configuration file
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
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "fieldnode-001",
			Name: "Gray Logic Field Node",
		},
		Database: DatabaseConfig{
			Path:        "./data.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Store: StoreConfig{
			Path: ".env",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay:   1,
				MaxDelay:       60,
				ConnectTimeout: 30,
			},
		},
		InfluxDB: InfluxDBConfig{
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
// Environment variables follow the pattern: FIELDNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDNODE_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}

	// Database
	if v := os.Getenv("FIELDNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Store
	if v := os.Getenv("FIELDNODE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// MQTT
	if v := os.Getenv("FIELDNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIELDNODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("FIELDNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIELDNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FIELDNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Device credentials
	for i := range cfg.Devices {
		prefix := fmt.Sprintf("FIELDNODE_DEVICE_%d_", i+1)
		if v := os.Getenv(prefix + "ID"); v != "" {
			cfg.Devices[i].ID = v
		}
		if v := os.Getenv(prefix + "KEY"); v != "" {
			cfg.Devices[i].Key = v
		}
	}
}

// applyDeviceDefaults fills per-device fields left empty in the file.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		d.Profile = strings.ToLower(strings.TrimSpace(d.Profile))
		d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
		if d.Driver == "" {
			d.Driver = DriverSim
		}
		if d.Serial.Baud == 0 {
			d.Serial.Baud = 9600
		}
		if d.Serial.Timeout == 0 {
			d.Serial.Timeout = 2000
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}

	// Ids name SQLite tables, which ignore case.
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		errs = append(errs, d.validate(i)...)
		if d.ID != "" {
			lower := strings.ToLower(d.ID)
			if seen[lower] {
				errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
			}
			seen[lower] = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate returns the problems found in one device entry.
func (d DeviceConfig) validate(index int) []string {
	var errs []string
	field := func(name string) string { return fmt.Sprintf("devices[%d].%s", index, name) }

	if !deviceIDPattern.MatchString(d.ID) {
		errs = append(errs, field("id")+" must match "+deviceIDPattern.String())
	}
	if !deviceKeyPattern.MatchString(d.Key) {
		errs = append(errs, field("key")+" must match "+deviceKeyPattern.String())
	}

	switch d.Profile {
	case ProfileClimate, ProfileMoisture, ProfilePump:
	default:
		errs = append(errs, field("profile")+" must be climate, moisture, or pump")
	}

	switch d.Driver {
	case DriverSim:
	case DriverSerial:
		if d.Serial.Port == "" {
			errs = append(errs, field("serial.port")+" is required for the serial driver")
		}
	default:
		errs = append(errs, field("driver")+" must be sim or serial")
	}

	return errs
}

// ConnectTimeout returns the bound on the initial MQTT dial as a Duration.
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Reconnect.ConnectTimeout) * time.Second
}

// ReadTimeout returns the serial read timeout as a Duration.
func (s SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Millisecond
}
