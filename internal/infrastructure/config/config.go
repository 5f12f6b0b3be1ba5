package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Bambi controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Printer   PrinterConfig   `yaml:"printer"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Serial    SerialConfig    `yaml:"serial"`
	Servo     ServoConfig     `yaml:"servo"`
	Materials MaterialsConfig `yaml:"materials"`
	Bot       BotConfig       `yaml:"bot"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PrinterConfig identifies the Bambu printer on the local network.
type PrinterConfig struct {
	// Host is the printer's LAN address.
	Host string `yaml:"host"`

	// AccessCode is the LAN-mode access code shown on the printer display.
	// It doubles as the MQTT password for user "bblp".
	AccessCode string `yaml:"access_code"`

	// Serial is the printer serial number used in the MQTT topic names.
	Serial string `yaml:"serial"`
}

// MQTTConfig contains MQTT connection settings for the printer's broker.
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

	// InsecureSkipVerify disables certificate verification.
	// Bambu printers present a self-signed certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
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

// SerialConfig contains the actuator link settings.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`

	// ReconnectDelay is the initial wait between open attempts (seconds).
	ReconnectDelay int `yaml:"reconnect_delay"`
}

// ServoConfig holds the door servo calibration angles.
type ServoConfig struct {
	Open  int `yaml:"open" json:"open"`
	Close int `yaml:"close" json:"close"`
}

// MaterialsConfig holds the material profiles and the active selection.
type MaterialsConfig struct {
	ActiveProfileID string                  `yaml:"active_profile_id" json:"active_profile_id"`
	Profiles        []MaterialProfileConfig `yaml:"profiles" json:"profiles"`
}

// MaterialProfileConfig is a named door-open temperature threshold.
type MaterialProfileConfig struct {
	ID       string  `yaml:"id" json:"id"`
	Name     string  `yaml:"name" json:"name"`
	OpenTemp float64 `yaml:"open_temp" json:"open_temp"`
}

// BotConfig holds the job restart bot settings.
type BotConfig struct {
	// CloseDelayMS is the wait after FINISH before the door closes.
	// Default: 20000 when zero.
	CloseDelayMS int `yaml:"close_delay_ms"`

	// ClickCommand is the argv template used to perform a pointer click.
	// The tokens {x} and {y} are replaced with the step coordinates.
	// Empty disables real clicks (steps are logged only).
	ClickCommand []string `yaml:"click_command"`

	// Sequence is the ordered list of click steps that starts a new job.
	Sequence []BotStepConfig `yaml:"sequence"`
}

// BotStepConfig is a single timed pointer click.
type BotStepConfig struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	X            int     `yaml:"x"`
	Y            int     `yaml:"y"`
	DelaySeconds float64 `yaml:"delay_seconds"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains HTTP status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default timing values.
const (
	// DefaultCloseDelay applies when bot.close_delay_ms is absent or zero.
	DefaultCloseDelay = 20 * time.Second

	// bambuMQTTPort is the TLS MQTT port of Bambu printers in LAN mode.
	bambuMQTTPort = 8883

	// bambuMQTTUser is the fixed LAN-mode MQTT username.
	bambuMQTTUser = "bblp"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (MQTT broker/auth from the printer section when unset)
//
// Environment variables follow the pattern: BAMBI_SECTION_KEY
// For example: BAMBI_PRINTER_HOST, BAMBI_SERIAL_PORT
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
	cfg.applyPrinterDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:               bambuMQTTPort,
				TLS:                true,
				InsecureSkipVerify: true,
				ClientID:           "bambi-core",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Serial: SerialConfig{
			BaudRate:       115200,
			ReconnectDelay: 5,
		},
		Servo: ServoConfig{
			Open:  90,
			Close: 0,
		},
		Bot: BotConfig{
			CloseDelayMS: int(DefaultCloseDelay / time.Millisecond),
		},
		Database: DatabaseConfig{
			Path:        "./data/bambi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BAMBI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Printer
	if v := os.Getenv("BAMBI_PRINTER_HOST"); v != "" {
		cfg.Printer.Host = v
	}
	if v := os.Getenv("BAMBI_PRINTER_ACCESS_CODE"); v != "" {
		cfg.Printer.AccessCode = v
	}
	if v := os.Getenv("BAMBI_PRINTER_SERIAL"); v != "" {
		cfg.Printer.Serial = v
	}

	// Serial
	if v := os.Getenv("BAMBI_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}

	// Database
	if v := os.Getenv("BAMBI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("BAMBI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("BAMBI_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// applyPrinterDefaults fills MQTT broker and credentials from the printer
// section when they were not set explicitly.
func (c *Config) applyPrinterDefaults() {
	if c.MQTT.Broker.Host == "" {
		c.MQTT.Broker.Host = c.Printer.Host
	}
	if c.MQTT.Auth.Username == "" {
		c.MQTT.Auth.Username = bambuMQTTUser
	}
	if c.MQTT.Auth.Password == "" {
		c.MQTT.Auth.Password = c.Printer.AccessCode
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Printer.Serial == "" {
		errs = append(errs, "printer.serial is required")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "printer.host (or mqtt.broker.host) is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	if c.Bot.CloseDelayMS < 0 {
		errs = append(errs, "bot.close_delay_ms must not be negative")
	}
	for i, step := range c.Bot.Sequence {
		if step.DelaySeconds < 0 {
			errs = append(errs, fmt.Sprintf("bot.sequence[%d].delay_seconds must not be negative", i))
		}
	}

	seen := make(map[string]bool, len(c.Materials.Profiles))
	for i, p := range c.Materials.Profiles {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("materials.profiles[%d].id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("materials.profiles[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CloseDelay returns the configured close delay, falling back to
// DefaultCloseDelay for an absent or zero value.
func (b BotConfig) CloseDelay() time.Duration {
	if b.CloseDelayMS <= 0 {
		return DefaultCloseDelay
	}
	return time.Duration(b.CloseDelayMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return c.API.GetReadTimeout()
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return c.API.GetWriteTimeout()
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return c.API.GetIdleTimeout()
}

// GetReadTimeout returns the read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
