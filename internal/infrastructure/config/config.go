package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment variable override.
const envPrefix = "STARTERKIT_"

// Config is the root configuration structure for StarterKit Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Settings SettingsConfig `yaml:"settings"`
}

// AppConfig identifies this instance in logs and published events.
type AppConfig struct {
	Name string `yaml:"name"`
	// EnvFile is an optional dotenv file loaded before overrides are applied.
	EnvFile string `yaml:"env_file"`
}

// DatabaseConfig selects the driver and connection for the database helper.
type DatabaseConfig struct {
	// Driver is "sqlite3" (default) or "pgx".
	Driver string `yaml:"driver"`

	// ConnectionString is passed to the driver unchanged. Required for pgx.
	// For sqlite3 it may be left empty when Path is set.
	ConnectionString string `yaml:"connection_string"`

	Path            string `yaml:"path"`
	WALMode         bool   `yaml:"wal_mode"`
	BusyTimeout     int    `yaml:"busy_timeout"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds

	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file log settings.
// The file is written in addition to Output when Enabled.
type FileLoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SettingsConfig holds the defaults returned for settings that were never stored.
type SettingsConfig struct {
	Theme        string `yaml:"theme"`
	Language     string `yaml:"language"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	LastView     string `yaml:"last_view"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Dotenv file (app.env_file, default ".env"; missing file ignored)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: STARTERKIT_SECTION_KEY
// For example: STARTERKIT_DATABASE_PATH, STARTERKIT_API_HOST
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

	if err := loadEnvFile(cfg.App.EnvFile); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads a dotenv file into the process environment.
// Variables already set in the environment take precedence.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "starterkit",
			EnvFile: ".env",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Path:            "./data/starterkit.db",
			WALMode:         true,
			BusyTimeout:     5,
			ConnMaxLifetime: 3600,
			AutoMigrate:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/starterkit.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			},
		},
		MQTT: MQTTConfig{
			TopicPrefix: "starterkit",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "starterkit-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "starterkit",
			BatchSize:     1000,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Settings: SettingsConfig{
			Theme:        "system",
			Language:     "en",
			WindowWidth:  1280,
			WindowHeight: 800,
			LastView:     "home",
		},
	}
}

// envString lists the string fields STARTERKIT_* variables may replace.
func envString(cfg *Config) map[string]*string {
	return map[string]*string{
		"DATABASE_DRIVER": &cfg.Database.Driver,
		"DATABASE_URL":    &cfg.Database.ConnectionString,
		"DATABASE_PATH":   &cfg.Database.Path,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"API_HOST":        &cfg.API.Host,
	}
}

// applyEnvOverrides replaces fields with non-empty STARTERKIT_* variables.
// A non-numeric STARTERKIT_API_PORT is ignored.
func applyEnvOverrides(cfg *Config) {
	for name, field := range envString(cfg) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*field = v
		}
	}
	if v := os.Getenv(envPrefix + "API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.Database.problems()...)
	errs = append(errs, c.Logging.problems()...)
	errs = append(errs, c.MQTT.problems()...)
	errs = append(errs, c.InfluxDB.problems()...)
	errs = append(errs, c.API.problems()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (d DatabaseConfig) problems() []string {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "", "sqlite", "sqlite3":
		if blank(d.Path) && blank(d.ConnectionString) {
			return []string{"database.path or database.connection_string is required for sqlite3"}
		}
	case "pgx", "postgres", "postgresql":
		if blank(d.ConnectionString) {
			return []string{"database.connection_string is required for pgx (set STARTERKIT_DATABASE_URL)"}
		}
	default:
		return []string{fmt.Sprintf("database.driver %q is not supported (use sqlite3 or pgx)", d.Driver)}
	}
	return nil
}

func (l LoggingConfig) problems() []string {
	var errs []string
	if f := strings.ToLower(l.Format); f != "" && f != "json" && f != "text" {
		errs = append(errs, "logging.format must be json or text")
	}
	if l.File.Enabled && l.File.Path == "" {
		errs = append(errs, "logging.file.path is required when file logging is enabled")
	}
	return errs
}

func (m MQTTConfig) problems() []string {
	var errs []string
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if m.Enabled && m.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}
	return errs
}

func (i InfluxDBConfig) problems() []string {
	if i.Enabled && (i.URL == "" || i.Org == "" || i.Bucket == "") {
		return []string{"influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled"}
	}
	return nil
}

func (a APIConfig) problems() []string {
	if a.Enabled && (a.Port < 1 || a.Port > 65535) {
		return []string{"api.port must be between 1 and 65535"}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ReadTimeout returns Read as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return seconds(t.Read) }

// WriteTimeout returns Write as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }

// IdleTimeout returns Idle as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return seconds(t.Idle) }

// MaxLifetime returns ConnMaxLifetime as a Duration.
func (d DatabaseConfig) MaxLifetime() time.Duration { return seconds(d.ConnMaxLifetime) }
