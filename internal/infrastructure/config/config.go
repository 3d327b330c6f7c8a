package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a room show controller.
// All configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Room      RoomConfig      `yaml:"room"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Media     MediaConfig     `yaml:"media"`
	Audio     AudioConfig     `yaml:"audio"`
	Video     VideoConfig     `yaml:"video"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Device    DeviceConfig    `yaml:"device"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RoomConfig identifies the room this controller instance serves.
type RoomConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	// DefaultScene is the scene (by name, no extension) that a bare trigger
	// — a GPIO button press or a "<room>/scene START" message — starts.
	DefaultScene string `yaml:"default_scene"`
}

// DatabaseConfig contains SQLite database settings for the run-history store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TLS            bool   `yaml:"tls"`
	ClientIDSuffix string `yaml:"client_id_suffix"` // appended to "<room_id>_controller"
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay  int `yaml:"initial_delay_seconds"`
	MaxDelay      int `yaml:"max_delay_seconds"`
	MaxAttempts   int `yaml:"max_attempts"` // 0 = unlimited
	CheckInterval int `yaml:"check_interval_seconds"`
}

// MediaConfig locates scene, command, audio and video assets on disk.
//
// Layout: <RoomDir>/scenes/<room>/<name>.json,
// <RoomDir>/scenes/<room>/commands/<name>.json,
// <RoomDir>/scenes/<room>/audio/*, <RoomDir>/scenes/<room>/videos/*,
// <RoomDir>/scenes/<room>/devices.json.
type MediaConfig struct {
	RoomDir string `yaml:"room_dir"`
}

// AudioConfig tunes the Audio Engine's resilience and defaults.
type AudioConfig struct {
	MaxInitAttempts int     `yaml:"max_init_attempts"`
	InitRetryDelay  int     `yaml:"init_retry_delay_seconds"`
	DefaultVolume   float64 `yaml:"default_volume"`
}

// VideoConfig tunes the Video Engine's subprocess and IPC behaviour.
type VideoConfig struct {
	PlayerBinary        string `yaml:"player_binary"`
	IPCSocketPath       string `yaml:"ipc_socket_path"`
	IdleImagePath       string `yaml:"idle_image_path"`
	HealthCheckInterval int    `yaml:"health_check_interval_seconds"`
	RestartCooldown     int    `yaml:"restart_cooldown_seconds"`
	MaxRestartAttempts  int    `yaml:"max_restart_attempts"`
}

// FeedbackConfig tunes the Feedback Tracker's timeout.
type FeedbackConfig struct {
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// DeviceConfig tunes the Device Registry's staleness window.
type DeviceConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DashboardConfig contains HTTP/WebSocket server settings for the
// observability dashboard's controller-facing surface.
type DashboardConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	LogBufferSize  int    `yaml:"log_buffer_size"`
	WS             WebSocketConfig
	Timeouts       APITimeoutConfig `yaml:"timeouts"`
	CORSOrigins    []string         `yaml:"cors_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry export.
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

// SecurityConfig contains dashboard security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings for the dashboard's control endpoints.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl_minutes"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern ROOMSHOW_SECTION_KEY, e.g.
// ROOMSHOW_MQTT_HOST, ROOMSHOW_ROOM_ID.
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
		Room: RoomConfig{
			ID:           "room1",
			Name:         "Room 1",
			Timezone:     "UTC",
			DefaultScene: "default",
		},
		Database: DatabaseConfig{
			Path:        "./data/roomshow.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay:  1,
				MaxDelay:      60,
				MaxAttempts:   0,
				CheckInterval: 5,
			},
		},
		Media: MediaConfig{
			RoomDir: "./rooms",
		},
		Audio: AudioConfig{
			MaxInitAttempts: 3,
			InitRetryDelay:  5,
			DefaultVolume:   1.0,
		},
		Video: VideoConfig{
			PlayerBinary:        "mpv",
			IPCSocketPath:       "/tmp/roomshow-mpv.sock",
			IdleImagePath:       "./rooms/idle.png",
			HealthCheckInterval: 60,
			RestartCooldown:     10,
			MaxRestartAttempts:  5,
		},
		Feedback: FeedbackConfig{
			TimeoutSeconds: 1.0,
		},
		Device: DeviceConfig{
			TimeoutSeconds: 180,
		},
		Dashboard: DashboardConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			LogBufferSize: 500,
			WS: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
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
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern ROOMSHOW_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMSHOW_ROOM_ID"); v != "" {
		cfg.Room.ID = v
	}
	if v := os.Getenv("ROOMSHOW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ROOMSHOW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROOMSHOW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROOMSHOW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("ROOMSHOW_MEDIA_ROOM_DIR"); v != "" {
		cfg.Media.RoomDir = v
	}
	if v := os.Getenv("ROOMSHOW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("ROOMSHOW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Room.ID == "" {
		errs = append(errs, "room.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.Media.RoomDir == "" {
		errs = append(errs, "media.room_dir is required")
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be between 1 and 65535")
	}
	if c.Feedback.TimeoutSeconds <= 0 {
		errs = append(errs, "feedback.timeout_seconds must be positive")
	}
	if c.Device.TimeoutSeconds <= 0 {
		errs = append(errs, "device.timeout_seconds must be positive")
	}

	// Dashboard control endpoints are privileged (start_scene, stop_scene,
	// run_command, publish); a weak or missing secret would let anyone
	// on the network drive the room's actuators.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set ROOMSHOW_JWT_SECRET)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the dashboard read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the dashboard write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the dashboard idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Dashboard.Timeouts.Idle) * time.Second
}

// ClientID returns the stable MQTT client id for this room controller,
// "<room_id>_controller".
func (c *Config) ClientID() string {
	id := c.Room.ID + "_controller"
	if c.MQTT.Broker.ClientIDSuffix != "" {
		id += "_" + c.MQTT.Broker.ClientIDSuffix
	}
	return id
}
