package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Web        WebConfig        `yaml:"web"`
	Messaging  MessagingConfig  `yaml:"messaging"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Telematics TelematicsConfig `yaml:"telematics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	SessionSecret      string `yaml:"session_secret"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "kafka" or "mqtt"
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	EventsTopic         string        `yaml:"events_topic"`
	StopEventsTopic     string        `yaml:"stop_events_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	StationID           string        `yaml:"station_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// DispatchConfig holds lifecycle settings. Timezone is used for "now" and
// for interpreting dates when no terminal timezone applies.
type DispatchConfig struct {
	Timezone string `yaml:"timezone"`
}

type TelematicsConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	Database          string        `yaml:"database"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Timeout           time.Duration `yaml:"timeout"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	// SealKey is a base64 32-byte key used to open "sealed:" passwords.
	SealKey           string        `yaml:"seal_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "linehaul.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "linehaul",
				User:     "linehaul",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:               "0.0.0.0",
			Port:               8085,
			SessionSecret:      "change-me-in-production",
			RateLimitPerMinute: 300,
		},
		Messaging: MessagingConfig{
			Backend: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "linehaul",
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "linehaul",
			},
			EventsTopic:         "linehaul.dispatch",
			StopEventsTopic:     "linehaul.stops",
			OutboxDrainInterval: 5 * time.Second,
			StationID:           "linehaul",
		},
		Dispatch: DispatchConfig{
			Timezone: "UTC",
		},
		Telematics: TelematicsConfig{
			Enabled:           false,
			BaseURL:           "https://my.geotab.com/apiv1",
			Timeout:           10 * time.Second,
			SessionTTL:        12 * time.Hour,
			RequestsPerSecond: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// .env and LINEHAUL_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString("LINEHAUL_DB_DRIVER", &c.Database.Driver)
	setString("LINEHAUL_SQLITE_PATH", &c.Database.SQLite.Path)
	setString("LINEHAUL_PG_HOST", &c.Database.Postgres.Host)
	setInt("LINEHAUL_PG_PORT", &c.Database.Postgres.Port)
	setString("LINEHAUL_PG_DATABASE", &c.Database.Postgres.Database)
	setString("LINEHAUL_PG_USER", &c.Database.Postgres.User)
	setString("LINEHAUL_PG_PASSWORD", &c.Database.Postgres.Password)
	setString("LINEHAUL_REDIS_ADDR", &c.Redis.Address)
	setString("LINEHAUL_REDIS_PASSWORD", &c.Redis.Password)
	setInt("LINEHAUL_WEB_PORT", &c.Web.Port)
	setString("LINEHAUL_SESSION_SECRET", &c.Web.SessionSecret)
	setString("LINEHAUL_MESSAGING_BACKEND", &c.Messaging.Backend)
	setString("LINEHAUL_TIMEZONE", &c.Dispatch.Timezone)
	setString("LINEHAUL_TELEMATICS_PASSWORD", &c.Telematics.Password)
	setString("LINEHAUL_SEAL_KEY", &c.Telematics.SealKey)
	setString("LINEHAUL_LOG_LEVEL", &c.Logging.Level)
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Location resolves Dispatch.Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Dispatch.Timezone)
	if err != nil || c.Dispatch.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
