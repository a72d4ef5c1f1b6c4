package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shulecore/shulecore/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration (health/metrics listener)
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (tenant resolution cache)
	Redis RedisConfig `yaml:"redis"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Audit configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	HealthPort      string        `yaml:"health_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// AuthConfig holds the signing secret and credential lifetimes.
// Injected into the session service at startup, never read ambiently.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	SessionSweepCron string        `yaml:"session_sweep_cron"`
}

// AuditConfig holds the audit dispatcher configuration
type AuditConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables. If
// SHULE_CONFIG_FILE is set, the YAML file is applied first and environment
// variables override it.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("SHULE_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			Timeout:     10 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       14 * 24 * time.Hour,
			BcryptCost:       12,
			SessionSweepCron: "17 3 * * *",
		},
		Audit: AuditConfig{
			QueueSize:    1024,
			WriteTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.Observability.LogLevelName != "" {
		c.Observability.LogLevel = parseLogLevel(c.Observability.LogLevelName)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SHULE_HOST", c.Server.Host)
	c.Server.Port = getEnv("SHULE_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("SHULE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("SHULE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SHULE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SHULE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("SHULE_POSTGRES_URL", c.Database.URL)
	if v := getEnvInt("SHULE_POSTGRES_MAX_CONNS", 0); v > 0 {
		c.Database.MaxConns = v
	}
	if v := getEnvInt("SHULE_POSTGRES_MIN_CONNS", 0); v > 0 {
		c.Database.MinConns = v
	}
	c.Database.Timeout = getEnvDuration("SHULE_POSTGRES_TIMEOUT", c.Database.Timeout)
	c.Database.MaxLifetime = getEnvDuration("SHULE_POSTGRES_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MaxIdleTime = getEnvDuration("SHULE_POSTGRES_MAX_IDLE_TIME", c.Database.MaxIdleTime)

	c.Redis.Addr = getEnv("SHULE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("SHULE_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("SHULE_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}
	c.Redis.Enabled = getEnvBool("SHULE_REDIS_ENABLED", c.Redis.Enabled)

	c.Auth.JWTSecret = getEnv("SHULE_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTTL = getEnvDuration("SHULE_ACCESS_TTL", c.Auth.AccessTTL)
	c.Auth.RefreshTTL = getEnvDuration("SHULE_REFRESH_TTL", c.Auth.RefreshTTL)
	if v := getEnvInt("SHULE_BCRYPT_COST", 0); v > 0 {
		c.Auth.BcryptCost = v
	}
	c.Auth.SessionSweepCron = getEnv("SHULE_SESSION_SWEEP_CRON", c.Auth.SessionSweepCron)

	if v := getEnvInt("SHULE_AUDIT_QUEUE_SIZE", 0); v > 0 {
		c.Audit.QueueSize = v
	}
	c.Audit.WriteTimeout = getEnvDuration("SHULE_AUDIT_WRITE_TIMEOUT", c.Audit.WriteTimeout)

	if v := getEnv("SHULE_LOG_LEVEL", ""); v != "" {
		c.Observability.LogLevelName = v
		c.Observability.LogLevel = parseLogLevel(v)
	}
	c.Observability.MetricsEnabled = getEnvBool("SHULE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return fmt.Errorf("access TTL must be shorter than refresh TTL")
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("audit queue size must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
