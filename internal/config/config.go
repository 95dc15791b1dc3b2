// Package config handles configuration loading from environment and files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Config holds all configuration for the takedown services.
type Config struct {
	// Service identification
	Service   string `mapstructure:"service"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Redis configuration (distributed per-case locks)
	Redis RedisConfig `mapstructure:"redis"`

	// Workflow configuration
	Workflow WorkflowConfig `mapstructure:"workflow"`

	// Scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Notification configuration
	Notify NotifyConfig `mapstructure:"notify"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the distributed lock backend configuration. When
// Enabled is false, services fall back to in-process locks.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkflowConfig holds SLA budgets and escalation tuning.
type WorkflowConfig struct {
	SLALowHours     int           `mapstructure:"sla_low_hours"`
	SLAMediumHours  int           `mapstructure:"sla_medium_hours"`
	SLAHighHours    int           `mapstructure:"sla_high_hours"`
	SLAUrgentHours  int           `mapstructure:"sla_urgent_hours"`
	ReassignHours   int           `mapstructure:"reassign_hours"`
	MaxEscalations  int           `mapstructure:"max_escalations"`
	EscalationFloor time.Duration `mapstructure:"escalation_floor"`
	MaxLineageDepth int           `mapstructure:"max_lineage_depth"`
	LockWait        time.Duration `mapstructure:"lock_wait"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig holds the SLA sweep configuration.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	WarningWindow   time.Duration `mapstructure:"warning_window"`
	Concurrency     int           `mapstructure:"concurrency"`
	PoisonThreshold int           `mapstructure:"poison_threshold"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// NotifyConfig holds the notification webhook configuration. An empty
// endpoint routes notifications to the structured log.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// Load loads configuration from environment variables and config file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TAKEDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("takedown")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/takedown")
		v.AddConfigPath("$HOME/.takedown")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "takedown")
	v.SetDefault("database.username", "takedown")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Workflow defaults
	v.SetDefault("workflow.sla_low_hours", 72)
	v.SetDefault("workflow.sla_medium_hours", 48)
	v.SetDefault("workflow.sla_high_hours", 24)
	v.SetDefault("workflow.sla_urgent_hours", 12)
	v.SetDefault("workflow.reassign_hours", 24)
	v.SetDefault("workflow.max_escalations", 3)
	v.SetDefault("workflow.escalation_floor", time.Hour)
	v.SetDefault("workflow.max_lineage_depth", 8)
	v.SetDefault("workflow.lock_wait", 5*time.Second)
	v.SetDefault("workflow.lock_ttl", 30*time.Second)

	// Scheduler defaults
	v.SetDefault("scheduler.interval", 5*time.Minute)
	v.SetDefault("scheduler.warning_window", 2*time.Hour)
	v.SetDefault("scheduler.concurrency", 8)
	v.SetDefault("scheduler.poison_threshold", 5)
	v.SetDefault("scheduler.batch_size", 500)

	// Notification defaults
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.retry_count", 3)
}

// Addr returns the server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SLABudgets maps the configured hour budgets onto priorities.
func (c *WorkflowConfig) SLABudgets() map[models.CasePriority]time.Duration {
	return map[models.CasePriority]time.Duration{
		models.PriorityLow:    time.Duration(c.SLALowHours) * time.Hour,
		models.PriorityMedium: time.Duration(c.SLAMediumHours) * time.Hour,
		models.PriorityHigh:   time.Duration(c.SLAHighHours) * time.Hour,
		models.PriorityUrgent: time.Duration(c.SLAUrgentHours) * time.Hour,
	}
}
