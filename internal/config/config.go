package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Verbose   bool
	Log       LogConfig
	Database  DatabaseConfig
	Realtime  RealtimeConfig
	Documents DocumentsConfig
	Roles     RolesConfig
	Tokens    TokensConfig
	Revenue   RevenueConfig
	Metrics   MetricsConfig
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // json or text
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string
}

// RealtimeConfig selects and configures the change-stream transport.
type RealtimeConfig struct {
	Driver string // memory, redis or kafka
	Redis  RedisConfig
	Kafka  KafkaConfig
}

// RedisConfig holds redis pub/sub settings.
type RedisConfig struct {
	Addr          string
	ChannelPrefix string
}

// KafkaConfig holds kafka settings.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// DocumentsConfig holds document store settings.
type DocumentsConfig struct {
	Dir string
}

// RolesConfig maps emails to staff roles ahead of the roster.
type RolesConfig struct {
	Admins    []string
	Operators []string
}

// TokensConfig holds verification token settings.
type TokensConfig struct {
	TTL time.Duration // uniqueness window for issued tokens
}

// RevenueConfig holds revenue reporting settings.
type RevenueConfig struct {
	Timezone       string
	DigestSchedule string // cron spec; empty disables the digest
}

// MetricsConfig holds the prometheus listener settings.
type MetricsConfig struct {
	Addr string // empty disables the listener
}

// Drivers accepted for realtime.driver.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverKafka  = "kafka"
)

// Load reads configuration from Viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Realtime: RealtimeConfig{
			Driver: strings.ToLower(viper.GetString("realtime.driver")),
			Redis: RedisConfig{
				Addr:          viper.GetString("realtime.redis.addr"),
				ChannelPrefix: viper.GetString("realtime.redis.channel_prefix"),
			},
			Kafka: KafkaConfig{
				Brokers:     viper.GetStringSlice("realtime.kafka.brokers"),
				TopicPrefix: viper.GetString("realtime.kafka.topic_prefix"),
			},
		},
		Documents: DocumentsConfig{
			Dir: viper.GetString("documents.dir"),
		},
		Roles: RolesConfig{
			Admins:    viper.GetStringSlice("roles.admins"),
			Operators: viper.GetStringSlice("roles.operators"),
		},
		Tokens: TokensConfig{
			TTL: viper.GetDuration("tokens.ttl"),
		},
		Revenue: RevenueConfig{
			Timezone:       viper.GetString("revenue.timezone"),
			DigestSchedule: viper.GetString("revenue.digest_schedule"),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("metrics.addr"),
		},
	}

	// Apply defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "printq.db"
	}
	if cfg.Realtime.Driver == "" {
		cfg.Realtime.Driver = DriverMemory
	}
	if cfg.Realtime.Redis.Addr == "" {
		cfg.Realtime.Redis.Addr = "localhost:6379"
	}
	if cfg.Realtime.Redis.ChannelPrefix == "" {
		cfg.Realtime.Redis.ChannelPrefix = "printq"
	}
	if len(cfg.Realtime.Kafka.Brokers) == 0 {
		cfg.Realtime.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Realtime.Kafka.TopicPrefix == "" {
		cfg.Realtime.Kafka.TopicPrefix = "printq"
	}
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = "documents"
	}
	if cfg.Tokens.TTL == 0 {
		cfg.Tokens.TTL = 30 * 24 * time.Hour
	}
	if cfg.Revenue.Timezone == "" {
		cfg.Revenue.Timezone = "Local"
	}

	switch cfg.Realtime.Driver {
	case DriverMemory, DriverRedis, DriverKafka:
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", cfg.Realtime.Driver)
	}

	return cfg, nil
}

// Location resolves the revenue timezone.
func (c RevenueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading revenue timezone: %w", err)
	}
	return loc, nil
}
