package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. LAB_ADDR.
const EnvPrefix = "LAB"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server     Server
	Decision   Decision
	Submission Submission
	Redis      RedisConfig
	Postgres   PostgresConfig
	Kafka      KafkaConfig
	Logging    Logging
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Decision configures the rule engine and its reference data.
type Decision struct {
	NearExpiryWindowDays int
	StrictJurisdictions  bool
	RulesFile            string
	SnippetsFile         string
}

// Submission selects the store backend and transition policy.
type Submission struct {
	Store                    string
	EnforceStatusTransitions bool
}

// RedisConfig is consumed by the platform redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig is consumed by the platform postgres opener.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig enables the audit topic when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string
	AuditTopic  string
	AuditBuffer int
}

type Logging struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8000")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("near_expiry_window_days", 30)
	v.SetDefault("strict_jurisdictions", false)
	v.SetDefault("rules_file", "")
	v.SetDefault("snippets_file", "")

	v.SetDefault("store", StoreMemory)
	v.SetDefault("enforce_status_transitions", true)

	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 10)
	v.SetDefault("redis_min_idle_conns", 2)
	v.SetDefault("redis_dial_timeout", 5*time.Second)
	v.SetDefault("redis_read_timeout", 3*time.Second)
	v.SetDefault("redis_write_timeout", 3*time.Second)

	v.SetDefault("database_url", "")
	v.SetDefault("database_max_open_conns", 10)
	v.SetDefault("database_max_idle_conns", 5)
	v.SetDefault("database_conn_max_lifetime", 5*time.Minute)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_audit_topic", "compliancelab.audit")
	v.SetDefault("kafka_audit_buffer", 256)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads an optional .env file, then LAB_* environment variables, then
// an optional YAML file named by LAB_CONFIG_FILE. Environment wins over the
// file.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: Server{
			Addr:            v.GetString("addr"),
			RequestTimeout:  v.GetDuration("request_timeout"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		Decision: Decision{
			NearExpiryWindowDays: v.GetInt("near_expiry_window_days"),
			StrictJurisdictions:  v.GetBool("strict_jurisdictions"),
			RulesFile:            v.GetString("rules_file"),
			SnippetsFile:         v.GetString("snippets_file"),
		},
		Submission: Submission{
			Store:                    strings.ToLower(strings.TrimSpace(v.GetString("store"))),
			EnforceStatusTransitions: v.GetBool("enforce_status_transitions"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis_url"),
			PoolSize:     v.GetInt("redis_pool_size"),
			MinIdleConns: v.GetInt("redis_min_idle_conns"),
			DialTimeout:  v.GetDuration("redis_dial_timeout"),
			ReadTimeout:  v.GetDuration("redis_read_timeout"),
			WriteTimeout: v.GetDuration("redis_write_timeout"),
		},
		Postgres: PostgresConfig{
			URL:             v.GetString("database_url"),
			MaxOpenConns:    v.GetInt("database_max_open_conns"),
			MaxIdleConns:    v.GetInt("database_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database_conn_max_lifetime"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitCSV(v.GetString("kafka_brokers")),
			AuditTopic:  v.GetString("kafka_audit_topic"),
			AuditBuffer: v.GetInt("kafka_audit_buffer"),
		},
		Logging: Logging{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Decision.NearExpiryWindowDays < 0 {
		errs = append(errs, errors.New("near_expiry_window_days must be non-negative"))
	}
	switch c.Submission.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis_url is required when store=redis"))
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("database_url is required when store=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Submission.Store))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("kafka_audit_topic is required when kafka_brokers is set"))
	}
	return errors.Join(errs...)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
