// Package config assembles process configuration: defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "taxlens/pkg/platform/strings"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the whole process configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Auth     AuthConfig     `yaml:"auth"`
	Events   EventsConfig   `yaml:"events"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `yaml:"addr"`
	Environment       string        `yaml:"environment"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// AdminToken guards the development encryption endpoint. Empty disables it.
	AdminToken string `yaml:"admin_token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects storage backends. An empty LedgerBackend follows
// Backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	LedgerBackend string `yaml:"ledger_backend"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// KafkaConfig enables the Kafka event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	ClientID          string        `yaml:"client_id"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replication_factor"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	QueueSize         int           `yaml:"queue_size"`
	// The breaker stops producing after BreakerThreshold consecutive failures
	// and probes the broker again every BreakerCooldown.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// OracleConfig drives the in-process oracle.
type OracleConfig struct {
	// SigningSeed is a hex Ed25519 seed. Empty draws a fresh key per process.
	SigningSeed string `yaml:"signing_seed"`
	// CallbackDelay simulates oracle latency. Callbacks are queued only after
	// the requesting transaction commits, whatever the delay.
	CallbackDelay time.Duration `yaml:"callback_delay"`
}

type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	AdvisorRole   string `yaml:"advisor_role"`
	// RequireAdvisor swaps the permissive analysis hook for the role check.
	RequireAdvisor bool `yaml:"require_advisor"`
}

type EventsConfig struct {
	LogCapacity int `yaml:"log_capacity"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			Environment:       "development",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KeyPrefix:    "taxlens:ledger:",
		},
		Kafka: KafkaConfig{
			Topic:             "taxlens.events",
			ClientID:          "taxlens",
			Partitions:        1,
			ReplicationFactor: 1,
			DialTimeout:       10 * time.Second,
			QueueSize:         1024,
			BreakerThreshold:  5,
			BreakerCooldown:   30 * time.Second,
		},
		Oracle: OracleConfig{
			CallbackDelay: 250 * time.Millisecond,
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "taxlens",
			AdvisorRole:   "advisor",
		},
		Events: EventsConfig{LogCapacity: 1000},
	}
}

// Load reads defaults, then the YAML file at path when path is non-empty,
// then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from defaults and the environment, so main
// stays lean. TAXLENS_CONFIG names an optional YAML file.
func FromEnv() (Config, error) {
	return Load(os.Getenv("TAXLENS_CONFIG"))
}

// IsProduction reports whether development conveniences must stay off.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// LedgerBackend resolves the ledger store backend.
func (c Config) LedgerBackend() string {
	if c.Store.LedgerBackend != "" {
		return c.Store.LedgerBackend
	}
	return c.Store.Backend
}

// SigningSeed decodes the oracle seed; nil means none configured.
func (c Config) SigningSeed() ([]byte, error) {
	if c.Oracle.SigningSeed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(c.Oracle.SigningSeed, "0x"))
	if err != nil {
		return nil, fmt.Errorf("oracle signing seed: %w", err)
	}
	return seed, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("store backend %q must be memory or postgres", c.Store.Backend))
	}
	switch c.LedgerBackend() {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("ledger backend %q must be memory, postgres or redis", c.LedgerBackend()))
	}
	if c.Store.Backend == BackendMemory && c.LedgerBackend() == BackendPostgres {
		errs = append(errs, errors.New("postgres ledger requires the postgres store backend"))
	}
	if c.Store.Backend == BackendPostgres && c.Database.URL == "" {
		errs = append(errs, errors.New("database url is required for the postgres backend"))
	}
	if c.LedgerBackend() == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis url is required for the redis ledger"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == Default().Auth.JWTSigningKey {
		errs = append(errs, errors.New("jwt signing key must be set in production"))
	}
	if _, err := c.SigningSeed(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("TAXLENS_ADDR", &c.Server.Addr)
	str("TAXLENS_ENV", &c.Server.Environment)
	dur("TAXLENS_REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	dur("TAXLENS_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("TAXLENS_ADMIN_TOKEN", &c.Server.AdminToken)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("TAXLENS_STORE_BACKEND", &c.Store.Backend)
	str("TAXLENS_LEDGER_BACKEND", &c.Store.LedgerBackend)

	str("DATABASE_URL", &c.Database.URL)
	num("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	num("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	dur("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetime)

	str("REDIS_URL", &c.Redis.URL)
	num("REDIS_POOL_SIZE", &c.Redis.PoolSize)
	num("REDIS_MIN_IDLE_CONNS", &c.Redis.MinIdleConns)
	dur("REDIS_DIAL_TIMEOUT", &c.Redis.DialTimeout)
	dur("REDIS_READ_TIMEOUT", &c.Redis.ReadTimeout)
	dur("REDIS_WRITE_TIMEOUT", &c.Redis.WriteTimeout)
	str("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = pstrings.SplitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_CLIENT_ID", &c.Kafka.ClientID)
	num("KAFKA_QUEUE_SIZE", &c.Kafka.QueueSize)

	str("ORACLE_SIGNING_SEED", &c.Oracle.SigningSeed)
	dur("ORACLE_CALLBACK_DELAY", &c.Oracle.CallbackDelay)

	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.Issuer)
	str("ADVISOR_ROLE", &c.Auth.AdvisorRole)
	flag("REQUIRE_ADVISOR", &c.Auth.RequireAdvisor)

	num("EVENT_LOG_CAPACITY", &c.Events.LogCapacity)
	return errors.Join(errs...)
}
