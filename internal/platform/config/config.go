package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"haven/internal/audit/models"
	strutil "haven/pkg/platform/strings"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Audit     Audit
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Identity  Identity
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
}

// IsProduction reports whether the service runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Audit configures the audit log pipeline. MasterKey is the raw AUDIT_LOG_KEY
// value; it is decoded and split into subkeys by the audit keys package.
type Audit struct {
	MasterKey             string
	FlushInterval         time.Duration
	BatchSize             int
	StoreTimeout          time.Duration
	RetentionDays         int
	SecurityRetentionDays int

	FailedLoginsPerHour    int
	PHIAccessPerUserHour   int
	SuspiciousScoreAlertAt int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
}

// Identity configures validation of identity-provider tokens.
type Identity struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type RateLimit struct {
	// ActionsFile optionally overrides the built-in action table (YAML).
	ActionsFile   string
	SweepInterval time.Duration
}

// FromEnv builds the configuration from environment variables so main stays lean.
// A missing AUDIT_LOG_KEY is fatal: the audit log never runs with a generated key.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		Server: Server{
			Addr:        r.str("HAVEN_ADDR", ":8080"),
			Environment: r.str("ENVIRONMENT", "development"),
			LogLevel:    r.str("LOG_LEVEL", "info"),
		},
		Audit: Audit{
			MasterKey:              strings.TrimSpace(getenv("AUDIT_LOG_KEY")),
			FlushInterval:          r.duration("AUDIT_FLUSH_INTERVAL", 5*time.Second),
			BatchSize:              r.integer("AUDIT_BATCH_SIZE", 100),
			StoreTimeout:           r.duration("AUDIT_STORE_TIMEOUT", 10*time.Second),
			RetentionDays:          r.integer("AUDIT_RETENTION_DAYS", models.RetentionGeneralDays),
			SecurityRetentionDays:  r.integer("AUDIT_SECURITY_RETENTION_DAYS", models.RetentionSecurityDays),
			FailedLoginsPerHour:    r.integer("AUDIT_ALERT_FAILED_LOGINS_PER_HOUR", 10),
			PHIAccessPerUserHour:   r.integer("AUDIT_ALERT_PHI_ACCESS_PER_USER", 50),
			SuspiciousScoreAlertAt: r.integer("AUDIT_ALERT_SUSPICIOUS_SCORE", 75),
		},
		Database: DatabaseConfig{
			URL:             getenv("DATABASE_URL"),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getenv("REDIS_URL"),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    strutil.SplitList(getenv("KAFKA_BROKERS")),
			AlertTopic: r.str("KAFKA_ALERT_TOPIC", "haven.audit.alerts"),
		},
		Identity: Identity{
			JWTSecret: getenv("IDP_JWT_SECRET"),
			Issuer:    getenv("IDP_ISSUER"),
			Audience:  getenv("IDP_AUDIENCE"),
		},
		RateLimit: RateLimit{
			ActionsFile:   getenv("RATE_LIMITS_FILE"),
			SweepInterval: r.duration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
	}
	if r.err != nil {
		return Config{}, r.err
	}

	if cfg.Audit.MasterKey == "" {
		return Config{}, fmt.Errorf("%w: AUDIT_LOG_KEY is required", models.ErrConfiguration)
	}
	if cfg.Audit.BatchSize <= 0 {
		return Config{}, fmt.Errorf("AUDIT_BATCH_SIZE must be positive")
	}
	if cfg.Audit.FlushInterval <= 0 {
		return Config{}, fmt.Errorf("AUDIT_FLUSH_INTERVAL must be positive")
	}
	// Retention can be raised, never lowered below the regulatory floors.
	cfg.Audit.RetentionDays = max(cfg.Audit.RetentionDays, models.RetentionGeneralDays)
	cfg.Audit.SecurityRetentionDays = max(cfg.Audit.SecurityRetentionDays, models.RetentionSecurityDays, cfg.Audit.RetentionDays)
	if cfg.Identity.JWTSecret == "" && cfg.Server.IsProduction() {
		return Config{}, fmt.Errorf("IDP_JWT_SECRET is required in production")
	}
	if cfg.Identity.JWTSecret == "" {
		cfg.Identity.JWTSecret = "dev-secret-key-change-in-production"
	}
	return cfg, nil
}

// reader remembers the first malformed value so FromEnv reports it once.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
