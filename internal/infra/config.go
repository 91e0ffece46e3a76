package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL    string `env:"DATABASE_URL"`
	PGHost         string `env:"PGHOST" envDefault:"localhost"`
	PGPort         int    `env:"PGPORT" envDefault:"5432"`
	PGUser         string `env:"PGUSER" envDefault:"clash"`
	PGPassword     string `env:"PGPASSWORD" envDefault:"clash"`
	PGDatabase     string `env:"PGDATABASE" envDefault:"clash"`
	PGMaxConns     int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	MigrationsDir  string `env:"MIGRATIONS_DIR"`

	// JWT
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry   time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTResolverExpiry time.Duration `env:"JWT_RESOLVER_EXPIRY" envDefault:"1h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"clash"`
	KafkaGroupID     string `env:"KAFKA_GROUP_ID" envDefault:"match-recorder"`

	// Outbox relay
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxRetention    time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`

	// Push
	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"clash.games"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Lifecycle
	LifecycleTimeout time.Duration `env:"LIFECYCLE_TIMEOUT" envDefault:"5s"`
	WriteRateLimit   int           `env:"WRITE_RATE_LIMIT" envDefault:"30"`
	DefaultToken     string        `env:"DEFAULT_TOKEN" envDefault:"SOL"`
	DefaultDuration  time.Duration `env:"DEFAULT_DURATION" envDefault:"300s"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.PGMaxConns <= 0 {
		return fmt.Errorf("PG_MAX_CONNS must be positive")
	}
	if c.LifecycleTimeout <= 0 {
		return fmt.Errorf("LIFECYCLE_TIMEOUT must be positive")
	}
	if c.DefaultDuration < time.Second {
		return fmt.Errorf("DEFAULT_DURATION must be at least 1s")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Origins splits CORS_ALLOWED_ORIGINS into a list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// WatchConfig configures the terminal observer.
type WatchConfig struct {
	APIURL         string        `env:"WATCH_API_URL" envDefault:"http://localhost:3200"`
	Token          string        `env:"WATCH_TOKEN"`
	PollInterval   time.Duration `env:"WATCH_POLL_INTERVAL" envDefault:"10s"`
	TickInterval   time.Duration `env:"WATCH_TICK_INTERVAL" envDefault:"1s"`
	RequestTimeout time.Duration `env:"WATCH_REQUEST_TIMEOUT" envDefault:"5s"`
	SyncClock      bool          `env:"WATCH_SYNC_CLOCK" envDefault:"false"`
	UseWebSocket   bool          `env:"WATCH_USE_WEBSOCKET" envDefault:"false"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"clash.games"`
}

// LoadWatchConfig parses the observer's environment.
func LoadWatchConfig() (*WatchConfig, error) {
	cfg := &WatchConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse watch config: %w", err)
	}
	if cfg.PollInterval <= 0 || cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("WATCH_POLL_INTERVAL and WATCH_TICK_INTERVAL must be positive")
	}
	return cfg, nil
}
