// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Store backends accepted in STORE.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Store   string        `env:"STORE" envDefault:"memory"`
	RoomTTL time.Duration `env:"ROOM_TTL" envDefault:"1h"`

	Redis     Redis
	NATS      NATS
	Postgres  Postgres
	Historian Historian

	// TokenExpireTime is a Go duration, or "never"/"0" for tokens without expiry.
	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	// Key files let several instances verify each other's tokens. Empty means a
	// fresh key pair per process.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
}

type Redis struct {
	Addr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB   int    `env:"REDIS_DB" envDefault:"0"`
}

type NATS struct {
	// URL is empty when cross-instance fanout is disabled.
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"oichokabu.room"`
}

type Postgres struct {
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Host     string `env:"PG_HOST" envDefault:"localhost"`
	Port     string `env:"PG_PORT" envDefault:"5432"`
	Database string `env:"PG_DATABASE" envDefault:"oichokabu"`
}

// Enabled reports whether enough is configured to attempt a connection.
func (p Postgres) Enabled() bool {
	return p.User != ""
}

// ConnString renders a postgres:// URL for pgx.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

type Historian struct {
	QueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"oichokabu_rounds"`
	BatchSize int    `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	FlushMS   int    `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
}

// FlushDelay is the longest a partial batch waits before being written.
func (h Historian) FlushDelay() time.Duration {
	return time.Duration(h.FlushMS) * time.Millisecond
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case StoreMemory, StoreRedis:
	default:
		return Config{}, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StoreRedis, cfg.Store)
	}
	if cfg.Historian.BatchSize < 1 {
		return Config{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", cfg.Historian.BatchSize)
	}
	if _, err := cfg.TokenTTL(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TokenTTL returns the JWT lifetime; zero means tokens never expire.
func (c Config) TokenTTL() (time.Duration, error) {
	switch c.TokenExpireTime {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(c.TokenExpireTime)
	if err != nil {
		return 0, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err)
	}
	return d, nil
}

// NewLogger builds the process logger at LOG_LEVEL.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
