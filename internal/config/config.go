package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	NATS   NATSConfig
	Log    LogConfig
	Limits LimitsConfig
	Sweep  SweepConfig
	CORS   CORSConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	// MigrationsPath, when set, makes the server apply pending migrations
	// at startup.
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Timeout bounds every counter-store operation so a slow backend
	// degrades (fail-open admission, memory fallback) instead of stalling.
	Timeout time.Duration
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

// RoleLimit is the admission budget for one role: MaxRequests per
// RequestWindow plus MaxTokens over a fixed 24-hour window.
type RoleLimit struct {
	MaxRequests   int
	RequestWindow time.Duration
	MaxTokens     int64
}

type LimitsConfig struct {
	User       RoleLimit
	Admin      RoleLimit
	SuperAdmin RoleLimit
}

type SweepConfig struct {
	CacheInterval time.Duration
	PlanInterval  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),

			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "codexgate"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "codexgate"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Durations
	cfg.Redis.Timeout, err = parseDuration(k, "redis.timeout", "2s")
	if err != nil {
		return nil, err
	}
	cfg.JWT.AccessExpiry, err = parseDuration(k, "jwt.access.expiry", "15m")
	if err != nil {
		return nil, err
	}
	cfg.Sweep.CacheInterval, err = parseDuration(k, "sweep.cache.interval", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Sweep.PlanInterval, err = parseDuration(k, "sweep.plan.interval", "5m")
	if err != nil {
		return nil, err
	}

	// Per-role admission budgets. Request windows are 60 seconds for every
	// role; token budgets span the fixed 24-hour window.
	cfg.Limits = LimitsConfig{
		User: RoleLimit{
			MaxRequests:   intOr(k, "limits.user.requests", 60),
			RequestWindow: 60 * time.Second,
			MaxTokens:     int64(intOr(k, "limits.user.tokens", 10000)),
		},
		Admin: RoleLimit{
			MaxRequests:   intOr(k, "limits.admin.requests", 120),
			RequestWindow: 60 * time.Second,
			MaxTokens:     int64(intOr(k, "limits.admin.tokens", 50000)),
		},
		SuperAdmin: RoleLimit{
			MaxRequests:   intOr(k, "limits.superadmin.requests", 300),
			RequestWindow: 60 * time.Second,
			MaxTokens:     int64(intOr(k, "limits.superadmin.tokens", 200000)),
		},
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func intOr(k *koanf.Koanf, key string, fallback int) int {
	if v := k.Int(key); v != 0 {
		return v
	}
	return fallback
}
