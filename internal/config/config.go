// Package config loads the settings of the visionrouter server from a .env
// file and the environment.
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

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Redis     RedisConfig
	DB        DBConfig
	Catalog   CatalogConfig
	Providers ProvidersConfig
	CORS      CORSConfig
	Brand     BrandConfig
}

type ServerConfig struct {
	Host string
	Port int
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string
	Format string
	// File, when set, receives logs instead of stdout and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type LedgerConfig struct {
	Backend   string
	Retention time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DBConfig struct {
	DSN string
}

type CatalogConfig struct {
	// Path of a YAML catalog. Empty uses the built-in one.
	Path        string
	CallTimeout time.Duration
}

type ProvidersConfig struct {
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OpenRouterAPIKey  string
	OpenRouterReferer string
	OpenRouterTitle   string
	PerplexityAPIKey  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type BrandConfig struct {
	// SQLitePath stores brand profiles in a SQLite file. Empty keeps them
	// in memory.
	SQLitePath string
}

// Load reads .env from the working directory, if present, then the
// environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is ignored.
func LoadFile(envFile string) (*Config, error) {
	k := koanf.New(".")
	keyFn := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(envFile), dotenv.ParserEnv("", ".", keyFn))

	// Load environment variables (override .env)
	if err := k.Load(env.Provider("", ".", keyFn), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		Log: LogConfig{
			Level:      k.String("log.level"),
			Format:     k.String("log.format"),
			File:       k.String("log.file"),
			MaxSizeMB:  k.Int("log.max.size.mb"),
			MaxBackups: k.Int("log.max.backups"),
		},
		Ledger: LedgerConfig{
			Backend: strings.ToLower(k.String("ledger.backend")),
		},
		Redis: RedisConfig{
			Addr:     k.String("redis.addr"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		DB: DBConfig{
			DSN: k.String("database.url"),
		},
		Catalog: CatalogConfig{
			Path: k.String("catalog.path"),
		},
		Providers: ProvidersConfig{
			GeminiAPIKey:      k.String("gemini.api.key"),
			OpenAIAPIKey:      k.String("openai.api.key"),
			OpenRouterAPIKey:  k.String("openrouter.api.key"),
			OpenRouterReferer: k.String("openrouter.referer"),
			OpenRouterTitle:   k.String("openrouter.title"),
			PerplexityAPIKey:  k.String("perplexity.api.key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Brand: BrandConfig{
			SQLitePath: k.String("brand.sqlite.path"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = LedgerMemory
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	// Parse durations
	var err error
	cfg.Ledger.Retention, err = parseDuration(k.String("ledger.retention"), "1440h")
	if err != nil {
		return nil, fmt.Errorf("parsing ledger retention: %w", err)
	}
	cfg.Catalog.CallTimeout, err = parseDuration(k.String("catalog.call.timeout"), "60s")
	if err != nil {
		return nil, fmt.Errorf("parsing call timeout: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", c.Log.Format)
	}
	switch c.Ledger.Backend {
	case LedgerMemory, LedgerRedis:
	case LedgerPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Retention < 0 {
		return fmt.Errorf("config: ledger retention must not be negative")
	}
	if c.Catalog.CallTimeout <= 0 {
		return fmt.Errorf("config: call timeout must be positive")
	}
	return nil
}

func parseDuration(s, def string) (time.Duration, error) {
	if s == "" {
		s = def
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
