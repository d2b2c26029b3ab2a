package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data source modes.
const (
	DataSourceSynthetic = "synthetic"
	DataSourcePostgres  = "postgres"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DataSource         string        `mapstructure:"DATA_SOURCE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	DictionaryCacheTTL time.Duration `mapstructure:"DICTIONARY_CACHE_TTL"`
	CatalogFile        string        `mapstructure:"CATALOG_FILE"`
	AnalyticsURL       string        `mapstructure:"ANALYTICS_URL"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	DefaultPageSize    int           `mapstructure:"DEFAULT_PAGE_SIZE"`
	WorkspaceTTL       time.Duration `mapstructure:"WORKSPACE_TTL"`
}

var envKeys = []string{
	"PORT", "ENV", "DATA_SOURCE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "DICTIONARY_CACHE_TTL", "CATALOG_FILE", "ANALYTICS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "DEFAULT_PAGE_SIZE", "WORKSPACE_TTL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATA_SOURCE", DataSourceSynthetic)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DICTIONARY_CACHE_TTL", "10m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("WORKSPACE_TTL", "2h")

	// Unmarshal only sees keys viper knows about.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.DataSource = strings.ToLower(strings.TrimSpace(cfg.DataSource))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether patient data and topics live in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.DataSource == DataSourcePostgres
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.DataSource {
	case DataSourceSynthetic:
	case DataSourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE is %q", DataSourcePostgres)
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", DataSourceSynthetic, DataSourcePostgres, c.DataSource)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required outside development (ENV=%q)", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > 100 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 100, got %d", c.DefaultPageSize)
	}
	if c.WorkspaceTTL < time.Minute {
		return fmt.Errorf("WORKSPACE_TTL must be at least 1m, got %s", c.WorkspaceTTL)
	}
	return nil
}
