// Package config provides unified configuration loading for the study engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the study engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Session       SessionConfig       `yaml:"session"`
	Backend       BackendConfig       `yaml:"backend"`
	Answer        AnswerConfig        `yaml:"answer"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Dataset       DatasetConfig       `yaml:"dataset"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite, postgres or bolt
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Bolt     BoltConfig     `yaml:"bolt"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BoltConfig holds bbolt-specific settings.
type BoltConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds cache settings. The cache backs the session store.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// BackendConfig holds generative backend settings.
type BackendConfig struct {
	URL            string        `yaml:"url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// AnswerConfig holds answer routing settings.
type AnswerConfig struct {
	DatasetPolicy       string `yaml:"dataset_policy"` // exact or fuzzy
	EscalationThreshold int    `yaml:"escalation_threshold"`
	MaxChunks           int    `yaml:"max_chunks"`
	HistoryLimit        int    `yaml:"history_limit"`
	ContextCharBudget   int    `yaml:"context_char_budget"`
}

// IngestionConfig holds document ingestion settings.
type IngestionConfig struct {
	ChunkSize         int    `yaml:"chunk_size"`
	KeywordLimit      int    `yaml:"keyword_limit"`
	UploadDir         string `yaml:"upload_dir"`
	InboxDir          string `yaml:"inbox_dir"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
	MaxUploadBytes    int64  `yaml:"max_upload_bytes"`
}

// DatasetConfig holds curated dataset settings.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Dataset.Path != "" {
			cfg.Dataset.Path = ResolveRelativePath(path, cfg.Dataset.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             3000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "phenbot.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Bolt: BoltConfig{
				Path:    "phenbot.bolt",
				Timeout: time.Second,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Backend: BackendConfig{
			URL:            "https://api.groq.com/openai/v1/chat/completions",
			Model:          "llama-3.1-8b-instant",
			Timeout:        5 * time.Second,
			MaxRetries:     0,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Answer: AnswerConfig{
			DatasetPolicy:       "exact",
			EscalationThreshold: 70,
			MaxChunks:           3,
			HistoryLimit:        100,
			ContextCharBudget:   800,
		},
		Ingestion: IngestionConfig{
			ChunkSize:         1000,
			KeywordLimit:      10,
			UploadDir:         "users",
			InboxDir:          "inbox",
			MaxConcurrentJobs: 2,
			MaxUploadBytes:    32 << 20,
		},
		Dataset: DatasetConfig{
			Path: "qa.json",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "phenbot",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "bolt":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Answer.DatasetPolicy != "exact" && c.Answer.DatasetPolicy != "fuzzy" {
		return fmt.Errorf("invalid dataset policy: %s", c.Answer.DatasetPolicy)
	}

	if c.Answer.EscalationThreshold < 0 || c.Answer.EscalationThreshold > 100 {
		return fmt.Errorf("escalation_threshold must be between 0 and 100")
	}

	if c.Answer.MaxChunks < 1 || c.Answer.MaxChunks > 20 {
		return fmt.Errorf("max_chunks must be between 1 and 20")
	}

	if c.Answer.HistoryLimit < 1 {
		return fmt.Errorf("history_limit must be positive")
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend max_retries must not be negative")
	}

	if c.Ingestion.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive")
	}

	if c.Ingestion.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be positive")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "bolt":
		return c.Database.Bolt.Path
	default:
		return c.Database.Postgres.DSN
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	// PORT is honored for PaaS deployments when SERVER_PORT is unset.
	if v := os.Getenv("PORT"); v != "" && os.Getenv("SERVER_PORT") == "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		switch {
		case strings.HasPrefix(v, "sqlite:"):
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		case strings.HasPrefix(v, "bolt:"):
			cfg.Database.Driver = "bolt"
			cfg.Database.Bolt.Path = strings.TrimPrefix(v, "bolt:")
		case strings.HasPrefix(v, "postgres"):
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}

	if v := os.Getenv("BACKEND_MODEL"); v != "" {
		cfg.Backend.Model = v
	}

	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}

	if v := os.Getenv("DATASET_POLICY"); v != "" {
		cfg.Answer.DatasetPolicy = v
	}

	if v := os.Getenv("DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}

	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Ingestion.UploadDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
