// Package config provides configuration management for Recall.
// Settings are resolved in layers: built-in defaults, an optional YAML
// file, an optional .env file, and finally environment variables with the
// RECALL_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/recall/pkg/types"
)

// Storage engines.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// ProviderNone disables the configured default embedding profile.
const ProviderNone = "none"

// DefaultProfileID is the id given to the profile derived from the
// embedding section.
const DefaultProfileID = "config-default"

// Config holds all configuration settings for the Recall application.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Backup    BackupConfig    `yaml:"backup"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite, postgres or memory (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Directory holding recall.db (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Required when Engine is postgres
}

// EmbeddingConfig describes the fallback embedding profile and the
// outbound call limits shared by every profile.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"`   // ollama, openai or none (default: ollama)
	OllamaURL     string `yaml:"ollama_url"` // default: http://localhost:11434
	OllamaModel   string `yaml:"ollama_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	Dimensions    int    `yaml:"dimensions"`

	Timeout            time.Duration `yaml:"timeout"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	Burst              int           `yaml:"burst"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

// SearchConfig bounds result sizes and background writes.
type SearchConfig struct {
	DefaultLimit        int           `yaml:"default_limit"`
	MaxLimit            int           `yaml:"max_limit"`
	AccessUpdateTimeout time.Duration `yaml:"access_update_timeout"`
}

// IndexConfig controls vector index persistence.
type IndexConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// BackupConfig controls SQLite backups.
type BackupConfig struct {
	Dir  string `yaml:"dir"`  // default: <data_path>/backups
	Keep int    `yaml:"keep"` // Backups retained (default: 10)
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text or json (default: text)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   EngineSQLite,
			DataPath: "./data",
		},
		Embedding: EmbeddingConfig{
			Provider:           "ollama",
			OllamaURL:          "http://localhost:11434",
			OllamaModel:        "nomic-embed-text",
			OpenAIModel:        "text-embedding-3-small",
			Timeout:            30 * time.Second,
			BreakerMaxFailures: 3,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:        10,
			MaxLimit:            100,
			AccessUpdateTimeout: 5 * time.Second,
		},
		Index: IndexConfig{
			FlushInterval: 30 * time.Second,
		},
		Backup: BackupConfig{
			Keep: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from defaults and environment variables.
func LoadConfig() (*Config, error) {
	return Load("", "")
}

// Load builds a Config from defaults, then yamlPath and envFile when they
// are non-empty, then RECALL_* environment variables. Values from envFile
// never override variables already set in the process environment.
func Load(yamlPath, envFile string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := cfg.loadYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", envFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays RECALL_* environment variables onto c.
func (c *Config) applyEnv() {
	c.Storage.Engine = getEnv("RECALL_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("RECALL_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("RECALL_POSTGRES_DSN", c.Storage.PostgresDSN)

	e := &c.Embedding
	e.Provider = getEnv("RECALL_EMBEDDING_PROVIDER", e.Provider)
	e.OllamaURL = getEnv("RECALL_OLLAMA_URL", e.OllamaURL)
	e.OllamaModel = getEnv("RECALL_OLLAMA_MODEL", e.OllamaModel)
	e.OpenAIAPIKey = getEnv("RECALL_OPENAI_API_KEY", e.OpenAIAPIKey)
	e.OpenAIBaseURL = getEnv("RECALL_OPENAI_BASE_URL", e.OpenAIBaseURL)
	e.OpenAIModel = getEnv("RECALL_OPENAI_MODEL", e.OpenAIModel)
	e.Dimensions = getEnvInt("RECALL_EMBEDDING_DIMENSIONS", e.Dimensions)
	e.Timeout = getEnvDuration("RECALL_EMBEDDING_TIMEOUT", e.Timeout)
	e.RequestsPerSecond = getEnvFloat("RECALL_EMBEDDING_RPS", e.RequestsPerSecond)
	e.Burst = getEnvInt("RECALL_EMBEDDING_BURST", e.Burst)
	e.BreakerMaxFailures = getEnvInt("RECALL_BREAKER_MAX_FAILURES", e.BreakerMaxFailures)
	e.BreakerOpenTimeout = getEnvDuration("RECALL_BREAKER_OPEN_TIMEOUT", e.BreakerOpenTimeout)

	c.Search.DefaultLimit = getEnvInt("RECALL_SEARCH_DEFAULT_LIMIT", c.Search.DefaultLimit)
	c.Search.MaxLimit = getEnvInt("RECALL_SEARCH_MAX_LIMIT", c.Search.MaxLimit)
	c.Search.AccessUpdateTimeout = getEnvDuration("RECALL_ACCESS_UPDATE_TIMEOUT", c.Search.AccessUpdateTimeout)

	c.Index.FlushInterval = getEnvDuration("RECALL_FLUSH_INTERVAL", c.Index.FlushInterval)

	c.Backup.Dir = getEnv("RECALL_BACKUP_DIR", c.Backup.Dir)
	c.Backup.Keep = getEnvInt("RECALL_BACKUP_KEEP", c.Backup.Keep)

	c.Log.Level = getEnv("RECALL_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("RECALL_LOG_FORMAT", c.Log.Format)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case EngineSQLite, EngineMemory:
	case EnginePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: postgres engine requires a DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	if !strings.EqualFold(c.Embedding.Provider, ProviderNone) {
		if _, err := types.ParseProvider(c.Embedding.Provider); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.Embedding.Dimensions < 0 {
		return errors.New("config: embedding dimensions must not be negative")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return errors.New("config: requests per second must not be negative")
	}

	if c.Search.DefaultLimit <= 0 {
		return errors.New("config: search default limit must be positive")
	}
	if c.Search.MaxLimit <= 0 {
		return errors.New("config: search max limit must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("config: search default limit %d exceeds max limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Index.FlushInterval <= 0 {
		return errors.New("config: index flush interval must be positive")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// BackupDir returns the configured backup directory, defaulting to a
// backups directory under the data path.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataPath, "backups")
}

// DataFile is the SQLite database file used by the sqlite engine.
func (c *Config) DataFile() string {
	return filepath.Join(c.Storage.DataPath, "recall.db")
}

// DefaultProfile derives an embedding profile from the embedding section,
// for deployments that do not store profiles. It returns nil when the
// provider is "none".
func (c *Config) DefaultProfile() *types.EmbeddingProfile {
	if strings.EqualFold(c.Embedding.Provider, ProviderNone) {
		return nil
	}
	provider, err := types.ParseProvider(c.Embedding.Provider)
	if err != nil {
		return nil
	}

	p := &types.EmbeddingProfile{
		ID:         DefaultProfileID,
		Provider:   provider,
		Dimensions: c.Embedding.Dimensions,
		IsDefault:  true,
	}
	switch provider {
	case types.ProviderOllama:
		p.BaseURL = c.Embedding.OllamaURL
		p.ModelName = c.Embedding.OllamaModel
	case types.ProviderOpenAI:
		p.BaseURL = c.Embedding.OpenAIBaseURL
		p.ModelName = c.Embedding.OpenAIModel
		p.APIKeyRef = c.Embedding.OpenAIAPIKey
	}
	return p
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("30s", "1m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
