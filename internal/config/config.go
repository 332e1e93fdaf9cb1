// Package config loads OrderFlow's process-level configuration from a
// YAML file with environment-variable overrides. Tenant-level settings
// (thresholds, budgets, currencies) live in the database, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the worker binary.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Worker      WorkerConfig      `yaml:"worker"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds listener ports for the process.
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	HealthPort  string `yaml:"health_port"`
}

// LLMConfig configures the LLM provider used for extraction fallback.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "anthropic" or "bedrock"
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	VisionModel string        `yaml:"vision_model"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
}

// EmbeddingConfig configures the embedding provider used by matching.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Dim      int    `yaml:"dim"`
}

// ObjectStoreConfig configures the content-addressed artifact store.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// BasePath is the root directory of the filesystem object store the
	// worker uses; it defaults to ./data/objects when empty.
	BasePath string `yaml:"base_path"`
}

// WorkerConfig tunes the background orchestrator.
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	AckPollInterval time.Duration `yaml:"ack_poll_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ExtractionConfig holds process-wide extraction limits. Per-tenant
// thresholds override these from tenant settings.
type ExtractionConfig struct {
	MaxPagesForLLM   int     `yaml:"max_pages_for_llm"`
	TriggerThreshold float64 `yaml:"llm_trigger_confidence"`
	DefaultCurrency  string  `yaml:"default_currency"`
}

// LoggingConfig controls logrus setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromEnv builds a Config purely from environment variables and
// defaults, for deployments without a config file.
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := loadFromEnv(config); err != nil {
		return nil, err
	}
	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFromEnv(config *Config) error {
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		config.Server.HealthPort = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		config.LLM.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("LLM_VISION_MODEL"); v != "" {
		config.LLM.VisionModel = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		config.Embedding.Model = v
	}
	if v := os.Getenv("OBJECT_STORE_ENDPOINT"); v != "" {
		config.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORE_BUCKET"); v != "" {
		config.ObjectStore.Bucket = v
	}
	if v := os.Getenv("OBJECT_STORE_ACCESS_KEY"); v != "" {
		config.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORE_SECRET_KEY"); v != "" {
		config.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("OBJECT_STORE_BASE_PATH"); v != "" {
		config.ObjectStore.BasePath = v
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("DEFAULT_CURRENCY"); v != "" {
		config.Extraction.DefaultCurrency = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	return nil
}

func validate(config *Config) error {
	if config.Server.MetricsPort == "" {
		config.Server.MetricsPort = "9090"
	}

	switch config.LLM.Provider {
	case "":
		config.LLM.Provider = "anthropic"
	case "anthropic", "bedrock":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", config.LLM.Provider)
	}

	if config.LLM.Model == "" {
		return fmt.Errorf("LLM model is required")
	}
	if config.LLM.VisionModel == "" {
		config.LLM.VisionModel = config.LLM.Model
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 40 * time.Second
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 8192
	}
	if config.LLM.Temperature < 0.0 || config.LLM.Temperature > 1.0 {
		return fmt.Errorf("LLM temperature must be between 0.0 and 1.0")
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-3-small"
	}
	if config.Embedding.Dim == 0 {
		config.Embedding.Dim = 1536
	}

	if config.ObjectStore.Bucket == "" && config.ObjectStore.BasePath == "" {
		return fmt.Errorf("object store requires a bucket or a base path")
	}

	if config.Worker.Concurrency <= 0 {
		config.Worker.Concurrency = 4
	}
	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 5 * time.Second
	}
	if config.Worker.AckPollInterval == 0 {
		config.Worker.AckPollInterval = 60 * time.Second
	}
	if config.Worker.ShutdownTimeout == 0 {
		config.Worker.ShutdownTimeout = 30 * time.Second
	}

	if config.Extraction.MaxPagesForLLM <= 0 {
		config.Extraction.MaxPagesForLLM = 20
	}
	if config.Extraction.TriggerThreshold <= 0 {
		config.Extraction.TriggerThreshold = 0.60
	}
	if config.Extraction.DefaultCurrency == "" {
		config.Extraction.DefaultCurrency = "EUR"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}

	return nil
}
