package model

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete rowlabel configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Dataset     DatasetConfig     `yaml:"dataset" mapstructure:"dataset"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// LLMConfig describes the remote completion service
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKeyEnv   string        `yaml:"api_key_env" mapstructure:"api_key_env"` // name of the env var holding the key
	APIKey      string        `yaml:"-" mapstructure:"-"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"` // per attempt
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
}

// DatasetConfig describes the labeled file layout
type DatasetConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	StandardPath  string `yaml:"standard_path" mapstructure:"standard_path"`
	InputColumn   string `yaml:"input_column" mapstructure:"input_column"`
	OutputColumn  string `yaml:"output_column" mapstructure:"output_column"`
	MetadataLines int    `yaml:"metadata_lines" mapstructure:"metadata_lines"`
	BatchSaveSize int    `yaml:"batch_save_size" mapstructure:"batch_save_size"`
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"`             // row workers draining the queue
	MaxInFlight int `yaml:"max_in_flight" mapstructure:"max_in_flight"` // classification permits
}

// RateLimitConfig is the aggregate request budget
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// RetryConfig controls per-row retries
type RetryConfig struct {
	Attempts  int           `yaml:"attempts" mapstructure:"attempts"`
	JitterMin time.Duration `yaml:"jitter_min" mapstructure:"jitter_min"`
	JitterMax time.Duration `yaml:"jitter_max" mapstructure:"jitter_max"`
}

// CacheConfig controls the optional label cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"` // empty = memory only
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// HTTPConfig holds transport settings for the remote service
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// LogConfig selects log level and encoder
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			BaseURL:   "https://api.moonshot.cn/v1",
			Model:     "kimi-k2-turbo-preview",
			APIKeyEnv: "MOONSHOT_API_KEY",
			Timeout:   60 * time.Second,
		},
		Dataset: DatasetConfig{
			StandardPath:  "standard.md",
			InputColumn:   "评论内容",
			OutputColumn:  "标注",
			MetadataLines: 6,
			BatchSaveSize: 20,
		},
		Concurrency: ConcurrencyConfig{
			Workers:     50,
			MaxInFlight: 50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 200,
		},
		Retry: RetryConfig{
			Attempts:  3,
			JitterMin: 1 * time.Second,
			JitterMax: 3 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	var errs []error
	if c.Dataset.InputColumn == "" {
		errs = append(errs, errors.New("dataset.input_column is empty"))
	}
	if c.Dataset.OutputColumn == "" {
		errs = append(errs, errors.New("dataset.output_column is empty"))
	}
	if c.Dataset.InputColumn != "" && c.Dataset.InputColumn == c.Dataset.OutputColumn {
		errs = append(errs, errors.New("dataset.input_column and dataset.output_column must differ"))
	}
	if c.Dataset.MetadataLines < 0 {
		errs = append(errs, fmt.Errorf("dataset.metadata_lines must be >= 0, got %d", c.Dataset.MetadataLines))
	}
	if c.Dataset.BatchSaveSize <= 0 {
		errs = append(errs, fmt.Errorf("dataset.batch_save_size must be > 0, got %d", c.Dataset.BatchSaveSize))
	}
	if c.Concurrency.Workers <= 0 {
		errs = append(errs, fmt.Errorf("concurrency.workers must be > 0, got %d", c.Concurrency.Workers))
	}
	if c.Concurrency.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("concurrency.max_in_flight must be > 0, got %d", c.Concurrency.MaxInFlight))
	}
	if c.Retry.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.attempts must be > 0, got %d", c.Retry.Attempts))
	}
	if c.Retry.JitterMin < 0 || c.Retry.JitterMax < c.Retry.JitterMin {
		errs = append(errs, fmt.Errorf("retry jitter range [%v, %v] is invalid", c.Retry.JitterMin, c.Retry.JitterMax))
	}
	return errors.Join(errs...)
}
