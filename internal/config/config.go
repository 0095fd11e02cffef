package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/inbox-triage/")
	v.AddConfigPath("$HOME/.inbox-triage")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("INBOX_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromFile loads configuration from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := NewEmptyViper()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("INBOX_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// LLM provider defaults
	v.SetDefault("llm.provider", "gemini")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.profile", "")
	v.SetDefault("bedrock.endpoint", "")

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Mail provider defaults
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.token_url", "")
	v.SetDefault("gmail.endpoint", "")
	v.SetDefault("gmail.query", "in:inbox")
	v.SetDefault("gmail.page_size", 100)
	v.SetDefault("gmail.link_format", "https://mail.google.com/mail/u/0/#inbox/%s")

	// Credential defaults
	v.SetDefault("credentials.refresh_margin", "60s")
	v.SetDefault("credentials.encryption_key", "")

	// Fetcher defaults
	v.SetDefault("fetcher.max_body_bytes", 8192)
	v.SetDefault("fetcher.tail_bytes", 1024)
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.initial_backoff", "500ms")
	v.SetDefault("fetcher.max_backoff", "10s")

	// Classifier defaults
	v.SetDefault("classifier.max_prompt_body", 4096)
	v.SetDefault("classifier.max_attempts", 3)
	v.SetDefault("classifier.requests_per_second", 5.0)
	v.SetDefault("classifier.burst", 5)
	v.SetDefault("classifier.broadcast_domains", []string{})
	v.SetDefault("classifier.summary_max_chars", 500)

	// Scan defaults
	v.SetDefault("scan.default_lookback", "48h")
	v.SetDefault("scan.default_limit", 100)
	v.SetDefault("scan.classify_concurrency", 5)

	// Quota defaults
	v.SetDefault("quota.admin_emails", []string{})
	v.SetDefault("quota.admin_user_ids", []string{})

	// Batch defaults
	v.SetDefault("batch.workers", 3)
	v.SetDefault("batch.limit", 50)
	v.SetDefault("batch.lookback", "24h")
	v.SetDefault("batch.user_timeout", "10m")

	// Scheduler defaults
	v.SetDefault("scheduler.cron", "0 8 * * *")

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/inbox_triage.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/inbox_triage?parseTime=true")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// Set overrides a configuration value
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}
