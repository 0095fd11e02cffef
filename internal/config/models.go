package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	// Profile names a shared AWS config profile; empty uses the default chain
	Profile     string
	// Endpoint overrides the Bedrock runtime endpoint, e.g. a VPC endpoint
	Endpoint    string
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GmailConfig represents the mail provider configuration
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Endpoint     string
	Query        string
	PageSize     int64
	LinkFormat   string
}

// FetcherConfig controls paging and retries of the message fetcher
type FetcherConfig struct {
	MaxBodyBytes   int
	TailBytes      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ClassifierConfig controls the classification pipeline
type ClassifierConfig struct {
	MaxPromptBody     int
	MaxAttempts       int
	RequestsPerSecond float64
	Burst             int
	BroadcastDomains  []string
	SummaryMaxChars   int
}

// ScanConfig controls single scans
type ScanConfig struct {
	DefaultLookback     time.Duration
	DefaultLimit        int
	ClassifyConcurrency int
	RefreshMargin       time.Duration
	AdminEmails         []string
	AdminUserIDs        []string
}

// BatchConfig controls the multi-user batch driver
type BatchConfig struct {
	Workers     int
	Limit       int
	Lookback    time.Duration
	UserTimeout time.Duration
	Schedule    string
}

// StoreConfig selects and configures the record store backend
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
	// TokenKey enables encryption of stored OAuth tokens when set
	TokenKey string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		Profile:     c.GetString("bedrock.profile"),
		Endpoint:    c.GetString("bedrock.endpoint"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGmail returns the mail provider configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		ClientID:     c.GetString("gmail.client_id"),
		ClientSecret: c.GetString("gmail.client_secret"),
		TokenURL:     c.GetString("gmail.token_url"),
		Endpoint:     c.GetString("gmail.endpoint"),
		Query:        c.GetString("gmail.query"),
		PageSize:     int64(c.GetInt("gmail.page_size")),
		LinkFormat:   c.GetString("gmail.link_format"),
	}
}

// GetFetcher returns the fetcher configuration
func (c *Config) GetFetcher() (FetcherConfig, error) {
	initial, err := c.GetDuration("fetcher.initial_backoff")
	if err != nil {
		return FetcherConfig{}, err
	}
	maxBackoff, err := c.GetDuration("fetcher.max_backoff")
	if err != nil {
		return FetcherConfig{}, err
	}
	return FetcherConfig{
		MaxBodyBytes:   c.GetInt("fetcher.max_body_bytes"),
		TailBytes:      c.GetInt("fetcher.tail_bytes"),
		MaxAttempts:    c.GetInt("fetcher.max_attempts"),
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
	}, nil
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		MaxPromptBody:     c.GetInt("classifier.max_prompt_body"),
		MaxAttempts:       c.GetInt("classifier.max_attempts"),
		RequestsPerSecond: c.GetFloat64("classifier.requests_per_second"),
		Burst:             c.GetInt("classifier.burst"),
		BroadcastDomains:  c.GetStringSlice("classifier.broadcast_domains"),
		SummaryMaxChars:   c.GetInt("classifier.summary_max_chars"),
	}
}

// GetScan returns the scan configuration
func (c *Config) GetScan() (ScanConfig, error) {
	lookback, err := c.GetDuration("scan.default_lookback")
	if err != nil {
		return ScanConfig{}, err
	}
	margin, err := c.GetDuration("credentials.refresh_margin")
	if err != nil {
		return ScanConfig{}, err
	}
	concurrency := c.GetInt("scan.classify_concurrency")
	if concurrency < 1 {
		return ScanConfig{}, fmt.Errorf("scan.classify_concurrency must be positive, got %d", concurrency)
	}
	return ScanConfig{
		DefaultLookback:     lookback,
		DefaultLimit:        c.GetInt("scan.default_limit"),
		ClassifyConcurrency: concurrency,
		RefreshMargin:       margin,
		AdminEmails:         c.GetStringSlice("quota.admin_emails"),
		AdminUserIDs:        c.GetStringSlice("quota.admin_user_ids"),
	}, nil
}

// GetBatch returns the batch configuration
func (c *Config) GetBatch() (BatchConfig, error) {
	lookback, err := c.GetDuration("batch.lookback")
	if err != nil {
		return BatchConfig{}, err
	}
	timeout, err := c.GetDuration("batch.user_timeout")
	if err != nil {
		return BatchConfig{}, err
	}
	return BatchConfig{
		Workers:     c.GetInt("batch.workers"),
		Limit:       c.GetInt("batch.limit"),
		Lookback:    lookback,
		UserTimeout: timeout,
		Schedule:    c.GetString("scheduler.cron"),
	}, nil
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
		TokenKey:   c.GetString("credentials.encryption_key"),
	}
}
