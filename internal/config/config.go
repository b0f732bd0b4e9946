package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	ProtocolFramed = "framed"
	ProtocolRaw    = "raw"
)

const DefaultSystemPrompt = "You are SBK, an eloquent and insightful AI assistant based on the knowledge, projects, and technical experience of Saptarshi Bhattacharya. " +
	"You communicate with clarity, humility, and precision. Avoid any form of hallucination. Do not make up facts or speak about topics you have no knowledge of. " +
	"Stay strictly within the domain of Saptarshi's work, achievements, or referenced documentation. Always cite if the answer is derived from uploaded documents. " +
	"Politely inform the user if a query is out of scope or irrelevant."

type Config struct {
	ServiceName string           `json:"service_name" yaml:"service_name"`
	Port        int              `json:"port" yaml:"port"`
	LogConfig   logger.LogConfig `json:"log_config" yaml:"log_config"`
	Upload      UploadConfig     `json:"upload" yaml:"upload"`
	Index       IndexConfig      `json:"index" yaml:"index"`
	Splitter    SplitterConfig   `json:"splitter" yaml:"splitter"`
	LLM         LLMConfig        `json:"llm" yaml:"llm"`
	Embedding   EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Retry       RetryConfig      `json:"retry" yaml:"retry"`
	Chat        ChatConfig       `json:"chat" yaml:"chat"`
	Auth        AuthConfig       `json:"auth" yaml:"auth"`
	CORSOrigins []string         `json:"cors_origins" yaml:"cors_origins"`
	Schedule    ScheduleConfig   `json:"schedule" yaml:"schedule"`
}

type FileStoreConfig struct {
	Type string      `json:"type" yaml:"type"`
	Data interface{} `json:"data" yaml:"data"`
}

type UploadConfig struct {
	Store           FileStoreConfig `json:"store" yaml:"store"`
	MaxSizeMB       int64           `json:"max_size_mb" yaml:"max_size_mb"`
	RateLimitMillis int64           `json:"rate_limit_ms" yaml:"rate_limit_ms"`
	RetentionDays   int             `json:"retention_days" yaml:"retention_days"`
}

type IndexConfig struct {
	Type string      `json:"type" yaml:"type"`
	Data interface{} `json:"data" yaml:"data"`
}

type SplitterConfig struct {
	ChunkSize    int  `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap *int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// Overlap returns the configured chunk overlap. An explicit 0 disables overlap.
func (c SplitterConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

type ProviderConfig struct {
	Provider string      `json:"provider" yaml:"provider"`
	Model    string      `json:"model" yaml:"model"`
	Data     interface{} `json:"data" yaml:"data"`
}

type LLMConfig struct {
	ProviderConfig `yaml:",inline"`
	Fallbacks      []ProviderConfig `json:"fallbacks" yaml:"fallbacks"`
	Temperature    float32          `json:"temperature" yaml:"temperature"`
	MaxTokens      int              `json:"max_tokens" yaml:"max_tokens"`
}

type EmbeddingConfig struct {
	ProviderConfig `yaml:",inline"`
	Fallbacks      []ProviderConfig `json:"fallbacks" yaml:"fallbacks"`
	Concurrency    int              `json:"concurrency" yaml:"concurrency"`
	LRUSize        int              `json:"lru_size" yaml:"lru_size"`
	LRUTTLSeconds  int              `json:"lru_ttl_seconds" yaml:"lru_ttl_seconds"`
	CacheDSN       string           `json:"cache_dsn" yaml:"cache_dsn"`
}

type RetryConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int `json:"max_retries" yaml:"max_retries"`
	BaseDelayMS    int `json:"base_delay_ms" yaml:"base_delay_ms"`
}

type ChatConfig struct {
	SystemPrompt       string `json:"system_prompt" yaml:"system_prompt"`
	TopK               int    `json:"top_k" yaml:"top_k"`
	Protocol           string `json:"protocol" yaml:"protocol"`
	ReturnSources      *bool  `json:"return_sources" yaml:"return_sources"`
	CondenseQuestion   bool   `json:"condense_question" yaml:"condense_question"`
	TurnTimeoutSeconds int    `json:"turn_timeout_seconds" yaml:"turn_timeout_seconds"`
	MaxQuestionChars   int    `json:"max_question_chars" yaml:"max_question_chars"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

type ScheduleConfig struct {
	EmbedCacheCleanup string `json:"embed_cache_cleanup" yaml:"embed_cache_cleanup"`
	EmbedCacheMaxDays int    `json:"embed_cache_max_days" yaml:"embed_cache_max_days"`
	UploadCleanup     string `json:"upload_cleanup" yaml:"upload_cleanup"`
}

func (c ChatConfig) SourcesEnabled() bool {
	if c.ReturnSources == nil {
		return true
	}
	return *c.ReturnSources
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when every field is left empty.
func Default() *Config {
	cfg := &Config{Port: 5050}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "SBK Assistant"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Upload.Store.Type == "" {
		cfg.Upload.Store.Type = "local"
	}
	if cfg.Upload.Store.Type == "local" && cfg.Upload.Store.Data == nil {
		cfg.Upload.Store.Data = map[string]interface{}{"dir": "./uploads"}
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "file"
	}
	if cfg.Index.Type == "file" && cfg.Index.Data == nil {
		cfg.Index.Data = map[string]interface{}{"dir": "./vectorstore"}
	}
	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 512
	}
	if cfg.Splitter.ChunkOverlap == nil {
		overlap := 64
		cfg.Splitter.ChunkOverlap = &overlap
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
		if cfg.LLM.Data == nil {
			cfg.LLM.Data = map[string]interface{}{
				"base_url": "http://localhost:8001/v1",
				"api_key":  "vllm-placeholder",
			}
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "SBK/sbk-llm-1"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "hash-384"
	}
	if cfg.Embedding.Concurrency <= 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Retry.TimeoutSeconds == 0 {
		cfg.Retry.TimeoutSeconds = 60
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 500
	}
	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 4
	}
	if cfg.Chat.Protocol == "" {
		cfg.Chat.Protocol = ProtocolFramed
	}
	if cfg.Chat.TurnTimeoutSeconds == 0 {
		cfg.Chat.TurnTimeoutSeconds = 300
	}
	if cfg.Schedule.EmbedCacheMaxDays == 0 {
		cfg.Schedule.EmbedCacheMaxDays = 30
	}
}

func (c *Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Splitter.ChunkSize < 0 || c.Splitter.Overlap() < 0 {
		return fmt.Errorf("splitter sizes must not be negative")
	}
	if c.Splitter.Overlap() >= c.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap must be smaller than splitter.chunk_size")
	}
	switch c.Chat.Protocol {
	case ProtocolFramed, ProtocolRaw:
	default:
		return fmt.Errorf("chat.protocol must be framed or raw")
	}
	if c.Chat.TopK < 0 {
		return fmt.Errorf("chat.top_k must not be negative")
	}
	// -1 disables retries, 0 falls back to the default
	if c.Retry.MaxRetries < -1 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("retry.max_retries must be -1..10, got %d", c.Retry.MaxRetries)
	}
	if c.Upload.RetentionDays < 0 {
		return fmt.Errorf("upload.retention_days must not be negative")
	}
	return nil
}
