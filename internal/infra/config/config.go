// Package config loads client configuration from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"rerank-orchestrator/internal/domain"
)

// Config holds everything the client needs at construction time. All values
// are supplied up front; nothing is read from the environment afterwards.
type Config struct {
	// Reranking service
	RerankAPIKey     string        `env:"RERANK_API_KEY"`
	RerankBaseURL    string        `env:"RERANK_BASE_URL" envDefault:"https://api.zeroentropy.dev/v1"`
	RerankModel      string        `env:"RERANK_MODEL" envDefault:"zerank-1"`
	RerankTimeout    time.Duration `env:"RERANK_TIMEOUT" envDefault:"30s"`
	RerankMaxRetries int           `env:"RERANK_MAX_RETRIES" envDefault:"3"`
	RerankRetryDelay time.Duration `env:"RERANK_RETRY_DELAY" envDefault:"1s"`

	// Search engine
	SearchURL     string        `env:"MEILI_URL" envDefault:"http://localhost:7700"`
	SearchAPIKey  string        `env:"MEILI_API_KEY"`
	SearchTimeout time.Duration `env:"MEILI_TIMEOUT" envDefault:"30s"`

	// Ranking defaults, overridable per call
	TopKInitial     int     `env:"TOP_K_INITIAL" envDefault:"100"`
	TopKRerank      int     `env:"TOP_K_RERANK" envDefault:"20"`
	TopKFinal       int     `env:"TOP_K_FINAL" envDefault:"10"`
	CombineScores   bool    `env:"COMBINE_SCORES" envDefault:"true"`
	RetrievalWeight float64 `env:"RETRIEVAL_WEIGHT" envDefault:"0.3"`
	RerankWeight    float64 `env:"RERANK_WEIGHT" envDefault:"0.7"`

	// Outbound limits, shared by all searches through one client
	MaxConcurrentRequests int `env:"MAX_CONCURRENT_REQUESTS" envDefault:"10"`
	RequestsPerMinute     int `env:"REQUESTS_PER_MINUTE" envDefault:"1000"`
	ConnectionPoolSize    int `env:"CONNECTION_POOL_SIZE" envDefault:"20"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

// LoadFile is Load with an explicit env file, for the CLI --config flag.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, &domain.ConfigError{Field: "config_file", Reason: err.Error()}
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, &domain.ConfigError{Field: "environment", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot run with. The search
// limit relationship is checked here once more so a bad default set fails at
// construction rather than on the first call.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RerankAPIKey) == "" {
		return &domain.ConfigError{Field: "RERANK_API_KEY", Reason: "reranking API credential is required"}
	}
	if err := validateURL("RERANK_BASE_URL", c.RerankBaseURL); err != nil {
		return err
	}
	if err := validateURL("MEILI_URL", c.SearchURL); err != nil {
		return err
	}
	if c.MaxConcurrentRequests < 1 {
		return &domain.ConfigError{Field: "MAX_CONCURRENT_REQUESTS", Reason: "must be positive"}
	}
	if c.RequestsPerMinute < 0 {
		return &domain.ConfigError{Field: "REQUESTS_PER_MINUTE", Reason: "must not be negative"}
	}
	if c.RerankMaxRetries < 1 {
		return &domain.ConfigError{Field: "RERANK_MAX_RETRIES", Reason: "must be positive"}
	}
	return c.SearchConfig().Validate()
}

func validateURL(field, value string) error {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return &domain.ConfigError{Field: field, Reason: fmt.Sprintf("%q must start with http:// or https://", value)}
	}
	return nil
}

// SearchConfig materializes the per-call ranking defaults.
func (c *Config) SearchConfig() domain.SearchConfig {
	return domain.SearchConfig{
		TopKInitial:   c.TopKInitial,
		TopKRerank:    c.TopKRerank,
		TopKFinal:     c.TopKFinal,
		Model:         c.RerankModel,
		CombineScores: c.CombineScores,
		Weights: domain.Weights{
			Retrieval: c.RetrievalWeight,
			Rerank:    c.RerankWeight,
		},
	}
}

// Redacted returns a printable view of the configuration with the
// credential masked, for the CLI config command.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"rerank_api_key":          mask(c.RerankAPIKey),
		"rerank_base_url":         c.RerankBaseURL,
		"rerank_model":            c.RerankModel,
		"rerank_timeout":          c.RerankTimeout.String(),
		"rerank_max_retries":      c.RerankMaxRetries,
		"search_url":              c.SearchURL,
		"search_api_key":          mask(c.SearchAPIKey),
		"search_timeout":          c.SearchTimeout.String(),
		"top_k_initial":           c.TopKInitial,
		"top_k_rerank":            c.TopKRerank,
		"top_k_final":             c.TopKFinal,
		"combine_scores":          c.CombineScores,
		"retrieval_weight":        c.RetrievalWeight,
		"rerank_weight":           c.RerankWeight,
		"max_concurrent_requests": c.MaxConcurrentRequests,
		"requests_per_minute":     c.RequestsPerMinute,
		"connection_pool_size":    c.ConnectionPoolSize,
		"log_level":               c.LogLevel,
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}
