package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerank-orchestrator/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "ze-test-key-123456")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.zeroentropy.dev/v1", cfg.RerankBaseURL)
	assert.Equal(t, "zerank-1", cfg.RerankModel)
	assert.Equal(t, 30*time.Second, cfg.RerankTimeout)
	assert.Equal(t, 3, cfg.RerankMaxRetries)
	assert.Equal(t, "http://localhost:7700", cfg.SearchURL)
	assert.Equal(t, 100, cfg.TopKInitial)
	assert.Equal(t, 20, cfg.TopKRerank)
	assert.Equal(t, 10, cfg.TopKFinal)
	assert.True(t, cfg.CombineScores)
	assert.Equal(t, 10, cfg.MaxConcurrentRequests)
	assert.Equal(t, 1000, cfg.RequestsPerMinute)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "")

	_, err := Load()
	require.Error(t, err)

	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "RERANK_API_KEY", cerr.Field)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "ze-test-key-123456")
	t.Setenv("RERANK_MODEL", "zerank-1-small")
	t.Setenv("TOP_K_INITIAL", "50")
	t.Setenv("TOP_K_RERANK", "15")
	t.Setenv("TOP_K_FINAL", "5")
	t.Setenv("REQUESTS_PER_MINUTE", "120")
	t.Setenv("RERANK_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "zerank-1-small", cfg.RerankModel)
	assert.Equal(t, 50, cfg.TopKInitial)
	assert.Equal(t, 15, cfg.TopKRerank)
	assert.Equal(t, 5, cfg.TopKFinal)
	assert.Equal(t, 120, cfg.RequestsPerMinute)
	assert.Equal(t, 5*time.Second, cfg.RerankTimeout)
}

func TestLoad_BadURL(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "ze-test-key-123456")
	t.Setenv("MEILI_URL", "localhost:7700")

	_, err := Load()
	require.Error(t, err)

	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "MEILI_URL", cerr.Field)
}

func TestLoad_TopKInvariantViolation(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "ze-test-key-123456")
	t.Setenv("TOP_K_RERANK", "10")
	t.Setenv("TOP_K_FINAL", "20")

	_, err := Load()
	require.Error(t, err)

	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "top_k_final", cerr.Field)
}

func TestConfig_SearchConfig(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "ze-test-key-123456")
	t.Setenv("RETRIEVAL_WEIGHT", "0.4")
	t.Setenv("RERANK_WEIGHT", "0.6")

	cfg, err := Load()
	require.NoError(t, err)

	sc := cfg.SearchConfig()
	require.NoError(t, sc.Validate())
	assert.Equal(t, 0.4, sc.Weights.Retrieval)
	assert.Equal(t, 0.6, sc.Weights.Rerank)
	assert.Equal(t, "zerank-1", sc.Model)
}

func TestConfig_RedactedMasksSecrets(t *testing.T) {
	cfg := &Config{RerankAPIKey: "ze-abcdef-123456", SearchAPIKey: "ms"}
	view := cfg.Redacted()

	masked, ok := view["rerank_api_key"].(string)
	require.True(t, ok)
	assert.NotContains(t, masked, "abcdef")
	assert.Contains(t, masked, "*")
	assert.Equal(t, "****", view["search_api_key"])
}
