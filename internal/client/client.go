// Package client is the public entry point: it wires configuration, the
// shared connection pool, the rate gate and both downstream adapters into
// one search client.
package client

import (
	"context"
	"log/slog"

	"rerank-orchestrator/internal/adapter/meili"
	"rerank-orchestrator/internal/adapter/rerankapi"
	"rerank-orchestrator/internal/domain"
	"rerank-orchestrator/internal/infra/config"
	"rerank-orchestrator/internal/infra/httpclient"
	"rerank-orchestrator/internal/infra/ratelimit"
	"rerank-orchestrator/internal/infra/retry"
	"rerank-orchestrator/internal/usecase"
)

// Client owns its connection pool and rate gate, so independent instances
// never share limits. Close releases the pooled connections.
type Client struct {
	cfg      *config.Config
	pool     *httpclient.Pool
	reranker *rerankapi.Client
	searchUC usecase.SearchUsecase
	health   usecase.HealthUsecase
	logger   *slog.Logger
}

// New builds a client from the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool := httpclient.NewPool(cfg.ConnectionPoolSize)
	gate := ratelimit.NewGate(cfg.MaxConcurrentRequests, cfg.RequestsPerMinute)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RerankMaxRetries
	policy.InitialInterval = cfg.RerankRetryDelay
	policy.Retryable = domain.IsTransientRerank

	reranker := rerankapi.New(
		cfg.RerankBaseURL,
		cfg.RerankAPIKey,
		cfg.RerankModel,
		pool.NewClient(cfg.RerankTimeout),
		gate,
		policy,
		logger,
	)
	searchClient := meili.New(
		cfg.SearchURL,
		cfg.SearchAPIKey,
		pool.NewClient(cfg.SearchTimeout),
		logger,
	)

	return &Client{
		cfg:      cfg,
		pool:     pool,
		reranker: reranker,
		searchUC: usecase.NewSearchUsecase(searchClient, reranker, cfg.SearchConfig(), logger),
		health:   usecase.NewHealthUsecase(searchClient, reranker, logger),
		logger:   logger,
	}, nil
}

// NewFromEnv loads configuration from the environment (and .env, when
// present) and builds a client from it.
func NewFromEnv(logger *slog.Logger) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, logger)
}

// Search runs one retrieve-then-rerank query.
func (c *Client) Search(ctx context.Context, input usecase.SearchInput) (*domain.SearchResponse, error) {
	return c.searchUC.Execute(ctx, input)
}

// SearchBatch runs the inputs concurrently under the configured concurrency
// cap. Results come back in input order; one failure never aborts the rest.
func (c *Client) SearchBatch(ctx context.Context, inputs []usecase.SearchInput) []usecase.BatchResult {
	return c.searchUC.ExecuteBatch(ctx, inputs, c.cfg.MaxConcurrentRequests)
}

// Health probes both downstream services.
func (c *Client) Health(ctx context.Context) domain.HealthStatus {
	return c.health.Execute(ctx)
}

// Models lists the reranking service's model catalog.
func (c *Client) Models(ctx context.Context) ([]domain.RerankModel, error) {
	return c.reranker.Models(ctx)
}

// Config exposes the effective configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Close releases pooled connections. The client must not be used after.
func (c *Client) Close() {
	c.pool.Close()
}
