// Package rerankapi is the HTTP client for the external reranking service.
package rerankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"rerank-orchestrator/internal/domain"
	"rerank-orchestrator/internal/infra/ratelimit"
	"rerank-orchestrator/internal/infra/retry"
)

const (
	rerankEndpoint = "/rerank"
	modelsEndpoint = "/models"
	healthEndpoint = "/health"

	// catalogTTL bounds how long the model catalog is served from cache.
	catalogTTL = 5 * time.Minute

	// defaultCooldown is applied to the gate on a 429 without Retry-After.
	defaultCooldown = time.Second
)

// Client calls the reranking API with retry, backoff and rate limiting.
// Reranking is a pure read of relevance, so every retry reuses the identical
// payload. The client never reorders candidates: correlation between request
// position and response position is purely positional.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	gate    *ratelimit.Gate
	policy  retry.Policy
	logger  *slog.Logger
	catalog *expirable.LRU[string, []domain.RerankModel]
}

// New constructs a reranking client. The gate is shared with the owning
// client instance so all concurrent searches draw from one limit.
func New(baseURL, apiKey, model string, httpClient *http.Client, gate *ratelimit.Gate, policy retry.Policy, logger *slog.Logger) *Client {
	if policy.Retryable == nil {
		policy.Retryable = domain.IsTransientRerank
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpClient,
		gate:    gate,
		policy:  policy,
		logger:  logger,
		catalog: expirable.NewLRU[string, []domain.RerankModel](1, nil, catalogTTL),
	}
}

// ModelName returns the default model identifier.
func (c *Client) ModelName() string {
	return c.model
}

type rerankPayload struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankScore struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results   []rerankScore `json:"results"`
	Model     string        `json:"model"`
	RequestID string        `json:"request_id,omitempty"`
}

type modelsResponse struct {
	Models []struct {
		ID          string `json:"id"`
		Description string `json:"description,omitempty"`
	} `json:"models"`
}

// Rerank scores req.Documents against req.Query. Transient failures are
// retried under the policy; a response whose score count or indices do not
// match the submitted batch fails immediately with ErrRerankProtocol.
func (c *Client) Rerank(ctx context.Context, req domain.RerankRequest) (*domain.RerankResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if len(req.Documents) == 0 {
		return nil, &domain.ValidationError{Field: "documents", Reason: "must not be empty"}
	}
	documents := make([]string, len(req.Documents))
	for i, doc := range req.Documents {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			return nil, &domain.ValidationError{
				Field:  fmt.Sprintf("documents[%d]", i),
				Reason: "must not be empty",
			}
		}
		documents[i] = doc
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := rerankPayload{
		Query:     query,
		Documents: documents,
		Model:     model,
		TopK:      req.TopK,
	}

	start := time.Now()
	c.logger.Info("reranking_started",
		slog.String("query", truncate(query, 100)),
		slog.Int("document_count", len(documents)),
		slog.String("model", model))

	resp, err := retry.Do(ctx, c.policy, func() (*rerankResponse, error) {
		return c.doRerank(ctx, payload)
	})
	if err != nil {
		c.logger.Warn("reranking_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, err
	}

	expected := len(documents)
	if req.TopK > 0 && req.TopK < expected {
		expected = req.TopK
	}
	if len(resp.Results) != expected {
		return nil, fmt.Errorf("%w: got %d scores for %d documents",
			domain.ErrRerankProtocol, len(resp.Results), expected)
	}

	seen := make(map[int]bool, len(resp.Results))
	scores := make([]domain.RerankScore, len(resp.Results))
	for i, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d outside batch of %d",
				domain.ErrRerankProtocol, r.Index, len(documents))
		}
		if seen[r.Index] {
			return nil, fmt.Errorf("%w: duplicate result index %d",
				domain.ErrRerankProtocol, r.Index)
		}
		seen[r.Index] = true
		scores[i] = domain.RerankScore{Index: r.Index, Score: r.RelevanceScore}
	}

	elapsed := time.Since(start)
	c.logger.Info("reranking_completed",
		slog.Int("result_count", len(scores)),
		slog.String("model", resp.Model),
		slog.Int64("elapsed_ms", elapsed.Milliseconds()))

	return &domain.RerankResult{
		Scores:    scores,
		Model:     resp.Model,
		RequestID: resp.RequestID,
		Took:      elapsed,
	}, nil
}

// BatchResult pairs one batch entry with its outcome. Err is set when that
// entry failed; the other entries are unaffected.
type BatchResult struct {
	Result *domain.RerankResult
	Err    error
}

// RerankBatch scores several independent requests concurrently, at most
// maxConcurrent at a time on top of the shared gate. Results come back in
// input order and one entry failing never aborts the others.
func (c *Client) RerankBatch(ctx context.Context, reqs []domain.RerankRequest, maxConcurrent int) []BatchResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, req := range reqs {
		g.Go(func() error {
			result, err := c.Rerank(ctx, req)
			results[i] = BatchResult{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// doRerank performs one gated attempt.
func (c *Client) doRerank(ctx context.Context, payload rerankPayload) (*rerankResponse, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rerankEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(httpResp)
	}

	var resp rerankResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable response body: %v", domain.ErrRerankProtocol, err)
	}
	return &resp, nil
}

func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	// The caller's deadline is not the service's fault: classify it as a
	// timeout so the orchestrator aborts instead of degrading.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &domain.TimeoutError{Operation: "rerank", Err: ctxErr}
		}
		return ctxErr
	}
	return &domain.RerankError{Transient: true, Err: err}
}

func (c *Client) classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := apiErrorMessage(raw)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		cooldown := retryAfter(resp.Header.Get("Retry-After"))
		c.gate.Penalize(cooldown)
		c.logger.Warn("reranking_rate_limited",
			slog.Int64("cooldown_ms", cooldown.Milliseconds()))
		return &domain.RerankError{
			StatusCode: resp.StatusCode,
			Transient:  true,
			RetryAfter: cooldown,
			Err:        errors.New(msg),
		}
	case resp.StatusCode >= 500:
		return &domain.RerankError{
			StatusCode: resp.StatusCode,
			Transient:  true,
			Err:        errors.New(msg),
		}
	default:
		return &domain.RerankError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}
}

// Models lists the selectable reranking models, served from a short-lived
// cache so repeated CLI and health calls do not hammer the catalog endpoint.
func (c *Client) Models(ctx context.Context) ([]domain.RerankModel, error) {
	if cached, ok := c.catalog.Get("models"); ok {
		return cached, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create models request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(httpResp)
	}

	var resp modelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]domain.RerankModel, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = domain.RerankModel{ID: m.ID, Description: m.Description}
	}
	c.catalog.Add("models", models)
	return models, nil
}

// CheckHealth probes the service. It reports status instead of failing so a
// down reranker degrades aggregate health rather than erroring it.
func (c *Client) CheckHealth(ctx context.Context) domain.ServiceHealth {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthEndpoint, nil)
	if err != nil {
		return domain.ServiceHealth{Status: domain.HealthUnreachable, Detail: err.Error()}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.ServiceHealth{
			Status:  domain.HealthUnreachable,
			Detail:  err.Error(),
			Latency: time.Since(start),
		}
	}
	defer func() { _ = httpResp.Body.Close() }()
	_, _ = io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return domain.ServiceHealth{
			Status:  domain.HealthDegraded,
			Detail:  fmt.Sprintf("health endpoint returned %d", httpResp.StatusCode),
			Latency: time.Since(start),
		}
	}
	return domain.ServiceHealth{Status: domain.HealthHealthy, Latency: time.Since(start)}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rerank-orchestrator/0.1.0")
}

func apiErrorMessage(raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if len(raw) == 0 {
		return "no response body"
	}
	return truncate(string(raw), 200)
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultCooldown
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultCooldown
	}
	return time.Duration(seconds) * time.Second
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
