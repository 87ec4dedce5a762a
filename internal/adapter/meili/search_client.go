// Package meili adapts a Meilisearch instance as the retrieval backend.
package meili

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"rerank-orchestrator/internal/domain"
)

// textFields are probed in order when extracting the rerankable body of a
// hit. Indexes differ in what they call the main content field.
var textFields = []string{"text", "content", "body", "description", "title"}

// SearchClient retrieves candidate documents from Meilisearch.
type SearchClient struct {
	manager meilisearch.ServiceManager
	logger  *slog.Logger
}

// New connects to a Meilisearch host. The supplied HTTP client carries the
// shared transport pool and timeout.
func New(host, apiKey string, httpClient *http.Client, logger *slog.Logger) *SearchClient {
	opts := []meilisearch.Option{meilisearch.WithCustomClient(httpClient)}
	if apiKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(apiKey))
	}
	return &SearchClient{
		manager: meilisearch.New(host, opts...),
		logger:  logger,
	}
}

// Retrieve runs the first-stage search and returns candidates in engine
// order, each carrying its retrieval score. A caller-supplied
// *meilisearch.SearchRequest in q.Custom overrides the generated request;
// ranking scores are forced on either way since downstream combination
// needs them.
func (s *SearchClient) Retrieve(ctx context.Context, q domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	index := strings.TrimSpace(q.Index)
	req, err := s.buildRequest(q)
	if err != nil {
		return nil, err
	}
	if req.IndexUID != "" {
		index = req.IndexUID
	}
	if index == "" {
		return nil, &domain.ValidationError{Field: "index", Reason: "must not be empty"}
	}

	start := time.Now()
	resp, err := s.manager.Index(index).SearchWithContext(ctx, req.Query, req)
	if err != nil {
		s.logger.Error("retrieval_failed",
			slog.String("index", index),
			slog.String("error", err.Error()))
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, &domain.TimeoutError{Operation: "retrieval", Err: ctxErr}
		}
		return nil, &domain.RetrievalError{Index: index, Err: err}
	}

	candidates := make([]domain.Candidate, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		var fields map[string]interface{}
		if err := hit.DecodeInto(&fields); err != nil {
			continue
		}
		candidates = append(candidates, parseHit(fields))
	}

	s.logger.Info("retrieval_completed",
		slog.String("index", index),
		slog.Int("candidate_count", len(candidates)),
		slog.Int64("total_hits", resp.EstimatedTotalHits),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return &domain.RetrievalResult{
		Candidates: candidates,
		TotalHits:  resp.EstimatedTotalHits,
		Took:       time.Duration(resp.ProcessingTimeMs) * time.Millisecond,
	}, nil
}

func (s *SearchClient) buildRequest(q domain.RetrievalQuery) (*meilisearch.SearchRequest, error) {
	if q.Custom != nil {
		req, ok := q.Custom.(*meilisearch.SearchRequest)
		if !ok {
			return nil, &domain.ValidationError{
				Field:  "custom",
				Reason: fmt.Sprintf("expected *meilisearch.SearchRequest, got %T", q.Custom),
			}
		}
		req.ShowRankingScore = true
		if req.Query == "" {
			req.Query = q.Text
		}
		return req, nil
	}

	req := &meilisearch.SearchRequest{
		Query:            q.Text,
		Limit:            int64(q.Limit),
		ShowRankingScore: true,
	}
	if len(q.Filters) > 0 {
		req.Filter = buildFilter(q.Filters)
	}
	return req, nil
}

// buildFilter renders simple equality filters as a Meilisearch filter
// expression, AND-joined in sorted key order for stable output.
func buildFilter(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := filters[k].(type) {
		case string:
			clauses = append(clauses, fmt.Sprintf("%s = %q", k, v))
		case bool:
			clauses = append(clauses, fmt.Sprintf("%s = %t", k, v))
		case []any:
			in := make([]string, 0, len(v))
			for _, item := range v {
				in = append(in, fmt.Sprintf("%v", item))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN [%s]", k, strings.Join(in, ", ")))
		default:
			clauses = append(clauses, fmt.Sprintf("%s = %v", k, v))
		}
	}
	return strings.Join(clauses, " AND ")
}

func parseHit(fields map[string]interface{}) domain.Candidate {
	doc := domain.Document{Metadata: map[string]any{}}

	if id, ok := fields["id"]; ok {
		doc.ID = fmt.Sprintf("%v", id)
	}
	for _, field := range textFields {
		if v, ok := fields[field].(string); ok && v != "" {
			doc.Text = v
			break
		}
	}
	if title, ok := fields["title"].(string); ok {
		doc.Title = title
	}
	if source, ok := fields["source"].(string); ok {
		doc.Source = source
	}

	score := 0.0
	if v, ok := fields["_rankingScore"].(float64); ok {
		score = v
	}

	for k, v := range fields {
		switch k {
		case "id", "title", "source", "_rankingScore":
			continue
		default:
			if k == "text" || k == "content" || k == "body" || k == "description" {
				continue
			}
			doc.Metadata[k] = v
		}
	}

	return domain.Candidate{Document: doc, RetrievalScore: score}
}

// CheckHealth probes the Meilisearch health endpoint.
func (s *SearchClient) CheckHealth(ctx context.Context) domain.ServiceHealth {
	start := time.Now()

	health, err := s.manager.HealthWithContext(ctx)
	if err != nil {
		return domain.ServiceHealth{
			Status:  domain.HealthUnreachable,
			Detail:  err.Error(),
			Latency: time.Since(start),
		}
	}
	if health.Status != "available" {
		return domain.ServiceHealth{
			Status:  domain.HealthDegraded,
			Detail:  "status: " + health.Status,
			Latency: time.Since(start),
		}
	}
	return domain.ServiceHealth{Status: domain.HealthHealthy, Latency: time.Since(start)}
}
