package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rerank-orchestrator/internal/domain"
)

// SearchInput defines the input parameters for Search.
type SearchInput struct {
	Query string
	Index string

	// Config overrides the orchestrator defaults for this call.
	Config *domain.SearchConfig

	// Filters are equality filters passed to the retrieval engine.
	Filters map[string]any

	// Custom is an engine-native search request that replaces the generated
	// one. Its concrete type is checked by the retrieval adapter.
	Custom any

	// DisableReranking skips the reranking stage and ranks by retrieval
	// score alone.
	DisableReranking bool

	// Debug attaches per-stage scores and failure detail to the response.
	Debug bool
}

// BatchResult pairs one batch entry with its outcome. Err is set when that
// entry failed; the other entries are unaffected.
type BatchResult struct {
	Response *domain.SearchResponse
	Err      error
}

// SearchUsecase runs the two-stage retrieve-then-rerank pipeline.
type SearchUsecase interface {
	Execute(ctx context.Context, input SearchInput) (*domain.SearchResponse, error)
	ExecuteBatch(ctx context.Context, inputs []SearchInput, maxConcurrent int) []BatchResult
}

type searchUsecase struct {
	searchClient domain.SearchClient
	reranker     domain.Reranker
	defaults     domain.SearchConfig
	logger       *slog.Logger
}

// NewSearchUsecase creates a new SearchUsecase.
func NewSearchUsecase(searchClient domain.SearchClient, reranker domain.Reranker, defaults domain.SearchConfig, logger *slog.Logger) SearchUsecase {
	return &searchUsecase{
		searchClient: searchClient,
		reranker:     reranker,
		defaults:     defaults,
		logger:       logger,
	}
}

func (u *searchUsecase) Execute(ctx context.Context, input SearchInput) (*domain.SearchResponse, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	cfg := u.defaults
	if input.Config != nil {
		cfg = *input.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	searchID := uuid.NewString()
	start := time.Now()
	u.logger.Info("search_started",
		slog.String("search_id", searchID),
		slog.String("query", truncateQuery(query)),
		slog.String("index", input.Index))

	retrieval, err := u.searchClient.Retrieve(ctx, domain.RetrievalQuery{
		Index:   input.Index,
		Text:    query,
		Limit:   cfg.TopKInitial,
		Filters: input.Filters,
		Custom:  input.Custom,
	})
	if err != nil {
		return nil, err
	}

	resp := &domain.SearchResponse{
		Query:         query,
		TotalHits:     retrieval.TotalHits,
		RetrievalTook: retrieval.Took,
		Model:         u.reranker.ModelName(),
	}
	if cfg.Model != "" {
		resp.Model = cfg.Model
	}
	var debug *domain.DebugInfo
	if input.Debug {
		debug = &domain.DebugInfo{
			SearchID:        searchID,
			CandidateCount:  len(retrieval.Candidates),
			RetrievalScores: map[string]float64{},
			RerankScores:    map[string]float64{},
		}
		for _, c := range retrieval.Candidates {
			debug.RetrievalScores[c.Document.ID] = c.RetrievalScore
		}
		resp.Debug = debug
	}

	if len(retrieval.Candidates) == 0 {
		resp.Results = []domain.ScoredResult{}
		resp.Took = time.Since(start)
		u.logger.Info("search_completed_no_candidates", slog.String("search_id", searchID))
		return resp, nil
	}

	pool := retrieval.Candidates
	rerankSucceeded := false
	rerankingEnabled := !input.DisableReranking

	if rerankingEnabled {
		selected, err := domain.SelectCandidates(retrieval.Candidates, cfg.TopKRerank)
		if err != nil {
			return nil, err
		}
		reranked, rerankErr := u.rerank(ctx, searchID, query, cfg, selected)
		if rerankErr != nil {
			// The caller's deadline aborts the call outright; only failures
			// of the reranking service itself degrade.
			var terr *domain.TimeoutError
			if errors.As(rerankErr, &terr) {
				return nil, rerankErr
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Degrade to retrieval ordering instead of failing the search.
			u.logger.Warn("reranking_failed_using_original_scores",
				slog.String("search_id", searchID),
				slog.String("error", rerankErr.Error()))
			if debug != nil {
				debug.RerankError = rerankErr.Error()
			}
		} else {
			pool = reranked.candidates
			rerankSucceeded = true
			resp.Model = reranked.model
			resp.RerankTook = reranked.took
			if debug != nil {
				debug.RerankedCount = len(reranked.candidates)
				for _, c := range reranked.candidates {
					if c.RerankScore != nil {
						debug.RerankScores[c.Document.ID] = *c.RerankScore
					}
				}
			}
		}
	}

	combine := cfg.CombineScores && rerankSucceeded
	scores := domain.CombineScores(pool, combine, cfg.Weights)

	results := make([]domain.ScoredResult, len(pool))
	for i, c := range pool {
		results[i] = domain.ScoredResult{
			Document:       c.Document,
			Score:          scores[i],
			RetrievalScore: c.RetrievalScore,
			RerankScore:    c.RerankScore,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > cfg.TopKFinal {
		results = results[:cfg.TopKFinal]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	resp.Results = results
	resp.RerankingEnabled = rerankingEnabled
	resp.RerankingSucceeded = rerankSucceeded
	resp.Took = time.Since(start)

	u.logger.Info("search_completed",
		slog.String("search_id", searchID),
		slog.Int("result_count", len(results)),
		slog.Bool("reranking_succeeded", rerankSucceeded),
		slog.Int64("elapsed_ms", resp.Took.Milliseconds()))
	return resp, nil
}

type rerankOutcome struct {
	candidates []domain.Candidate
	model      string
	took       time.Duration
}

// rerank scores the selected candidates and returns them with rerank scores
// attached, still in retrieval order.
func (u *searchUsecase) rerank(ctx context.Context, searchID, query string, cfg domain.SearchConfig, selected []domain.Candidate) (*rerankOutcome, error) {
	documents := make([]string, len(selected))
	for i, c := range selected {
		documents[i] = c.RerankText()
	}

	result, err := u.reranker.Rerank(ctx, domain.RerankRequest{
		Query:     query,
		Documents: documents,
		Model:     cfg.Model,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, len(selected))
	copy(out, selected)
	for _, s := range result.Scores {
		// The HTTP adapter validates indices, but the interface does not
		// guarantee it, so never index out of the selected batch.
		if s.Index < 0 || s.Index >= len(out) {
			u.logger.Warn("rerank_score_index_out_of_range",
				slog.String("search_id", searchID),
				slog.Int("index", s.Index))
			continue
		}
		score := s.Score
		out[s.Index].RerankScore = &score
	}

	u.logger.Info("reranking_applied",
		slog.String("search_id", searchID),
		slog.Int("candidate_count", len(out)),
		slog.String("model", result.Model))
	return &rerankOutcome{candidates: out, model: result.Model, took: result.Took}, nil
}

// ExecuteBatch runs the inputs concurrently, at most maxConcurrent at a
// time. Results come back in input order and one entry failing never aborts
// the others.
func (u *searchUsecase) ExecuteBatch(ctx context.Context, inputs []SearchInput, maxConcurrent int) []BatchResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]BatchResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, input := range inputs {
		g.Go(func() error {
			resp, err := u.Execute(ctx, input)
			results[i] = BatchResult{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func truncateQuery(q string) string {
	if len(q) <= 100 {
		return q
	}
	return q[:100] + "..."
}
