package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerank-orchestrator/internal/domain"
)

type mockSearchClient struct {
	result *domain.RetrievalResult
	err    error
	calls  atomic.Int32
	gotQ   domain.RetrievalQuery
}

func (m *mockSearchClient) Retrieve(ctx context.Context, q domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	m.calls.Add(1)
	m.gotQ = q
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockSearchClient) CheckHealth(ctx context.Context) domain.ServiceHealth {
	return domain.ServiceHealth{Status: domain.HealthHealthy}
}

type mockReranker struct {
	result *domain.RerankResult
	err    error
	calls  atomic.Int32
	gotReq domain.RerankRequest
}

func (m *mockReranker) Rerank(ctx context.Context, req domain.RerankRequest) (*domain.RerankResult, error) {
	m.calls.Add(1)
	m.gotReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockReranker) Models(ctx context.Context) ([]domain.RerankModel, error) {
	return []domain.RerankModel{{ID: "zerank-1"}}, nil
}

func (m *mockReranker) ModelName() string { return "zerank-1" }

func (m *mockReranker) CheckHealth(ctx context.Context) domain.ServiceHealth {
	return domain.ServiceHealth{Status: domain.HealthHealthy}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func candidates(scores ...float64) []domain.Candidate {
	out := make([]domain.Candidate, len(scores))
	for i, s := range scores {
		out[i] = domain.Candidate{
			Document: domain.Document{
				ID:   fmt.Sprintf("doc-%d", i),
				Text: fmt.Sprintf("document %d", i),
			},
			RetrievalScore: s,
		}
	}
	return out
}

func rerankScores(scores ...float64) *domain.RerankResult {
	out := make([]domain.RerankScore, len(scores))
	for i, s := range scores {
		out[i] = domain.RerankScore{Index: i, Score: s}
	}
	return &domain.RerankResult{Scores: out, Model: "zerank-1", Took: 5 * time.Millisecond}
}

func TestSearchUsecase_EmptyQueryRejected(t *testing.T) {
	u := NewSearchUsecase(&mockSearchClient{}, &mockReranker{}, domain.DefaultSearchConfig(), testLogger())

	_, err := u.Execute(context.Background(), SearchInput{Query: "   ", Index: "docs"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)
}

func TestSearchUsecase_InvalidConfigRejected(t *testing.T) {
	cfg := domain.DefaultSearchConfig()
	cfg.TopKFinal = cfg.TopKRerank + 1
	u := NewSearchUsecase(&mockSearchClient{}, &mockReranker{}, domain.DefaultSearchConfig(), testLogger())

	_, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs", Config: &cfg})

	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestSearchUsecase_EmptyRetrievalShortCircuits(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{Candidates: nil, TotalHits: 0}}
	reranker := &mockReranker{}
	u := NewSearchUsecase(search, reranker, domain.DefaultSearchConfig(), testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "nothing here", Index: "docs"})
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.False(t, resp.RerankingEnabled)
	assert.False(t, resp.RerankingSucceeded)
	assert.Equal(t, int32(0), reranker.calls.Load(), "reranker must not be called for an empty candidate set")
}

func TestSearchUsecase_RerankedOrderingWins(t *testing.T) {
	// Five candidates, three selected for reranking. Rerank scores invert
	// the retrieval order of the selected subset.
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.99, 0.98, 0.97, 0.96, 0.95),
		TotalHits:  5,
	}}
	reranker := &mockReranker{result: rerankScores(0.9, 0.1, 0.5)}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 5
	cfg.TopKRerank = 3
	cfg.TopKFinal = 3
	cfg.CombineScores = false

	u := NewSearchUsecase(search, reranker, cfg, testLogger())
	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), reranker.calls.Load(), "one rerank call for the selected subset")
	require.Len(t, reranker.gotReq.Documents, 3)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "doc-0", resp.Results[0].Document.ID)
	assert.Equal(t, "doc-2", resp.Results[1].Document.ID)
	assert.Equal(t, "doc-1", resp.Results[2].Document.ID)
	assert.Equal(t, []int{1, 2, 3}, []int{resp.Results[0].Rank, resp.Results[1].Rank, resp.Results[2].Rank})
	assert.True(t, resp.RerankingEnabled)
	assert.True(t, resp.RerankingSucceeded)
}

func TestSearchUsecase_CombinedScores(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(1.0, 0.5, 0.0),
		TotalHits:  3,
	}}
	reranker := &mockReranker{result: rerankScores(0.0, 1.0, 0.5)}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 3
	cfg.TopKRerank = 3
	cfg.TopKFinal = 3
	cfg.Weights = domain.Weights{Retrieval: 0.5, Rerank: 0.5}

	u := NewSearchUsecase(search, reranker, cfg, testLogger())
	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})
	require.NoError(t, err)

	// Normalized retrieval [1.0, 0.5, 0.0], rerank verbatim [0.0, 1.0, 0.5]:
	// combined 0.5, 0.75, 0.25.
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "doc-1", resp.Results[0].Document.ID)
	assert.InDelta(t, 0.75, resp.Results[0].Score, 1e-9)
	assert.Equal(t, "doc-0", resp.Results[1].Document.ID)
	assert.InDelta(t, 0.5, resp.Results[1].Score, 1e-9)
	assert.Equal(t, "doc-2", resp.Results[2].Document.ID)
	assert.InDelta(t, 0.25, resp.Results[2].Score, 1e-9)
}

func TestSearchUsecase_RerankFailureDegrades(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8, 0.7),
		TotalHits:  3,
	}}
	reranker := &mockReranker{err: &domain.RerankError{StatusCode: 503, Transient: true, Err: errors.New("unavailable")}}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 3
	cfg.TopKRerank = 3
	cfg.TopKFinal = 3

	u := NewSearchUsecase(search, reranker, cfg, testLogger())
	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs", Debug: true})
	require.NoError(t, err, "rerank failure degrades, it does not fail the search")

	assert.True(t, resp.RerankingEnabled)
	assert.False(t, resp.RerankingSucceeded)
	require.Len(t, resp.Results, 3)
	// Retrieval order survives.
	assert.Equal(t, "doc-0", resp.Results[0].Document.ID)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
	require.NotNil(t, resp.Debug)
	assert.Contains(t, resp.Debug.RerankError, "unavailable")
}

func TestSearchUsecase_CancelledDeadlineAbortsInsteadOfDegrading(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8),
		TotalHits:  2,
	}}
	ctx, cancel := context.WithCancel(context.Background())
	reranker := &mockReranker{err: context.Canceled}
	u := NewSearchUsecase(search, reranker, domain.DefaultSearchConfig(), testLogger())

	cancel()
	_, err := u.Execute(ctx, SearchInput{Query: "q", Index: "docs"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchUsecase_RerankTimeoutAborts(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8),
		TotalHits:  2,
	}}
	reranker := &mockReranker{err: &domain.TimeoutError{Operation: "rerank", Err: context.DeadlineExceeded}}
	u := NewSearchUsecase(search, reranker, domain.DefaultSearchConfig(), testLogger())

	_, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})

	var terr *domain.TimeoutError
	require.ErrorAs(t, err, &terr, "a deadline aborts the call instead of degrading")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSearchUsecase_OutOfRangeRerankIndexIgnored(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8),
		TotalHits:  2,
	}}
	reranker := &mockReranker{result: &domain.RerankResult{
		Scores: []domain.RerankScore{
			{Index: 0, Score: 0.7},
			{Index: 99, Score: 0.6},
			{Index: -1, Score: 0.5},
		},
		Model: "zerank-1",
	}}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 2
	cfg.TopKRerank = 2
	cfg.TopKFinal = 2
	cfg.CombineScores = false
	u := NewSearchUsecase(search, reranker, cfg, testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})
	require.NoError(t, err, "rogue indices from a reranker must not panic the pipeline")

	require.Len(t, resp.Results, 2)
	// The unscored candidate falls back to its retrieval score (0.8) and
	// outranks the reranked one (0.7).
	assert.Equal(t, "doc-1", resp.Results[0].Document.ID)
	assert.InDelta(t, 0.8, resp.Results[0].Score, 1e-9)
	assert.Equal(t, "doc-0", resp.Results[1].Document.ID)
	assert.InDelta(t, 0.7, resp.Results[1].Score, 1e-9)
}

func TestSearchUsecase_RetrievalFailureIsFatal(t *testing.T) {
	search := &mockSearchClient{err: &domain.RetrievalError{Index: "docs", Err: errors.New("connection refused")}}
	u := NewSearchUsecase(search, &mockReranker{}, domain.DefaultSearchConfig(), testLogger())

	_, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})

	var rerr *domain.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "docs", rerr.Index)
}

func TestSearchUsecase_DisableRerankingSkipsReranker(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8),
		TotalHits:  2,
	}}
	reranker := &mockReranker{}
	u := NewSearchUsecase(search, reranker, domain.DefaultSearchConfig(), testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs", DisableReranking: true})
	require.NoError(t, err)

	assert.Equal(t, int32(0), reranker.calls.Load())
	assert.False(t, resp.RerankingEnabled)
	require.Len(t, resp.Results, 2)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
}

func TestSearchUsecase_StableOrderOnTies(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.8, 0.8, 0.8),
		TotalHits:  3,
	}}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 3
	cfg.TopKRerank = 3
	cfg.TopKFinal = 3
	u := NewSearchUsecase(search, &mockReranker{result: rerankScores(0.5, 0.5, 0.5)}, cfg, testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})
	require.NoError(t, err)

	// Equal combined scores keep retrieval order.
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "doc-0", resp.Results[0].Document.ID)
	assert.Equal(t, "doc-1", resp.Results[1].Document.ID)
	assert.Equal(t, "doc-2", resp.Results[2].Document.ID)
}

func TestSearchUsecase_TruncatesToFinalK(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.8, 0.7, 0.6, 0.5),
		TotalHits:  5,
	}}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 5
	cfg.TopKRerank = 5
	cfg.TopKFinal = 2
	u := NewSearchUsecase(search, &mockReranker{result: rerankScores(0.1, 0.2, 0.3, 0.4, 0.5)}, cfg, testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
}

func TestSearchUsecase_DebugScores(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9, 0.4),
		TotalHits:  2,
	}}
	cfg := domain.DefaultSearchConfig()
	cfg.TopKInitial = 2
	cfg.TopKRerank = 2
	cfg.TopKFinal = 2
	u := NewSearchUsecase(search, &mockReranker{result: rerankScores(0.7, 0.2)}, cfg, testLogger())

	resp, err := u.Execute(context.Background(), SearchInput{Query: "q", Index: "docs", Debug: true})
	require.NoError(t, err)

	require.NotNil(t, resp.Debug)
	assert.NotEmpty(t, resp.Debug.SearchID)
	assert.Equal(t, 2, resp.Debug.CandidateCount)
	assert.Equal(t, 2, resp.Debug.RerankedCount)
	assert.InDelta(t, 0.9, resp.Debug.RetrievalScores["doc-0"], 1e-9)
	assert.InDelta(t, 0.7, resp.Debug.RerankScores["doc-0"], 1e-9)
}

func TestSearchUsecase_ExecuteBatch(t *testing.T) {
	search := &mockSearchClient{result: &domain.RetrievalResult{
		Candidates: candidates(0.9),
		TotalHits:  1,
	}}
	u := NewSearchUsecase(search, &mockReranker{result: rerankScores(0.5)}, domain.DefaultSearchConfig(), testLogger())

	inputs := []SearchInput{
		{Query: "first", Index: "docs"},
		{Query: "   ", Index: "docs"},
		{Query: "third", Index: "docs"},
	}
	results := u.ExecuteBatch(context.Background(), inputs, 2)

	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "first", results[0].Response.Query)

	var verr *domain.ValidationError
	require.ErrorAs(t, results[1].Err, &verr)
	assert.Nil(t, results[1].Response)

	require.NoError(t, results[2].Err, "one bad entry must not poison the batch")
	assert.Equal(t, "third", results[2].Response.Query)
}
