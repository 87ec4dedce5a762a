package domain

import "time"

// SearchResponse is the final answer for one search call.
type SearchResponse struct {
	Query     string
	Results   []ScoredResult
	TotalHits int64

	// Took covers the whole call; RetrievalTook and RerankTook break out the
	// two remote phases. RerankTook is zero when reranking did not run.
	Took          time.Duration
	RetrievalTook time.Duration
	RerankTook    time.Duration

	// Model is the reranking model the call was configured with.
	Model string

	// RerankingEnabled records whether reranking was attempted; RerankingSucceeded
	// whether it actually contributed scores. Enabled true with Succeeded false
	// is a degraded response ranked on retrieval scores alone.
	RerankingEnabled   bool
	RerankingSucceeded bool

	// Debug is populated only when the caller asked for it.
	Debug *DebugInfo
}

// DebugInfo carries raw pre-combination scores and phase accounting for
// callers diagnosing ranking behavior.
type DebugInfo struct {
	SearchID        string
	CandidateCount  int
	RerankedCount   int
	RetrievalScores map[string]float64
	RerankScores    map[string]float64
	// RerankError holds the raw failure that caused a degraded response.
	RerankError string
}
