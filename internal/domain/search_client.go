package domain

import (
	"context"
	"time"
)

// RetrievalQuery describes one retrieval call against the search engine.
type RetrievalQuery struct {
	// Index is the collection to search. Ignored when Custom embeds its own
	// index, which takes precedence.
	Index string
	// Text is the free-text query.
	Text string
	// Limit caps the number of candidates fetched.
	Limit int
	// Filters are additional constraints, field -> value or field -> []values.
	Filters map[string]any
	// Custom is an engine-specific structured request that replaces the
	// generated one entirely. The adapter owns its concrete type.
	Custom any
}

// RetrievalResult is the parsed output of one retrieval call. Candidates are
// in the engine's relevance order with retrieval scores attached.
type RetrievalResult struct {
	Candidates []Candidate
	TotalHits  int64
	Took       time.Duration
}

// SearchClient is the retrieval collaborator (e.g. Meilisearch).
type SearchClient interface {
	Retrieve(ctx context.Context, q RetrievalQuery) (*RetrievalResult, error)

	// CheckHealth probes the engine. It reports status instead of failing so
	// a down engine degrades the aggregate health rather than erroring it.
	CheckHealth(ctx context.Context) ServiceHealth
}
