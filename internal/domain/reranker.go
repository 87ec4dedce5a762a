package domain

import (
	"context"
	"time"
)

// RerankRequest is an ordered batch of document texts to score against a
// query. Order is significant end-to-end: the response correlates scores to
// documents purely by position.
type RerankRequest struct {
	Query     string
	Documents []string
	Model     string
	// TopK optionally limits how many scored entries the service returns.
	// Zero means score everything submitted.
	TopK int
}

// RerankScore pairs a request position with its relevance score.
type RerankScore struct {
	// Index is the position of the document in the request batch.
	Index int
	// Score is the cross-encoder relevance score, calibrated to [0, 1].
	Score float64
}

// RerankResult is the parsed reranking response. Scores arrive sorted by
// relevance descending; Index maps each one back to the request batch.
type RerankResult struct {
	Scores    []RerankScore
	Model     string
	RequestID string
	Took      time.Duration
}

// RerankModel describes one entry of the reranking service's model catalog.
type RerankModel struct {
	ID          string
	Description string
}

// Reranker is the reranking collaborator: a remote cross-encoder API.
type Reranker interface {
	// Rerank scores the request's documents against its query. The call is a
	// pure read of relevance, so implementations retry transient failures
	// with the identical payload.
	Rerank(ctx context.Context, req RerankRequest) (*RerankResult, error)

	// Models lists the selectable reranking models.
	Models(ctx context.Context) ([]RerankModel, error)

	// ModelName returns the default model identifier.
	ModelName() string

	// CheckHealth probes the service without failing on unreachability.
	CheckHealth(ctx context.Context) ServiceHealth
}
