package domain

// Weights controls how retrieval and rerank scores blend into the final
// score. They are applied verbatim and are not required to sum to 1.
type Weights struct {
	Retrieval float64
	Rerank    float64
}

// SearchConfig holds the ranking parameters for one search call.
//
// Invariant: TopKFinal <= TopKRerank <= TopKInitial, checked by Validate
// before any remote call is issued.
type SearchConfig struct {
	// TopKInitial is the retrieval fan-out: how many candidates are fetched
	// from the search engine.
	TopKInitial int
	// TopKRerank is how many of those candidates are sent to the reranker.
	TopKRerank int
	// TopKFinal is how many results the caller gets back.
	TopKFinal int
	// Model is the reranking model identifier.
	Model string
	// CombineScores blends retrieval and rerank scores when true; when false
	// the rerank score alone ranks a reranked candidate.
	CombineScores bool
	Weights       Weights
}

// DefaultSearchConfig mirrors the service defaults: a wide retrieval fan-out
// narrowed to a small reranked window.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopKInitial:   100,
		TopKRerank:    20,
		TopKFinal:     10,
		Model:         "zerank-1",
		CombineScores: true,
		Weights:       Weights{Retrieval: 0.3, Rerank: 0.7},
	}
}

// Validate rejects limit and weight combinations that would produce
// undefined ranking behavior. Violations fail here, at construction time,
// never silently at use time.
func (c SearchConfig) Validate() error {
	if c.TopKInitial < 1 {
		return &ConfigError{Field: "top_k_initial", Reason: "must be positive"}
	}
	if c.TopKRerank < 1 {
		return &ConfigError{Field: "top_k_rerank", Reason: "must be positive"}
	}
	if c.TopKFinal < 1 {
		return &ConfigError{Field: "top_k_final", Reason: "must be positive"}
	}
	if c.TopKRerank > c.TopKInitial {
		return &ConfigError{Field: "top_k_rerank", Reason: "cannot exceed top_k_initial"}
	}
	if c.TopKFinal > c.TopKRerank {
		return &ConfigError{Field: "top_k_final", Reason: "cannot exceed top_k_rerank"}
	}
	if c.Model == "" {
		return &ConfigError{Field: "model", Reason: "must not be empty"}
	}
	if c.Weights.Retrieval < 0 || c.Weights.Rerank < 0 {
		return &ConfigError{Field: "score_weights", Reason: "must be non-negative"}
	}
	return nil
}
