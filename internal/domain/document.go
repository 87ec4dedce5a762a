package domain

// Document is a single retrievable unit returned by the search engine.
// Immutable once constructed.
type Document struct {
	// ID is the unique identifier within an index.
	ID string
	// Text is the content used for reranking.
	Text string
	// Title is optional and prepended to Text when building rerank payloads.
	Title string
	// Source tags where the document came from.
	Source string
	// Metadata carries the remaining fields of the raw hit.
	Metadata map[string]any
}

// Candidate couples a Document with its scores while it moves through the
// pipeline. RerankScore is nil until the reranking stage has run.
type Candidate struct {
	Document       Document
	RetrievalScore float64
	RerankScore    *float64
}

// RerankText builds the text submitted to the reranking service.
// Title and body together give the cross-encoder more signal than body alone.
func (c Candidate) RerankText() string {
	if c.Document.Title != "" {
		return c.Document.Title + " " + c.Document.Text
	}
	return c.Document.Text
}

// ScoredResult is a finalized search result: a candidate plus its combined
// score and 1-based rank position. Produced once, never mutated.
type ScoredResult struct {
	Document       Document
	Score          float64
	Rank           int
	RetrievalScore float64
	RerankScore    *float64
}
