package domain

// CombineScores computes the final score for every candidate in the batch.
// The returned slice is aligned with the input.
//
// Retrieval scores and rerank scores live on incomparable scales, so when
// combination is enabled the retrieval scores are min-max normalized within
// the batch (a batch of identical scores normalizes to 1.0) while rerank
// scores are used verbatim, the model already calibrating them to [0, 1].
// The normalization is deterministic and applied identically across the
// batch, so relative order is reproducible.
//
// When combination is disabled a candidate's final score is its rerank score
// when reranking ran, its retrieval score otherwise. Weights are applied
// verbatim; they are not forced to sum to 1.
func CombineScores(batch []Candidate, combine bool, w Weights) []float64 {
	if len(batch) == 0 {
		return nil
	}

	final := make([]float64, len(batch))

	if !combine {
		for i, c := range batch {
			if c.RerankScore != nil {
				final[i] = *c.RerankScore
			} else {
				final[i] = c.RetrievalScore
			}
		}
		return final
	}

	lo, hi := batch[0].RetrievalScore, batch[0].RetrievalScore
	for _, c := range batch[1:] {
		if c.RetrievalScore < lo {
			lo = c.RetrievalScore
		}
		if c.RetrievalScore > hi {
			hi = c.RetrievalScore
		}
	}

	for i, c := range batch {
		retrieval := normalize(c.RetrievalScore, lo, hi)
		rerank := 0.0
		if c.RerankScore != nil {
			rerank = *c.RerankScore
		}
		final[i] = w.Retrieval*retrieval + w.Rerank*rerank
	}
	return final
}

// normalize maps score into [0, 1] by min-max over the batch. A degenerate
// batch (all scores equal) maps to 1.0 so the retrieval term never vanishes
// for every candidate at once.
func normalize(score, lo, hi float64) float64 {
	if hi == lo {
		return 1.0
	}
	return (score - lo) / (hi - lo)
}
