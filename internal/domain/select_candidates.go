package domain

// SelectCandidates returns the first min(len(candidates), topK) candidates,
// preserving retrieval order. Pure slicing, no copies of the documents.
func SelectCandidates(candidates []Candidate, topK int) ([]Candidate, error) {
	if topK <= 0 {
		return nil, &ValidationError{Field: "top_k_rerank", Reason: "must be positive"}
	}
	if len(candidates) < topK {
		topK = len(candidates)
	}
	return candidates[:topK:topK], nil
}
