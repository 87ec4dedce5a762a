package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrRerankProtocol marks a reranking response that violates the positional
// contract: score count differs from the submitted document count, or an
// index points outside the batch. Protocol violations are never retried.
var ErrRerankProtocol = errors.New("rerank response violates positional contract")

// ConfigError reports missing or invalid configuration. Fatal at construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ValidationError reports malformed caller input, rejected before any remote
// call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// RetrievalError wraps a failure from the search engine. There is nothing to
// rank without retrieval, so these always surface to the caller.
type RetrievalError struct {
	Index string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed on index %q: %v", e.Index, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RerankError wraps a failure from the reranking service. Transient failures
// (connection errors, timeouts, 5xx, 429) may be retried; everything else is
// terminal for the attempt and degrades the call to retrieval-only scoring.
type RerankError struct {
	StatusCode int
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *RerankError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("rerank request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("rerank request failed: %v", e.Err)
}

func (e *RerankError) Unwrap() error { return e.Err }

// RetryDelay reports the server-requested delay before the next attempt.
func (e *RerankError) RetryDelay() time.Duration { return e.RetryAfter }

// IsTransientRerank reports whether err is a rerank failure worth retrying.
func IsTransientRerank(err error) bool {
	var re *RerankError
	if errors.As(err, &re) {
		return re.Transient
	}
	return false
}

// TimeoutError reports a phase that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
