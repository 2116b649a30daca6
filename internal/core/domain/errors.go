package domain

import "errors"

// Domain errors represent retrieval failures.
// These are distinct from infrastructure errors.
var (
	// ErrIndexUnavailable indicates the vector index call failed or
	// timed out. Fatal to the session; never retried by the engine.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrEmbeddingUnavailable indicates the embedding provider is not
	// configured or unreachable. Retrieval cannot start without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrMalformedPredicate indicates a candidate's relevance
	// predicate could not be parsed. Never fatal: the candidate is
	// kept and a warning is logged.
	ErrMalformedPredicate = errors.New("malformed relevance predicate")

	// ErrNoCollection indicates the configured index collection does
	// not exist.
	ErrNoCollection = errors.New("collection not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")
)
