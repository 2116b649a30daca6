package driving

import (
	"context"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// RetrievalService turns a natural-language question into a minimal,
// high-precision evidence set for downstream answer synthesis.
type RetrievalService interface {
	// Retrieve runs one full retrieval session: embedding, iterative
	// predicate-filtered search, comparison-aware reordering and
	// adaptive cutoff.
	Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.RetrievalResult, error)
}
