package driven

import (
	"context"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// VectorIndex performs k-nearest-neighbour similarity search over the
// indexed corpus.
//
// Implementations must be safe to call repeatedly with a growing
// excludeIDs set within one request; the iterative filter depends on
// rejected candidates never resurfacing.
type VectorIndex interface {
	// Search returns up to k candidates not in excludeIDs, ascending
	// by distance, or fewer if the index is exhausted. Candidate
	// predicates are decoded from the index metadata; a candidate
	// whose predicate cannot be parsed is returned with a nil
	// predicate (fail open).
	//
	// Failures are not retried by the engine and surface as
	// domain.ErrIndexUnavailable.
	Search(ctx context.Context, embedding []float32, k int, excludeIDs []string) ([]domain.Candidate, error)

	// Close releases resources.
	Close() error
}
