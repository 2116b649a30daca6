package domain

// Default retrieval tuning values. All are overridable per request.
const (
	// DefaultK is the target number of candidates per query.
	DefaultK = 15

	// DefaultGapThreshold is the minimum distance gap treated as a
	// semantic cliff.
	DefaultGapThreshold = 0.1

	// DefaultDistanceThreshold is the maximum distance increase from
	// the best result when no cliff is found.
	DefaultDistanceThreshold = 0.4

	// DefaultMaxIterations bounds the number of search rounds per
	// session.
	DefaultMaxIterations = 3

	// ComparisonExpansion multiplies k for comparison queries so both
	// compared entities can surface in the pool.
	ComparisonExpansion = 3

	// MinKeep is the minimum number of candidates retained by the
	// cutoff when more than one exists.
	MinKeep = 2
)

// RetrievalOptions configures one retrieval request.
type RetrievalOptions struct {
	// K is the target number of candidates (default 15). Comparison
	// queries search an expanded pool of up to 3×K.
	K int

	// GapThreshold is the minimum consecutive-distance gap that
	// triggers the cliff cutoff (default 0.1).
	GapThreshold float64

	// DistanceThreshold is the relative cutoff above the best
	// result's distance when no cliff is found (default 0.4).
	DistanceThreshold float64

	// MaxIterations bounds the number of search rounds (default 3).
	MaxIterations int

	// FilteringDisabled bypasses predicate filtering entirely and
	// returns raw ranked results.
	FilteringDisabled bool
}

// Normalised returns a copy with zero or negative fields replaced by
// their defaults.
func (o RetrievalOptions) Normalised() RetrievalOptions {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.GapThreshold <= 0 {
		o.GapThreshold = DefaultGapThreshold
	}
	if o.DistanceThreshold <= 0 {
		o.DistanceThreshold = DefaultDistanceThreshold
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}
