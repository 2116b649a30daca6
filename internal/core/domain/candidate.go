package domain

// Candidate is one retrieved passage from the vector index.
type Candidate struct {
	// ID is the opaque unique identifier, stable across re-queries.
	ID string `json:"id"`

	// Title is the display label, used for entity matching and
	// diagnostics. May be empty.
	Title string `json:"title,omitempty"`

	// Text is the passage body handed to downstream generation.
	// Opaque to the retrieval engine.
	Text string `json:"text"`

	// Distance is the non-negative dissimilarity score from the index.
	// Lower means more similar. Only comparable within one search call.
	Distance float64 `json:"distance"`

	// Predicate is the declared relevance rule attached at index time.
	// Nil means the candidate is always relevant and never filtered.
	// Internal to the engine; never serialised in results.
	Predicate *Predicate `json:"-"`
}

// CutoffStrategy identifies which adaptive cutoff decided the final
// result-set size.
type CutoffStrategy string

const (
	// StrategyCliff cuts at a large gap in the distance sequence.
	StrategyCliff CutoffStrategy = "cliff"

	// StrategyThreshold keeps results within a fixed distance band
	// above the best result.
	StrategyThreshold CutoffStrategy = "threshold"
)

// Diagnostics describes how a retrieval request was executed.
type Diagnostics struct {
	// RequestID uniquely identifies the retrieval session.
	RequestID string `json:"request_id"`

	// Iterations is the number of search rounds that returned at
	// least one candidate.
	Iterations int `json:"iterations"`

	// TotalExcluded is the number of candidates rejected by their
	// relevance predicate across all rounds.
	TotalExcluded int `json:"total_excluded"`

	// Strategy is the cutoff strategy applied to the final pool.
	Strategy CutoffStrategy `json:"strategy"`

	// ElapsedMS is the wall-clock duration of the session in
	// milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`
}

// RetrievalResult is the final, filtered, ordered evidence set
// produced for one query.
type RetrievalResult struct {
	// Candidates is ordered ascending by distance, entity-matched
	// candidates first for comparison queries.
	Candidates []Candidate `json:"candidates"`

	// Diagnostics reports how the result was produced.
	Diagnostics Diagnostics `json:"diagnostics"`
}
