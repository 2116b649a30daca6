package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// fakeEmbedder returns a fixed vector for every text.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 3 }
func (f *fakeEmbedder) ModelName() string            { return "fake" }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

// fakeIndex serves canned candidates, honouring the exclusion set the
// way a real index does. It records every Search call for assertions.
type fakeIndex struct {
	candidates []domain.Candidate
	err        error

	searches   int
	ks         []int
	exclusions [][]string
}

func (f *fakeIndex) Search(
	_ context.Context, _ []float32, k int, excludeIDs []string,
) ([]domain.Candidate, error) {
	f.searches++
	f.ks = append(f.ks, k)
	f.exclusions = append(f.exclusions, append([]string(nil), excludeIDs...))
	if f.err != nil {
		return nil, f.err
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	var out []domain.Candidate
	for _, c := range f.candidates {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) Close() error { return nil }

func TestRetrieve_NoPredicatesReturnsRankedResults(t *testing.T) {
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "a", Title: "A", Distance: 0.10},
		{ID: "b", Title: "B", Distance: 0.15},
		{ID: "c", Title: "C", Distance: 0.20},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "how do saving throws work", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "a", result.Candidates[0].ID)
	assert.Equal(t, 1, result.Diagnostics.Iterations)
	assert.Equal(t, 0, result.Diagnostics.TotalExcluded)
	assert.Equal(t, 1, index.searches)
	assert.NotEmpty(t, result.Diagnostics.RequestID)
}

func TestRetrieve_FiltersUnsatisfiedPredicates(t *testing.T) {
	// "b" demands a term the query lacks; it must be replaced by "d"
	// from the second round.
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "a", Distance: 0.10},
		{ID: "b", Distance: 0.20, Predicate: &domain.Predicate{Contain: "dragon"}},
		{ID: "c", Distance: 0.30},
		{ID: "d", Distance: 0.35},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "cleric armor", domain.RetrievalOptions{K: 3})

	require.NoError(t, err)
	ids := candidateIDs(result.Candidates)
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, 1, result.Diagnostics.TotalExcluded)
	assert.Equal(t, 2, result.Diagnostics.Iterations)
}

func TestRetrieve_ExclusionSetGrowsMonotonically(t *testing.T) {
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "a", Distance: 0.10, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "b", Distance: 0.20, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "c", Distance: 0.30, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "d", Distance: 0.40, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "e", Distance: 0.50, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "f", Distance: 0.60, Predicate: &domain.Predicate{Contain: "zzz"}},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{K: 2})

	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	// Every search's exclusion set contains the previous one.
	for i := 1; i < len(index.exclusions); i++ {
		prev, curr := index.exclusions[i-1], index.exclusions[i]
		assert.GreaterOrEqual(t, len(curr), len(prev))
		for j, id := range prev {
			assert.Equal(t, id, curr[j])
		}
	}
}

func TestRetrieve_StopsAtMaxIterations(t *testing.T) {
	// Everything is rejected, and the corpus is deep enough to keep
	// offering fresh candidates each round.
	var pool []domain.Candidate
	for i := 0; i < 50; i++ {
		pool = append(pool, domain.Candidate{
			ID:        string(rune('a' + i)),
			Distance:  float64(i) * 0.01,
			Predicate: &domain.Predicate{Contain: "unmatchable-term"},
		})
	}
	index := &fakeIndex{candidates: pool}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{K: 5})

	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, domain.DefaultMaxIterations, result.Diagnostics.Iterations)
	assert.Equal(t, domain.DefaultMaxIterations, index.searches)
}

func TestRetrieve_FilteringDisabledSkipsPredicates(t *testing.T) {
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "a", Distance: 0.10, Predicate: &domain.Predicate{Contain: "zzz"}},
		{ID: "b", Distance: 0.20, Predicate: &domain.Predicate{Contain: "zzz"}},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "query",
		domain.RetrievalOptions{FilteringDisabled: true})

	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
	assert.Equal(t, 0, result.Diagnostics.TotalExcluded)
	assert.Equal(t, 1, index.searches)
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	svc := NewRetrievalService(&fakeIndex{}, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 0, result.Diagnostics.Iterations)
	assert.Equal(t, 0, result.Diagnostics.TotalExcluded)
	assert.Equal(t, domain.StrategyThreshold, result.Diagnostics.Strategy)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	svc := NewRetrievalService(&fakeIndex{}, &fakeEmbedder{})

	_, err := svc.Retrieve(context.Background(), "   ", domain.RetrievalOptions{})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_IndexError(t *testing.T) {
	index := &fakeIndex{err: errors.New("connection refused")}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	_, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{})

	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestRetrieve_EmbeddingError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	svc := NewRetrievalService(&fakeIndex{}, embedder)

	_, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{})

	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrieve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewRetrievalService(&fakeIndex{}, &fakeEmbedder{})

	_, err := svc.Retrieve(ctx, "query", domain.RetrievalOptions{})

	assert.Error(t, err)
}

func TestRetrieve_AdaptiveCutoffApplied(t *testing.T) {
	// Distance cliff after the third candidate.
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "a", Distance: 0.88},
		{ID: "b", Distance: 0.93},
		{ID: "c", Distance: 0.94},
		{ID: "d", Distance: 1.08},
		{ID: "e", Distance: 1.08},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, candidateIDs(result.Candidates))
	assert.Equal(t, domain.StrategyCliff, result.Diagnostics.Strategy)
}

func TestRetrieve_ComparisonQueryIncludesBothEntities(t *testing.T) {
	// The white dragon chunk ranks far down; the expanded comparison
	// pool must still surface it, and entity matches lead the result.
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "red", Title: "Red Dragon", Distance: 0.10},
		{ID: "misc", Title: "Treasure Types", Distance: 0.20},
		{ID: "white", Title: "White Dragon", Distance: 0.90},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	result, err := svc.Retrieve(context.Background(),
		"compare the red dragon and the white dragon", domain.RetrievalOptions{K: 2})

	require.NoError(t, err)
	ids := candidateIDs(result.Candidates)
	require.NotEmpty(t, ids)
	assert.Equal(t, "red", ids[0])
	assert.Contains(t, ids, "white")
}

func TestRetrieve_ComparisonExpandsSearchK(t *testing.T) {
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "red", Title: "Red Dragon", Distance: 0.10},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	_, err := svc.Retrieve(context.Background(),
		"red dragon vs white dragon", domain.RetrievalOptions{K: 5})

	require.NoError(t, err)
	require.NotEmpty(t, index.ks)
	assert.Equal(t, 5*domain.ComparisonExpansion, index.ks[0])
}

func TestBackfillEntities_AddsMissingEntity(t *testing.T) {
	// The pool holds only the first entity; a targeted search pulls the
	// second one in without aborting on lookup problems.
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "white", Title: "White Dragon", Distance: 0.90},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	sess := newSession()
	pool := []domain.Candidate{{ID: "red", Title: "Red Dragon", Distance: 0.10}}
	sess.seen["red"] = struct{}{}

	pool = svc.backfillEntities(context.Background(), sess, pool, 6,
		"red dragon", "white dragon")

	require.Len(t, pool, 2)
	assert.Equal(t, "white", pool[1].ID)
}

func TestBackfillEntities_SkipsWhenPoolFull(t *testing.T) {
	index := &fakeIndex{candidates: []domain.Candidate{
		{ID: "white", Title: "White Dragon", Distance: 0.90},
	}}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	sess := newSession()
	pool := []domain.Candidate{{ID: "red", Title: "Red Dragon", Distance: 0.10}}

	pool = svc.backfillEntities(context.Background(), sess, pool, 1,
		"red dragon", "white dragon")

	assert.Len(t, pool, 1)
	assert.Equal(t, 0, index.searches)
}

func TestBackfillEntities_DegradesOnSearchError(t *testing.T) {
	index := &fakeIndex{err: errors.New("index down")}
	svc := NewRetrievalService(index, &fakeEmbedder{})

	sess := newSession()
	pool := []domain.Candidate{{ID: "red", Title: "Red Dragon", Distance: 0.10}}

	pool = svc.backfillEntities(context.Background(), sess, pool, 6,
		"red dragon", "white dragon")

	assert.Len(t, pool, 1)
}

func candidateIDs(candidates []domain.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}
