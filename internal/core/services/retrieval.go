package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driven"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driving"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService orchestrates one retrieval session per request:
// embed the query, iteratively search and predicate-filter the index,
// reorder for comparison queries, and apply the adaptive cutoff.
//
// The service holds no shared mutable state; sessions are independent
// and safe to run concurrently.
type RetrievalService struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(index driven.VectorIndex, embedder driven.EmbeddingService) *RetrievalService {
	return &RetrievalService{
		index:    index,
		embedder: embedder,
	}
}

// session is the ephemeral per-request retrieval state. It is created
// at the start of one query, mutated only by the orchestration loop,
// and discarded after the result is returned.
type session struct {
	accepted   []domain.Candidate
	excluded   []string            // rejected ids, in rejection order
	seen       map[string]struct{} // every id observed, dedup across rounds
	iterations int
}

func newSession() *session {
	return &session{seen: make(map[string]struct{})}
}

// Retrieve runs the full retrieval pipeline for one query.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	start := time.Now()
	opts = opts.Normalised()
	requestID := uuid.NewString()

	logger.Section("Retrieval")
	logger.Debug("Request %s: query=%q", requestID, query)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if s.index == nil {
		return nil, domain.ErrIndexUnavailable
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", domain.ErrEmbeddingUnavailable, err)
	}
	logger.Debug("Query embedding: %d dimensions", len(embedding))

	// Comparison queries search an expanded pool so both compared
	// entities can surface.
	first, second, isComparison := detectComparison(query)
	searchK := opts.K
	if isComparison {
		searchK = opts.K * domain.ComparisonExpansion
	}
	logger.Debug("Target k=%d, search k=%d, max iterations=%d",
		opts.K, searchK, opts.MaxIterations)

	sess := newSession()
	if err := s.runFilterLoop(ctx, sess, query, embedding, searchK, opts); err != nil {
		return nil, err
	}

	pool := sess.accepted
	if isComparison && len(pool) > 0 {
		pool = s.backfillEntities(ctx, sess, pool, searchK, first, second)
		pool = reorderForComparison(pool, first, second)
	}

	strategy := domain.StrategyThreshold
	if len(pool) > 0 {
		keep, strat := cutoffCount(poolDistances(pool), opts.K, opts.GapThreshold, opts.DistanceThreshold)
		if keep < len(pool) {
			logger.Debug("Cutoff drops %d of %d candidates", len(pool)-keep, len(pool))
		}
		pool = pool[:keep]
		strategy = strat
	}

	result := &domain.RetrievalResult{
		Candidates: pool,
		Diagnostics: domain.Diagnostics{
			RequestID:     requestID,
			Iterations:    sess.iterations,
			TotalExcluded: len(sess.excluded),
			Strategy:      strategy,
			ElapsedMS:     time.Since(start).Milliseconds(),
		},
	}

	logger.Info("Request %s: %d candidates (%d iterations, %d excluded, %s strategy)",
		requestID, len(result.Candidates), sess.iterations, len(sess.excluded), strategy)
	return result, nil
}

// runFilterLoop drives the SEARCHING/FILTERING state machine. Each
// round searches the index with the accumulated exclusion set, filters
// the returned candidates through their predicates, and re-queries
// only while the accepted pool is short, at least one candidate was
// rejected this round, and the iteration budget remains.
func (s *RetrievalService) runFilterLoop(
	ctx context.Context, sess *session, query string, embedding []float32,
	searchK int, opts domain.RetrievalOptions,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates, err := s.index.Search(ctx, embedding, searchK, sess.excluded)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}

		fresh := 0
		rejected := 0
		for _, c := range candidates {
			if _, dup := sess.seen[c.ID]; dup {
				continue
			}
			sess.seen[c.ID] = struct{}{}
			fresh++

			if opts.FilteringDisabled || c.Predicate.Satisfies(query) {
				sess.accepted = append(sess.accepted, c)
				continue
			}
			logger.Debug("Rejected %s (%s): predicate unsatisfied", c.ID, c.Title)
			sess.excluded = append(sess.excluded, c.ID)
			rejected++
		}

		// Index exhausted: nothing new came back.
		if fresh == 0 {
			logger.Debug("Index exhausted after %d iterations", sess.iterations)
			return nil
		}
		sess.iterations++

		sort.SliceStable(sess.accepted, func(i, j int) bool {
			return sess.accepted[i].Distance < sess.accepted[j].Distance
		})
		if len(sess.accepted) > searchK {
			sess.accepted = sess.accepted[:searchK]
		}

		logger.Debug("Iteration %d: %d accepted, %d rejected this round",
			sess.iterations, len(sess.accepted), rejected)

		if len(sess.accepted) >= searchK || rejected == 0 || sess.iterations >= opts.MaxIterations {
			return nil
		}
	}
}

// backfillEntities guarantees both compared entities are represented
// when they exist in the index: each entity missing from the pool gets
// a targeted 1-nearest-neighbour search on its own embedding. Failures
// here degrade to the pool as-is; they never abort the session.
func (s *RetrievalService) backfillEntities(
	ctx context.Context, sess *session, pool []domain.Candidate,
	searchK int, entities ...string,
) []domain.Candidate {
	for _, entity := range entities {
		if len(pool) >= searchK || poolHasEntity(pool, entity) {
			continue
		}

		embedding, err := s.embedder.Embed(ctx, entity)
		if err != nil {
			logger.Warn("Entity backfill: embedding %q failed: %v", entity, err)
			continue
		}

		hits, err := s.index.Search(ctx, embedding, 1, sess.excluded)
		if err != nil {
			logger.Warn("Entity backfill: search for %q failed: %v", entity, err)
			continue
		}
		if len(hits) == 0 {
			continue
		}

		hit := hits[0]
		if _, dup := sess.seen[hit.ID]; dup {
			continue
		}
		sess.seen[hit.ID] = struct{}{}
		pool = append(pool, hit)
		logger.Debug("Entity backfill: added %s (%s) for %q", hit.ID, hit.Title, entity)
	}
	return pool
}
