// Package sqlite provides a local VectorIndex backed by SQLite.
// Embeddings are stored as little-endian float32 blobs and searched
// with a brute-force cosine-distance scan, which is exact and fast
// enough for a single-machine corpus of tens of thousands of chunks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driven"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Chunk is one corpus entry as stored in the index.
type Chunk struct {
	ID        string
	Title     string
	Content   string
	Predicate *domain.Predicate
	Embedding []float32
}

// Index is a SQLite-backed vector index.
type Index struct {
	db   *sql.DB
	path string
}

// NewIndex opens (or creates) a SQLite index at the given path.
// If path is empty, defaults to ~/.lorekeeper/data/index.db.
func NewIndex(path string) (*Index, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".lorekeeper", "data", "index.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode so a load can run while queries are served.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	x := &Index{db: db, path: path}
	if err := x.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return x, nil
}

// createSchema bootstraps the chunks table.
func (x *Index) createSchema() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			predicate  TEXT,
			embedding  BLOB NOT NULL,
			dimensions INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}
	return nil
}

// Search scans the corpus and returns the k nearest chunks by cosine
// distance, ascending, skipping excluded ids.
func (x *Index) Search(
	ctx context.Context, embedding []float32, k int, excludeIDs []string,
) ([]domain.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	rows, err := x.db.QueryContext(ctx,
		"SELECT id, title, content, predicate, embedding FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	defer rows.Close()

	queryNorm := vectorNorm(embedding)

	var candidates []domain.Candidate
	for rows.Next() {
		var (
			id, title, content string
			predicateJSON      sql.NullString
			blob               []byte
		)
		if err := rows.Scan(&id, &title, &content, &predicateJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}

		if _, skip := excluded[id]; skip {
			continue
		}

		vec := decodeEmbedding(blob)
		if len(vec) != len(embedding) {
			logger.Warn("Chunk %s: dimension mismatch (%d vs %d), skipping",
				id, len(vec), len(embedding))
			continue
		}

		candidates = append(candidates, domain.Candidate{
			ID:        id,
			Title:     title,
			Text:      content,
			Distance:  cosineDistance(embedding, vec, queryNorm),
			Predicate: decodePredicate(id, predicateJSON),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// Add upserts a chunk into the index.
func (x *Index) Add(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %s has no embedding", domain.ErrInvalidInput, chunk.ID)
	}

	var predicateJSON any
	if !chunk.Predicate.IsZero() {
		data, err := json.Marshal(chunk.Predicate)
		if err != nil {
			return fmt.Errorf("encoding predicate for %s: %w", chunk.ID, err)
		}
		predicateJSON = string(data)
	}

	_, err := x.db.ExecContext(ctx, `
		INSERT INTO chunks (id, title, content, predicate, embedding, dimensions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			predicate = excluded.predicate,
			embedding = excluded.embedding,
			dimensions = excluded.dimensions
	`, chunk.ID, chunk.Title, chunk.Content, predicateJSON,
		encodeEmbedding(chunk.Embedding), len(chunk.Embedding))
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Count returns the number of chunks in the index.
func (x *Index) Count(ctx context.Context) (int, error) {
	var count int
	row := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// Path returns the database file path.
func (x *Index) Path() string {
	return x.path
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding unpacks little-endian float32 bytes.
func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// decodePredicate parses a stored predicate, failing open on error.
func decodePredicate(id string, raw sql.NullString) *domain.Predicate {
	if !raw.Valid || raw.String == "" {
		return nil
	}

	p, err := domain.ParsePredicate(raw.String)
	if err != nil {
		logger.Warn("Chunk %s: %v (keeping chunk)", id, err)
		return nil
	}
	return p
}

// vectorNorm computes the Euclidean norm.
func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// cosineDistance computes 1 - cosine similarity. A zero vector has no
// direction, so it gets the orthogonal distance of 1.
func cosineDistance(query, other []float32, queryNorm float64) float64 {
	otherNorm := vectorNorm(other)
	if queryNorm == 0 || otherNorm == 0 {
		return 1
	}

	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(other[i])
	}
	return 1 - dot/(queryNorm*otherNorm)
}
