// Package chroma provides a VectorIndex adapter speaking the ChromaDB
// REST API. The index itself runs as an external server; this client
// only resolves the configured collection and runs similarity queries
// against it.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driven"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the ChromaDB client.
type Config struct {
	// BaseURL is the ChromaDB server URL (default: http://localhost:8000).
	BaseURL string

	// Collection is the collection name to query (required).
	Collection string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Index queries a ChromaDB collection over HTTP.
type Index struct {
	client     *http.Client
	baseURL    string
	collection string

	mu           sync.Mutex
	collectionID string // resolved lazily on first search
}

// collectionInfo is the ChromaDB collection representation.
type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// queryRequest is the ChromaDB query request format.
type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

// queryResponse is the ChromaDB query response format. Results come
// back as one inner list per query embedding; we always send one.
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// NewIndex creates a new ChromaDB-backed vector index client.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("chroma: collection name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Index{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
	}, nil
}

// Search returns up to k candidates not in excludeIDs, ascending by
// distance. ChromaDB cannot exclude ids server-side in a query, so the
// client over-fetches k+len(excludeIDs) results and drops the excluded
// ones.
func (x *Index) Search(
	ctx context.Context, embedding []float32, k int, excludeIDs []string,
) ([]domain.Candidate, error) {
	collectionID, err := x.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k + len(excludeIDs),
		Include:         []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", x.baseURL, collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chroma error (status %d): %s", resp.StatusCode, string(body))
	}

	var queryResp queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(queryResp.IDs) == 0 {
		return nil, nil
	}
	if len(queryResp.Documents) == 0 || len(queryResp.Distances) == 0 ||
		len(queryResp.Metadatas) == 0 {
		return nil, fmt.Errorf("decode response: result arrays do not parallel ids")
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	ids := queryResp.IDs[0]
	docs := queryResp.Documents[0]
	dists := queryResp.Distances[0]
	metas := queryResp.Metadatas[0]

	candidates := make([]domain.Candidate, 0, len(ids))
	for i, id := range ids {
		if _, skip := excluded[id]; skip {
			continue
		}
		if len(candidates) >= k {
			break
		}

		c := domain.Candidate{ID: id}
		if i < len(docs) {
			c.Text = docs[i]
		}
		if i < len(dists) {
			c.Distance = dists[i]
		}
		if i < len(metas) {
			meta := metas[i]
			c.Title = metadataTitle(meta)
			c.Predicate = metadataPredicate(id, meta)
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// Close releases resources.
func (x *Index) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// resolveCollection looks up the collection id by name, caching the
// result for subsequent searches.
func (x *Index) resolveCollection(ctx context.Context) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.collectionID != "" {
		return x.collectionID, nil
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s", x.baseURL, x.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		available := x.listCollectionNames(ctx)
		if len(available) > 0 {
			return "", fmt.Errorf("%w: %q (available: %s)",
				domain.ErrNoCollection, x.collection, strings.Join(available, ", "))
		}
		return "", fmt.Errorf("%w: %q", domain.ErrNoCollection, x.collection)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chroma error (status %d): %s", resp.StatusCode, string(body))
	}

	var info collectionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode collection: %w", err)
	}
	if info.ID == "" {
		return "", fmt.Errorf("chroma: collection %q has no id", x.collection)
	}

	x.collectionID = info.ID
	return x.collectionID, nil
}

// listCollectionNames fetches all collection names, best effort, for
// the not-found error message.
func (x *Index) listCollectionNames(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, x.baseURL+"/api/v1/collections", http.NoBody)
	if err != nil {
		return nil
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var infos []collectionInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// metadataTitle extracts the display label from candidate metadata.
func metadataTitle(meta map[string]any) string {
	for _, key := range []string{"name", "title"} {
		if v, ok := meta[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// metadataPredicate decodes the relevance predicate from metadata,
// failing open on malformed values.
func metadataPredicate(id string, meta map[string]any) *domain.Predicate {
	raw, ok := meta[domain.PredicateKey]
	if !ok {
		return nil
	}

	p, err := domain.ParsePredicate(raw)
	if err != nil {
		logger.Warn("Candidate %s: %v (keeping candidate)", id, err)
		return nil
	}
	return p
}
