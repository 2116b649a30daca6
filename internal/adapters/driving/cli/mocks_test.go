package cli

import (
	"context"
	"errors"
	"testing"

	configfile "github.com/gravitycar/lorekeeper/internal/adapters/driven/config/file"
	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// newTestConfigStore builds a config store over a temp directory.
func newTestConfigStore(t *testing.T) (*configfile.ConfigStore, error) {
	t.Helper()
	return configfile.NewConfigStore(t.TempDir())
}

// mockRetrievalService is a mock implementation of
// driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error

	gotQuery string
	gotOpts  domain.RetrievalOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	if m.result == nil && m.err == nil {
		return &domain.RetrievalResult{}, nil
	}
	return m.result, m.err
}

// mockEmbedder returns a fixed vector for every text.
type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2}, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, float32(i) * 0.1}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return 2 }
func (m *mockEmbedder) ModelName() string            { return "mock" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

var errMock = errors.New("mock failure")

// setupTestServices injects mock services and returns a cleanup
// function restoring the previous wiring.
func setupTestServices() (*mockRetrievalService, func()) {
	oldRetrieval := retrievalService
	oldEmbedding := embeddingService
	oldIndex := vectorIndex
	oldLocal := localIndex

	mock := &mockRetrievalService{
		result: &domain.RetrievalResult{
			Candidates: []domain.Candidate{
				{ID: "chunk-1", Title: "Saving Throws", Text: "Roll high.", Distance: 0.12},
				{ID: "chunk-2", Title: "Initiative", Text: "Roll a d6.", Distance: 0.25},
			},
			Diagnostics: domain.Diagnostics{
				RequestID:     "req-1",
				Iterations:    1,
				TotalExcluded: 0,
				Strategy:      domain.StrategyThreshold,
				ElapsedMS:     7,
			},
		},
	}
	retrievalService = mock
	embeddingService = &mockEmbedder{}

	return mock, func() {
		retrievalService = oldRetrieval
		embeddingService = oldEmbedding
		vectorIndex = oldIndex
		localIndex = oldLocal
	}
}
