package mcp

import (
	"context"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

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
	return m.result, m.err
}
