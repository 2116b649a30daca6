package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query      string `json:"query" jsonschema:"the natural-language question to retrieve evidence for"`
	K          int    `json:"k,omitempty" jsonschema:"target number of passages (default 15)"`
	Unfiltered bool   `json:"unfiltered,omitempty" jsonschema:"bypass relevance-predicate filtering and return raw ranked results"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Candidates  []CandidateOutput `json:"candidates"`
	Diagnostics DiagnosticsOutput `json:"diagnostics"`
}

// CandidateOutput represents a single retrieved passage.
type CandidateOutput struct {
	ID       string  `json:"id"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// DiagnosticsOutput reports how the evidence set was produced.
type DiagnosticsOutput struct {
	RequestID     string `json:"request_id"`
	Iterations    int    `json:"iterations"`
	TotalExcluded int    `json:"total_excluded"`
	Strategy      string `json:"strategy"`
	ElapsedMS     int64  `json:"elapsed_ms"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve a minimal, high-precision set of corpus passages relevant to a question",
	}, s.handleRetrieve)
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	opts := domain.RetrievalOptions{
		K:                 input.K,
		FilteringDisabled: input.Unfiltered,
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, opts)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Candidates: make([]CandidateOutput, len(result.Candidates)),
		Diagnostics: DiagnosticsOutput{
			RequestID:     result.Diagnostics.RequestID,
			Iterations:    result.Diagnostics.Iterations,
			TotalExcluded: result.Diagnostics.TotalExcluded,
			Strategy:      string(result.Diagnostics.Strategy),
			ElapsedMS:     result.Diagnostics.ElapsedMS,
		},
	}

	for i := range result.Candidates {
		output.Candidates[i] = CandidateOutput{
			ID:       result.Candidates[i].ID,
			Title:    result.Candidates[i].Title,
			Text:     result.Candidates[i].Text,
			Distance: result.Candidates[i].Distance,
		}
	}

	return nil, output, nil
}
