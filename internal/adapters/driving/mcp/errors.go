package mcp

import "errors"

// ErrMissingRetrievalService indicates the retrieval port was not
// provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
