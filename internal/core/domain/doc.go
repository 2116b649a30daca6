// Package domain contains the core business entities of the retrieval
// engine: candidates, relevance predicates, retrieval options and
// results. These types have no dependencies on adapters or
// infrastructure and all logic in this package is pure.
package domain
