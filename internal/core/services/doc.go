// Package services implements the retrieval engine's business logic
// over the driven ports: the iterative predicate-filtered search loop,
// adaptive result-set cutoff and comparison-aware reordering.
package services
