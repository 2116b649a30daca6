// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports) consumed by the retrieval engine.
package driven
