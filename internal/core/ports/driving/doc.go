// Package driving provides interfaces exposed to external actors
// (primary/inbound ports): the CLI and the MCP server.
package driving
