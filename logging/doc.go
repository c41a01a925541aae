// Package logging provides a minimal logging interface and adapters for agentpipe.
//
// The Logger interface defines the key/value logging methods agents, the tool
// executor and flows use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component / run context and domain helpers
//   - NoOpLogger for silent operation (the default everywhere)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	a, err := agent.New("writer", m, agent.WithLogger(logger))
package logging
