// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Besides the usual levels the logger exposes the diagnostics surface the
// orchestrator relies on:
//   - Error: faults that are logged and dropped (malformed events, routing)
//   - Perf: debug-level timing lines under the "perf" name
//   - Flush: push buffered entries to the durable sink
//
// When Config.File is set, entries are buffered in memory and written to the
// file on Flush, on the flush interval or when the buffer fills.
//
// Output defaults to stderr because stdout carries controller traffic when
// the host runs in stdio mode.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Host starting", zap.String("engine", "goja"))
//	logger.Perf("exec routed", zap.Duration("elapsed", time.Since(start)))
//	_ = logger.Flush()
package logging
