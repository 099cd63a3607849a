// Package logging provides the structured logging surface shared by every
// Fidelio package: Master, Broker, the coordination-store adapters, and the
// CLI. It wraps log/slog so call sites stay one-liners (Debug/Info/Warn/Error
// taking a subsystem tag and a printf-style message) while the underlying
// handler can be swapped for text, JSON, or a test-capturing sink.
package logging
