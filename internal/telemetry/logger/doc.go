// Package logger provides structured logging for the LibOS.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, JSON/text handlers, dynamic level
//   - context.go: context propagation of the logger and thread identity
//   - attrs.go: hex rendering of user-space addresses
package logger
