// Package errors provides foundational, type-safe error primitives used across forpostctl.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (not found, validation, filesystem, process, etc.)
//   - ErrorSeverity: Impact level (error, warning, info)
//   - RetryStrategy: Retry hint for the operator (no operation in forpostctl retries on its own)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.ProcessError("systemctl stop failed").
//		WithContext("unit", unit).
//		WithCause(originalErr).
//		Build()
package errors
