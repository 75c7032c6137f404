// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package database

import (
	"io"
	"strings"
)

// closeQuietly closes a resource and explicitly ignores any error.
// Use this for cleanup in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // Explicitly ignore error - cleanup is best-effort
	}
}

// IsTransactionConflict reports whether err is a DuckDB write-write conflict.
// These are retryable: the writer lock should prevent them in-process, but a
// second process on the same file can still trigger one.
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// IsConnectionError reports whether err indicates connection loss rather than
// a query failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "bad connection") ||
		strings.Contains(errMsg, "database is closed")
}

// IsRetryable reports whether a failed write is worth another attempt.
// Conflicts and connection loss are transient; anything else (schema errors,
// constraint violations, an open circuit breaker upstream) fails the same way
// on every attempt, so retrying only delays the failure report.
func IsRetryable(err error) bool {
	return IsTransactionConflict(err) || IsConnectionError(err)
}
