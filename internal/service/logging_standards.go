package service

// Logging Standards for the relay
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldPSID      = "psid"
	LogFieldMessageID = "message_id"
	LogFieldPageID    = "page_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldStrategy  = "strategy"

	// Event fields
	LogFieldEvent     = "event"
	LogFieldEventKind = "event_kind"
	LogFieldPayload   = "payload"
	LogFieldEntries   = "entries"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Network and external services
	LogFieldMethod     = "method"
	LogFieldPath       = "path"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldPanic     = "panic"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Skipped events (echoes, empty messages, unknown postbacks)
//   - Raw request/response data (sanitized)
//
// INFO: General information about application flow and key events.
//   - Application startup/shutdown
//   - Webhook verification
//   - Replies sent
//
// WARN: Something unexpected happened, but the application can continue.
//   - Fallback reply used after an external API failure
//   - Circuit breaker open
//   - Rejected verification attempts
//
// ERROR: Error events that might still allow the application to continue.
//   - Send API failures
//   - Recovered panics in background tasks
//
// FATAL: Configuration required for startup is missing.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "[Operation] completed"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
// External services: "[Service] request completed" / "[Service] request failed"
//
// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldPSID:      privacy.MaskPSID(psid),
//     LogFieldStrategy:  strategy.Name(),
//     LogFieldEventKind: event.Kind().String(),
// }).Info("Processing messaging event")
