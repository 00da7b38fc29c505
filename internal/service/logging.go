package service

import (
	"context"

	"messengerrelay/internal/privacy"
	"messengerrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks the context for unmasked logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizePSID masks a page-scoped ID unless verbose logging is on
func SanitizePSID(ctx context.Context, psid string) string {
	if IsVerboseLogging(ctx) {
		return psid
	}
	return privacy.MaskPSID(psid)
}

// SanitizeText shortens user text unless verbose logging is on
func SanitizeText(ctx context.Context, text string) string {
	if IsVerboseLogging(ctx) {
		return text
	}
	return privacy.MaskText(text, 10)
}

// entryFor returns a log entry carrying the request and trace IDs of ctx
func entryFor(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if id := tracing.GetRequestID(ctx); id != "" {
		fields[LogFieldRequestID] = id
	}
	if id := tracing.GetTraceID(ctx); id != "" {
		fields[LogFieldTraceID] = id
	}
	return logger.WithFields(fields)
}
