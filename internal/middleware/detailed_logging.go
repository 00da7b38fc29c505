package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"messengerrelay/internal/httputil"
	"messengerrelay/internal/privacy"
	"messengerrelay/internal/service"
	"messengerrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders bool     `json:"log_request_headers"`
	LogRequestBody    bool     `json:"log_request_body"`
	MaxBodySize       int      `json:"max_body_size"`
	SensitiveHeaders  []string `json:"sensitive_headers"`
	SkipEndpoints     []string `json:"skip_endpoints"`
}

// DefaultDetailedLoggingConfig returns the config used in verbose mode
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		LogRequestBody:    true,
		MaxBodySize:       4096,
		SensitiveHeaders: []string{
			"authorization", "cookie", "x-hub-signature", "x-hub-signature-256",
		},
		SkipEndpoints: []string{
			"/metrics", "/health",
		},
	}
}

// DetailedLoggingMiddleware logs the raw inbound request at debug level. Query
// credentials are masked and webhook bodies have their user fields masked.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipPath(r.URL.Path, config.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			logRequestDetails(logger, r, config)
			next.ServeHTTP(w, r)
		})
	}
}

func skipPath(path string, skip []string) bool {
	for _, s := range skip {
		if path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
	}
	return false
}

func logRequestDetails(logger *logrus.Logger, r *http.Request, config DetailedLoggingConfig) {
	requestInfo := tracing.GetRequestInfo(r.Context())
	fields := logrus.Fields{
		service.LogFieldRequestID: requestInfo.RequestID,
		service.LogFieldTraceID:   requestInfo.TraceID,
		service.LogFieldMethod:    r.Method,
		"url":                     privacy.MaskURL(r.URL.String()),
		service.LogFieldRemoteIP:  httputil.GetClientIP(r),
		"content_length":          r.ContentLength,
		"protocol":                r.Proto,
	}

	if config.LogRequestHeaders {
		headers := make(map[string]string, len(r.Header))
		for name, values := range r.Header {
			if isSensitiveHeader(name, config.SensitiveHeaders) {
				headers[name] = "***MASKED***"
			} else {
				headers[name] = strings.Join(values, ", ")
			}
		}
		fields["request_headers"] = headers
	}

	if config.LogRequestBody && shouldLogBody(r) && r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			fields["request_body"] = maskWebhookBody(body)
		}
	}

	logger.WithFields(fields).Debug("Detailed request logging")
}

// maskWebhookBody masks sender IDs and message text inside a webhook envelope.
// Bodies that are not JSON are replaced by their size.
func maskWebhookBody(body []byte) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return map[string]interface{}{"size_bytes": len(body)}
	}
	return maskValue(decoded)
}

func maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		// sender/recipient objects carry the PSID under "id"
		if id, ok := val["id"].(string); ok && len(val) == 1 {
			return map[string]interface{}{"id": privacy.MaskPSID(id)}
		}
		masked := privacy.MaskSensitiveFields(val)
		for k, inner := range masked {
			masked[k] = maskValue(inner)
		}
		return masked
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = maskValue(inner)
		}
		return out
	default:
		return v
	}
}

// isSensitiveHeader checks if a header should be masked
func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}

// shouldLogBody reports whether the request body is JSON or form text
func shouldLogBody(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.Contains(contentType, "application/json") ||
		strings.Contains(contentType, "application/x-www-form-urlencoded")
}
