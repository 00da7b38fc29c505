package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"messengerrelay/internal/metrics"
	"messengerrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(level)
	return logger, &buf
}

// logLines decodes every JSON log line in buf
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &fields))
		lines = append(lines, fields)
	}
	return lines
}

func TestObservabilityMiddleware_SetsRequestInfo(t *testing.T) {
	logger, buf := bufferedLogger(logrus.InfoLevel)

	var seenRequestID string
	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = tracing.GetRequestID(r.Context())
		assert.False(t, tracing.GetStartTime(r.Context()).IsZero())
		_, _ = w.Write([]byte("Hello World"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(seenRequestID, "req_"))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "HTTP request completed", lines[0]["msg"])
	assert.Equal(t, seenRequestID, lines[0]["request_id"])
	assert.Equal(t, float64(200), lines[0]["status_code"])
	assert.Equal(t, float64(len("Hello World")), lines[0]["size_bytes"])
	assert.Equal(t, "192.168.1.100", lines[0]["remote_ip"])
}

func TestObservabilityMiddleware_LogLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusForbidden, "warning"},
		{http.StatusNotFound, "warning"},
		{http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger, buf := bufferedLogger(logrus.InfoLevel)
			handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", nil))

			lines := logLines(t, buf)
			require.NotEmpty(t, lines)
			assert.Equal(t, tt.level, lines[len(lines)-1]["level"])
		})
	}
}

func TestObservabilityMiddleware_RecordsMetrics(t *testing.T) {
	logger, _ := bufferedLogger(logrus.PanicLevel)
	labels := map[string]string{"method": "GET", "endpoint": "/metrics-test", "status_code": "204"}
	before := metrics.GetRegistry().CounterValue("http_responses_total", labels)

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test", nil))

	assert.Equal(t, before+1, metrics.GetRegistry().CounterValue("http_responses_total", labels))
}

func TestObservabilityMiddleware_NeverLogsVerifyToken(t *testing.T) {
	logger, buf := bufferedLogger(logrus.DebugLevel)
	handler := ObservabilityMiddleware(logger)(WebhookObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("challenge"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=super-secret-verify-token&hub.challenge=42", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "super-secret-verify-token")
}

func TestWebhookObservabilityMiddleware_CountsByKind(t *testing.T) {
	logger, _ := bufferedLogger(logrus.PanicLevel)
	handler := WebhookObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("EVENT_RECEIVED"))
	}))

	reg := metrics.GetRegistry()
	verifyErrors := map[string]string{"kind": "verify", "status_code": "403"}
	eventOK := map[string]string{"kind": "event"}
	beforeErr := reg.CounterValue("webhook_errors_total", verifyErrors)
	beforeOK := reg.CounterValue("webhook_success_total", eventOK)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/webhook", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))

	assert.Equal(t, beforeErr+1, reg.CounterValue("webhook_errors_total", verifyErrors))
	assert.Equal(t, beforeOK+1, reg.CounterValue("webhook_success_total", eventOK))
}

func TestResponseWrapper_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, int64(2), rw.responseSize)
}

func TestDetailedLoggingMiddleware_MasksWebhookBody(t *testing.T) {
	logger, buf := bufferedLogger(logrus.DebugLevel)
	body := `{"object":"page","entry":[{"id":"PAGE","messaging":[{"sender":{"id":"6783451209876543"},"message":{"text":"show me pictures of cats"}}]}]}`

	var received string
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = string(data)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, received, "handler must still see the full body")

	logged := buf.String()
	assert.Contains(t, logged, "Detailed request logging")
	assert.NotContains(t, logged, "6783451209876543")
	assert.Contains(t, logged, "6543")
	assert.NotContains(t, logged, "show me pictures of cats")
	assert.NotContains(t, logged, "deadbeef")
}

func TestDetailedLoggingMiddleware_SkipsWhenNotDebug(t *testing.T) {
	logger, buf := bufferedLogger(logrus.InfoLevel)
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))
	assert.Empty(t, buf.String())
}

func TestDetailedLoggingMiddleware_SkipsEndpoints(t *testing.T) {
	logger, buf := bufferedLogger(logrus.DebugLevel)
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}

func TestMaskWebhookBody_NonJSON(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"size_bytes": 5}, maskWebhookBody([]byte("hello")))
}
