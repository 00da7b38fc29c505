package personachat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/errors"
	"messengerrelay/internal/models"
	"messengerrelay/internal/privacy"
	"messengerrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const serviceName = "persona-chat"

// Client generates a persona reply for a prompt. uid identifies the user to
// backends that key sessions on it.
type Client interface {
	Ask(ctx context.Context, prompt, uid string) (string, error)
}

// New builds the client for the configured backend
func New(cfg models.PersonaChatConfig, httpClient *http.Client, logger *logrus.Logger) (Client, error) {
	if httpClient == nil {
		timeout := cfg.TimeoutSec
		if timeout <= 0 {
			timeout = constants.DefaultExternalTimeoutSec
		}
		httpClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	switch cfg.Backend {
	case "", models.PersonaBackendHTTP:
		return NewHTTPClient(cfg.URL, cfg.APIKey, httpClient, logger), nil
	case models.PersonaBackendOpenAI:
		return NewOpenAIClient(cfg.URL, cfg.APIKey, cfg.Model, httpClient)
	default:
		return nil, errors.NewConfigError("reply.personaChat.backend", fmt.Sprintf("unknown persona chat backend %q", cfg.Backend))
	}
}

// apiResponse is the body returned by the HTTP persona backend
type apiResponse struct {
	Response string `json:"response"`
}

// HTTPClient calls a GET endpoint taking ask, uid and apikey query parameters
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client, logger *logrus.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = constants.DefaultPersonaChatURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultExternalTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *HTTPClient) Ask(ctx context.Context, prompt, uid string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.NewAPIError(serviceName, c.baseURL, 0, fmt.Errorf("invalid persona chat URL: %w", err))
	}
	q := u.Query()
	q.Set("ask", prompt)
	q.Set("uid", uid)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u.RawQuery = q.Encode()
	endpoint := privacy.MaskURL(u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.NewAPIError(serviceName, endpoint, 0, fmt.Errorf("failed to create request: %w", err))
	}

	req, span := tracing.StartClientSpan(req, "personachat.ask",
		attribute.String("personachat.backend", models.PersonaBackendHTTP),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error carries the full URL including the API key
		apiErr := errors.NewAPIError(serviceName, endpoint, 0, fmt.Errorf("failed to send request: %w", unwrapURLError(err)))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "transport failure")
		return "", apiErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := errors.NewAPIError(serviceName, endpoint, resp.StatusCode,
			fmt.Errorf("persona chat error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return "", apiErr
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		apiErr := errors.NewAPIError(serviceName, endpoint, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
		span.RecordError(apiErr)
		return "", apiErr
	}

	text := strings.TrimSpace(result.Response)
	if text == "" {
		apiErr := errors.NewAPIError(serviceName, endpoint, resp.StatusCode, fmt.Errorf("empty persona chat response"))
		span.RecordError(apiErr)
		return "", apiErr
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Persona chat response received")

	return text, nil
}

func unwrapURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
