package imagesearch

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
	"messengerrelay/internal/privacy"
	"messengerrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	serviceName      = "image-search"
	maxResponseBytes = 1 << 20
	searchQueryParam = "search"
)

// Searcher looks up image URLs for a free-text query
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Response is the body returned by the image search API
type Response struct {
	Status bool     `json:"status"`
	Data   []string `json:"data"`
}

type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = constants.DefaultImageSearchURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultExternalTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		logger:  logger,
	}
}

// Search returns the image URLs for query. A response with status false or no
// data yields an empty slice and no error.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	endpoint, err := c.endpoint(query)
	if err != nil {
		return nil, errors.NewAPIError(serviceName, c.baseURL, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewAPIError(serviceName, c.baseURL, 0, fmt.Errorf("failed to create request: %w", err))
	}

	req, span := tracing.StartClientSpan(req, "imagesearch.search",
		attribute.Int("imagesearch.query_length", len(query)),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		apiErr := errors.NewAPIError(serviceName, c.baseURL, 0, fmt.Errorf("failed to send request: %w", err))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "transport failure")
		return nil, apiErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := errors.NewAPIError(serviceName, c.baseURL, resp.StatusCode,
			fmt.Errorf("image search error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, apiErr
	}

	var result Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		apiErr := errors.NewAPIError(serviceName, c.baseURL, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "decode failure")
		return nil, apiErr
	}

	images := make([]string, 0, len(result.Data))
	if result.Status {
		for _, u := range result.Data {
			if strings.TrimSpace(u) != "" {
				images = append(images, u)
			}
		}
	}
	span.SetAttributes(attribute.Int("imagesearch.results", len(images)))

	c.logger.WithFields(logrus.Fields{
		"endpoint":    privacy.MaskURL(c.baseURL),
		"results":     len(images),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Image search completed")

	return images, nil
}

func (c *Client) endpoint(query string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid image search URL: %w", err)
	}
	q := u.Query()
	q.Set(searchQueryParam, query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
