package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
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

// maxErrorBodyBytes caps how much of a failed response is read for diagnostics
const maxErrorBodyBytes = 4096

// Client sends replies through the Messenger Send API
type Client interface {
	Send(ctx context.Context, psid string, reply *models.Reply) (*models.SendResponse, error)
}

type SendClient struct {
	graphURL      string
	accessToken   string
	messagingType string
	client        *http.Client
	logger        *logrus.Logger
}

func NewClient(graphURL, accessToken string, httpClient *http.Client) Client {
	return NewClientWithLogger(graphURL, accessToken, httpClient, nil)
}

func NewClientWithLogger(graphURL, accessToken string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultSendTimeoutSec) * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	if graphURL == "" {
		graphURL = constants.DefaultGraphAPIURL
	}

	return &SendClient{
		graphURL:      strings.TrimSuffix(graphURL, "/"),
		accessToken:   accessToken,
		messagingType: constants.DefaultMessagingType,
		client:        httpClient,
		logger:        logger,
	}
}

// Send posts one reply to the user. A nil reply is rejected without a network call.
func (c *SendClient) Send(ctx context.Context, psid string, reply *models.Reply) (*models.SendResponse, error) {
	if reply == nil {
		return nil, errors.NewValidationError("message", "reply is empty")
	}

	payload := models.SendRequest{
		MessagingType: c.messagingType,
		Recipient:     models.Party{ID: psid},
		Message:       reply,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.graphURL + "/me/messages?access_token=" + url.QueryEscape(c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.NewSendError(0, fmt.Errorf("failed to create request: %w", unwrapURLError(err)))
	}
	req.Header.Set("Content-Type", "application/json")

	req, span := tracing.StartClientSpan(req, "messenger.send",
		attribute.String("messenger.psid", privacy.MaskPSID(psid)),
	)
	defer span.End()

	c.logger.WithFields(logrus.Fields{
		"endpoint": privacy.MaskURL(endpoint),
		"psid":     privacy.MaskPSID(psid),
	}).Debug("Sending Messenger reply")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		sendErr := errors.NewSendError(0, fmt.Errorf("failed to send request: %w", unwrapURLError(err)))
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "transport failure")
		return nil, sendErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := errors.NewSendError(resp.StatusCode, graphError(resp))
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, sendErr
	}

	var result models.SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && err != io.EOF {
		c.logger.WithError(err).Debug("Send API returned an undecodable success body")
	}

	c.logger.WithFields(logrus.Fields{
		"psid":        privacy.MaskPSID(psid),
		"message_id":  result.MessageID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Messenger reply sent")

	return &result, nil
}

// graphError turns a non-2xx Graph API response into an error
func graphError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var ge models.GraphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return fmt.Errorf("graph API error: status %d, code %d, type %s: %s",
			resp.StatusCode, ge.Error.Code, ge.Error.Type, ge.Error.Message)
	}
	return fmt.Errorf("graph API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// unwrapURLError drops the request URL from transport errors so the access
// token never ends up in a log line.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
