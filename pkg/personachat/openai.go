package personachat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"messengerrelay/internal/errors"
	"messengerrelay/internal/models"
	"messengerrelay/internal/tracing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint
type OpenAIClient struct {
	model   llms.Model
	baseURL string
}

// NewOpenAIClient creates a client for any OpenAI-compatible API
func NewOpenAIClient(baseURL, apiKey, model string, httpClient *http.Client) (*OpenAIClient, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.NewConfigError("reply.personaChat", fmt.Sprintf("failed to create LLM client: %v", err))
	}

	return &OpenAIClient{model: llm, baseURL: baseURL}, nil
}

// Ask sends the prompt as a single user message. The OpenAI backend keeps no
// per-user session, so uid is only recorded on the span.
func (c *OpenAIClient) Ask(ctx context.Context, prompt, uid string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "personachat.ask",
		attribute.String("personachat.backend", models.PersonaBackendOpenAI),
		attribute.Bool("personachat.has_uid", uid != ""),
	)
	defer span.End()

	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		apiErr := errors.NewAPIError(serviceName, c.baseURL, 0, fmt.Errorf("failed to generate content: %w", err))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "generation failed")
		return "", apiErr
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		apiErr := errors.NewAPIError(serviceName, c.baseURL, 0, fmt.Errorf("no choices returned from model"))
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "empty generation")
		return "", apiErr
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
