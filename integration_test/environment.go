package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"messengerrelay/internal/constants"
	apperrors "messengerrelay/internal/errors"
	"messengerrelay/internal/middleware"
	"messengerrelay/internal/models"
	"messengerrelay/internal/service"
	"messengerrelay/pkg/imagesearch"
	"messengerrelay/pkg/messenger"
	"messengerrelay/pkg/personachat"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Mock API endpoint names used for request counting and failure injection
const (
	EndpointSend        = "send"
	EndpointImageSearch = "image_search"
	EndpointPersonaChat = "persona_chat"
)

// TestEnvironment runs the relay against mock Graph, image search and persona
// chat APIs served from one httptest server.
type TestEnvironment struct {
	t          *testing.T
	name       string
	httpServer *httptest.Server
	mux        *http.ServeMux
	fixtures   *TestFixtures
	logger     *logrus.Logger
	relay      service.Relay
	config     *models.Config
	startTime  time.Time

	mockAPILock     sync.RWMutex
	mockAPIRequests map[string]int
	mockAPIFailures map[string]int
	sent            []models.SendRequest
	searchQueries   []string
	chatPrompts     []string
	imageResults    []string
	chatResponse    string
}

// NewTestEnvironment creates the mock APIs. Call StartRelay to wire the relay.
func NewTestEnvironment(t *testing.T, name string) *TestEnvironment {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &TestEnvironment{
		t:               t,
		name:            fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		mux:             http.NewServeMux(),
		fixtures:        NewTestFixtures(),
		logger:          logger,
		startTime:       time.Now(),
		mockAPIRequests: make(map[string]int),
		mockAPIFailures: make(map[string]int),
		chatResponse:    "Cats are great!",
	}

	env.setupMockEndpoints()
	env.httpServer = httptest.NewServer(env.mux)
	t.Cleanup(env.Cleanup)

	return env
}

func (env *TestEnvironment) setupMockEndpoints() {
	env.mux.HandleFunc("/graph/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if env.consumeFailure(EndpointSend) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"temporary failure","type":"OAuthException","code":2}}`))
			return
		}

		var req models.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		env.mockAPILock.Lock()
		env.sent = append(env.sent, req)
		env.mockAPILock.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"recipient_id":%q,"message_id":"mid.%d"}`, req.Recipient.ID, time.Now().UnixNano())
	})

	env.mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		env.mockAPILock.Lock()
		env.searchQueries = append(env.searchQueries, r.URL.Query().Get("search"))
		results := append([]string(nil), env.imageResults...)
		env.mockAPILock.Unlock()

		if env.consumeFailure(EndpointImageSearch) {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(imagesearch.Response{Status: len(results) > 0, Data: results})
	})

	env.mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		env.mockAPILock.Lock()
		env.chatPrompts = append(env.chatPrompts, r.URL.Query().Get("ask"))
		response := env.chatResponse
		env.mockAPILock.Unlock()

		if env.consumeFailure(EndpointPersonaChat) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": response})
	})
}

// GetConfig returns a validated-looking config pointing at the mock APIs
func (env *TestEnvironment) GetConfig(strategy string) *models.Config {
	return &models.Config{
		Server: models.ServerConfig{
			Port:                "0",
			MaxBodyBytes:        constants.DefaultMaxWebhookBodyBytes,
			TaskShutdownWaitSec: 5,
			HomePageBody:        constants.DefaultHomeBody,
		},
		Messenger: models.MessengerConfig{
			GraphAPIURL:     env.httpServer.URL + "/graph",
			VerifyToken:     TestVerifyToken,
			PageAccessToken: TestPageAccessToken,
			TimeoutSec:      5,
		},
		Reply: models.ReplyConfig{
			Strategy: strategy,
			ImageSearch: models.ImageSearchConfig{
				URL:                 env.httpServer.URL + "/images/",
				TimeoutSec:          5,
				MaxTemplateElements: constants.DefaultMaxTemplateElements,
				MaxSequentialImages: constants.DefaultMaxSequentialImages,
				ElementTitle:        constants.DefaultImageElementTitle,
				ButtonTitle:         constants.DefaultShowMoreButtonTitle,
			},
			PersonaChat: models.PersonaChatConfig{
				Backend:        models.PersonaBackendHTTP,
				URL:            env.httpServer.URL + "/chat/",
				APIKey:         "persona-key",
				TimeoutSec:     5,
				PromptTemplate: constants.DefaultPersonaChatPrompt,
				Banner:         constants.DefaultPersonaChatBanner,
				ThinkingText:   constants.DefaultPersonaChatThinking,
				ApologyText:    constants.DefaultPersonaChatApology,
			},
			Breaker: models.BreakerConfig{
				MaxFailures: 3,
				TimeoutSec:  60,
			},
		},
		LogLevel: "error",
	}
}

// StartRelay wires a relay with real clients against the mock APIs and
// mounts its webhook handler on /webhook.
func (env *TestEnvironment) StartRelay(cfg *models.Config) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	sender := messenger.NewClientWithLogger(cfg.Messenger.GraphAPIURL, cfg.Messenger.PageAccessToken, httpClient, env.logger)

	var (
		search imagesearch.Searcher
		chat   personachat.Client
	)
	if cfg.Reply.Strategy == models.StrategyPersonaChat {
		client, err := personachat.New(cfg.Reply.PersonaChat, httpClient, env.logger)
		require.NoError(env.t, err)
		chat = service.NewGuardedChat(client, service.NewBreaker(service.ServicePersonaChat+"-"+env.name, cfg.Reply.Breaker, env.logger))
	} else {
		client := imagesearch.NewClient(cfg.Reply.ImageSearch.URL, httpClient, env.logger)
		search = service.NewGuardedSearcher(client, service.NewBreaker(service.ServiceImageSearch+"-"+env.name, cfg.Reply.Breaker, env.logger))
	}

	strategy, err := service.NewStrategy(cfg.Reply, search, chat, env.logger)
	require.NoError(env.t, err)

	env.config = cfg
	env.relay = service.NewRelay(cfg, sender, strategy, env.logger)

	handler := middleware.ObservabilityMiddleware(env.logger)(
		middleware.WebhookObservabilityMiddleware(env.logger)(http.HandlerFunc(env.serveWebhook)),
	)
	env.mux.Handle("/webhook", handler)
}

func (env *TestEnvironment) serveWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		challenge, err := env.relay.VerifySubscription(r.Context(), q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
		if err != nil {
			w.WriteHeader(apperrors.HTTPStatusCode(err))
			return
		}
		_, _ = w.Write([]byte(challenge))
	case http.MethodPost:
		var envelope models.WebhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			w.WriteHeader(apperrors.HTTPStatusCode(apperrors.NewMalformedEnvelopeError("", err)))
			return
		}
		if err := env.relay.HandleEvent(r.Context(), &envelope); err != nil {
			w.WriteHeader(apperrors.HTTPStatusCode(err))
			return
		}
		_, _ = w.Write([]byte(constants.EventReceivedBody))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PostEnvelope posts the envelope to the relay and waits for its background replies
func (env *TestEnvironment) PostEnvelope(envelope models.WebhookEnvelope) *http.Response {
	body, err := json.Marshal(envelope)
	require.NoError(env.t, err)

	resp, err := http.Post(env.httpServer.URL+"/webhook", "application/json", strings.NewReader(string(body)))
	require.NoError(env.t, err)
	_ = resp.Body.Close()

	env.WaitForRelay()
	return resp
}

// WaitForRelay blocks until every background reply task has finished
func (env *TestEnvironment) WaitForRelay() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(env.t, env.relay.Wait(ctx))
}

// Verify runs the subscription handshake
func (env *TestEnvironment) Verify(mode, token, challenge string) (*http.Response, string) {
	target := fmt.Sprintf("%s/webhook?hub.mode=%s&hub.verify_token=%s&hub.challenge=%s", env.httpServer.URL, mode, token, challenge)
	resp, err := http.Get(target)
	require.NoError(env.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(env.t, err)
	return resp, string(body)
}

// SetImageResults sets the URLs returned by the mock image search
func (env *TestEnvironment) SetImageResults(urls []string) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.imageResults = urls
}

// SetChatResponse sets the answer returned by the mock persona chat API
func (env *TestEnvironment) SetChatResponse(response string) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.chatResponse = response
}

// SetMockAPIFailures makes the next n calls to endpoint fail
func (env *TestEnvironment) SetMockAPIFailures(endpoint string, failures int) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.mockAPIFailures[endpoint] = failures
}

// CountMockAPIRequests returns how many calls reached endpoint, failed ones included
func (env *TestEnvironment) CountMockAPIRequests(endpoint string) int {
	env.mockAPILock.RLock()
	defer env.mockAPILock.RUnlock()
	return env.mockAPIRequests[endpoint]
}

// Sent returns the Send API requests that succeeded, in arrival order
func (env *TestEnvironment) Sent() []models.SendRequest {
	env.mockAPILock.RLock()
	defer env.mockAPILock.RUnlock()
	return append([]models.SendRequest(nil), env.sent...)
}

// SearchQueries returns the search terms received by the mock image search
func (env *TestEnvironment) SearchQueries() []string {
	env.mockAPILock.RLock()
	defer env.mockAPILock.RUnlock()
	return append([]string(nil), env.searchQueries...)
}

// ChatPrompts returns the prompts received by the mock persona chat API
func (env *TestEnvironment) ChatPrompts() []string {
	env.mockAPILock.RLock()
	defer env.mockAPILock.RUnlock()
	return append([]string(nil), env.chatPrompts...)
}

// consumeFailure counts the request and reports whether it should fail
func (env *TestEnvironment) consumeFailure(endpoint string) bool {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()

	env.mockAPIRequests[endpoint]++
	if env.mockAPIFailures[endpoint] > 0 {
		env.mockAPIFailures[endpoint]--
		return true
	}
	return false
}

// Cleanup stops the mock server
func (env *TestEnvironment) Cleanup() {
	if env.httpServer != nil {
		env.httpServer.Close()
	}
}
