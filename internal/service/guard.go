package service

import (
	"context"
	"time"

	"messengerrelay/internal/errors"
	"messengerrelay/internal/metrics"
	"messengerrelay/internal/models"
	"messengerrelay/pkg/circuitbreaker"
	"messengerrelay/pkg/imagesearch"
	"messengerrelay/pkg/personachat"

	"github.com/sirupsen/logrus"
)

// Breaker names, also used as the service label on metrics
const (
	ServiceImageSearch = "image-search"
	ServicePersonaChat = "persona-chat"
)

// NewBreaker builds the circuit breaker guarding one external reply API and
// mirrors its state into the metrics registry.
func NewBreaker(name string, cfg models.BreakerConfig, logger *logrus.Logger) *circuitbreaker.CircuitBreaker {
	metrics.SetGauge("circuit_breaker_state", float64(circuitbreaker.StateClosed), map[string]string{"service": name}, "Circuit breaker state (0 closed, 1 open, 2 half-open)")

	return circuitbreaker.New(name, circuitbreaker.Settings{
		MaxFailures: uint32(cfg.MaxFailures),
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.SetGauge("circuit_breaker_state", float64(to), map[string]string{"service": name}, "Circuit breaker state (0 closed, 1 open, 2 half-open)")
		},
	}, logger)
}

// guardedSearcher fails image searches fast while the breaker is open
type guardedSearcher struct {
	searcher imagesearch.Searcher
	breaker  *circuitbreaker.CircuitBreaker
}

// NewGuardedSearcher wraps searcher with breaker
func NewGuardedSearcher(searcher imagesearch.Searcher, breaker *circuitbreaker.CircuitBreaker) imagesearch.Searcher {
	return &guardedSearcher{searcher: searcher, breaker: breaker}
}

func (g *guardedSearcher) Search(ctx context.Context, query string) ([]string, error) {
	var images []string
	err := guarded(ctx, g.breaker, func(ctx context.Context) error {
		var err error
		images, err = g.searcher.Search(ctx, query)
		return err
	})
	return images, err
}

// guardedChat fails persona chat calls fast while the breaker is open
type guardedChat struct {
	chat    personachat.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedChat wraps chat with breaker
func NewGuardedChat(chat personachat.Client, breaker *circuitbreaker.CircuitBreaker) personachat.Client {
	return &guardedChat{chat: chat, breaker: breaker}
}

func (g *guardedChat) Ask(ctx context.Context, prompt, uid string) (string, error) {
	var text string
	err := guarded(ctx, g.breaker, func(ctx context.Context) error {
		var err error
		text, err = g.chat.Ask(ctx, prompt, uid)
		return err
	})
	return text, err
}

// guarded runs fn through the breaker and records call metrics
func guarded(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, fn func(ctx context.Context) error) error {
	name := breaker.Name()
	start := time.Now()

	err := breaker.Execute(ctx, fn)
	if circuitbreaker.IsCircuitBreakerError(err) {
		metrics.IncrementCounter("external_api_calls_total", map[string]string{"service": name, "status": "rejected"}, "External reply API calls")
		return errors.NewCircuitOpenError(name, err)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncrementCounter("external_api_calls_total", map[string]string{"service": name, "status": status}, "External reply API calls")
	metrics.RecordTimer("external_api_duration", time.Since(start), map[string]string{"service": name}, "External reply API latency")
	return err
}
