package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cb := New("image-search", Settings{}, nil)

	assert.Equal(t, "image-search", cb.Name())
	assert.Equal(t, uint32(5), cb.settings.MaxFailures)
	assert.Equal(t, 30*time.Second, cb.settings.Timeout)
	assert.Equal(t, uint32(3), cb.settings.HalfOpenMaxCalls)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NotNil(t, cb.logger)
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("svc", Settings{MaxFailures: 3, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, called, "open circuit must not invoke the call")

	stats := cb.GetStats()
	assert.Equal(t, "OPEN", stats.State)
	assert.Equal(t, uint64(4), stats.Requests)
	assert.Equal(t, uint64(1), stats.Rejected)
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := New("svc", Settings{MaxFailures: 2}, quietLogger())
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, uint32(1), cb.GetStats().Failures)
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := New("svc", Settings{MaxFailures: 1, Timeout: 10 * time.Second, HalfOpenMaxCalls: 2}, quietLogger())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New("svc", Settings{MaxFailures: 1, Timeout: time.Second}, quietLogger())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecute_HalfOpenLimitsProbes(t *testing.T) {
	now := time.Now()
	cb := New("svc", Settings{MaxFailures: 1, Timeout: time.Second, HalfOpenMaxCalls: 1}, quietLogger())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := cb.Execute(ctx, succeed)
	assert.True(t, IsCircuitBreakerError(err))

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_CallerCancellationIsNotAFailure(t *testing.T) {
	cb := New("svc", Settings{MaxFailures: 1}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := New("svc", Settings{
		MaxFailures: 1,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}, quietLogger())

	_ = cb.Execute(context.Background(), fail)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"svc:CLOSED->OPEN"}, transitions)
}

func TestCircuitBreakerError(t *testing.T) {
	err := &CircuitBreakerError{Name: "persona-chat", State: StateOpen}
	assert.Equal(t, "circuit breaker 'persona-chat' is OPEN", err.Error())

	wrapped := errors.Join(errBoom, err)
	assert.True(t, IsCircuitBreakerError(wrapped))
	assert.False(t, IsCircuitBreakerError(errBoom))
}
