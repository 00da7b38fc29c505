package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("webhook_events_total", nil, "Webhook events")
	registry.IncrementCounter("webhook_events_total", map[string]string{"kind": "text"}, "Webhook events")
	registry.IncrementCounter("webhook_events_total", map[string]string{"kind": "text"}, "Webhook events")

	snap := registry.GetAllMetrics()
	require.Contains(t, snap.Counters, "webhook_events_total")
	assert.Equal(t, float64(1), snap.Counters["webhook_events_total"].Value)
	require.Contains(t, snap.Counters, "webhook_events_total_kind:text")
	assert.Equal(t, float64(2), snap.Counters["webhook_events_total_kind:text"].Value)
	assert.Equal(t, Counter, snap.Counters["webhook_events_total"].Type)
}

func TestRegistry_LabelOrderIsStable(t *testing.T) {
	registry := NewRegistry()
	for i := 0; i < 20; i++ {
		registry.IncrementCounter("sends_total", map[string]string{"status": "ok", "strategy": "image-template"}, "")
	}

	assert.Equal(t, float64(20), registry.CounterValue("sends_total", map[string]string{"strategy": "image-template", "status": "ok"}))
	assert.Len(t, registry.GetAllMetrics().Counters, 1)
}

func TestRegistry_AddToCounter(t *testing.T) {
	registry := NewRegistry()
	registry.AddToCounter("tasks_active", 1, nil, "")
	registry.AddToCounter("tasks_active", 1, nil, "")
	registry.AddToCounter("tasks_active", -1, nil, "")

	assert.Equal(t, float64(1), registry.CounterValue("tasks_active", nil))
	assert.Equal(t, float64(0), registry.CounterValue("missing", nil))
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 20; i++ {
		registry.RecordTimer("external_call_duration", time.Duration(i)*time.Millisecond, nil, "")
	}

	timer := registry.GetAllMetrics().Timers["external_call_duration"]
	assert.Equal(t, int64(20), timer.Count)
	assert.InDelta(t, 1.0, timer.Min, 0.001)
	assert.InDelta(t, 20.0, timer.Max, 0.001)
	assert.InDelta(t, 10.5, timer.Average, 0.001)
	assert.InDelta(t, 20.0, timer.P95, 0.001)
	assert.InDelta(t, 20.0, timer.P99, 0.001)
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()
	registry.SetGauge("breaker_state", 1, map[string]string{"service": "imagesearch"}, "")
	registry.SetGauge("breaker_state", 0, map[string]string{"service": "imagesearch"}, "")

	gauge := registry.GetAllMetrics().Gauges["breaker_state_service:imagesearch"]
	assert.Equal(t, float64(0), gauge.Value)
	assert.Equal(t, Gauge, gauge.Type)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	registry := NewRegistry()
	labels := map[string]string{"kind": "text"}
	registry.IncrementCounter("events", labels, "")
	labels["kind"] = "mutated"

	snap := registry.GetAllMetrics()
	registry.IncrementCounter("events", map[string]string{"kind": "text"}, "")

	assert.Equal(t, float64(1), snap.Counters["events_kind:text"].Value)
	assert.Equal(t, "text", snap.Counters["events_kind:text"].Labels["kind"])
}

func TestRegistry_Reset(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("a", nil, "")
	registry.RecordTimer("b", time.Millisecond, nil, "")
	registry.Reset()

	snap := registry.GetAllMetrics()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Timers)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.IncrementCounter("concurrent", nil, "")
			registry.RecordTimer("concurrent_timer", time.Millisecond, nil, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(50), registry.CounterValue("concurrent", nil))
}

func TestSnapshot_JSON(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("events", nil, "Events")

	data, err := json.Marshal(registry.GetAllMetrics())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"counters"`)
	assert.Contains(t, string(data), `"uptime_ms"`)
}
