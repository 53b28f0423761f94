package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	// This test ensures no duplicate metric names

	metrics := []prometheus.Collector{
		// Upstream metrics
		UpstreamEventsTotal,
		UpstreamReconnectsTotal,
		UpstreamEventsDroppedTotal,

		// Hub metrics
		HubConnectedClients,
		HubEventsDispatchedTotal,
		HubDeliveriesTotal,
		HubSlowClientsEvicted,
		HubDispatchDuration,
		HubCommandChannelDepth,
		HubStopTimeoutsTotal,
		HubPanicsTotal,

		// WebSocket metrics
		WebSocketMessageSendDuration,
		WebSocketPingFailures,
		WebSocketIdleDisconnects,
		ConnectionsRejectedTotal,

		// Redis metrics
		RedisOpsTotal,
		RedisOpDuration,
		RedisConnectionErrors,
		CircuitBreakerStateChanges,
		CircuitBreakerState,
	}

	// Verify each metric is registered
	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  *prometheus.CounterVec
		labels  prometheus.Labels
		incBy   float64
		wantVal float64
	}{
		{
			name:    "upstream events counter",
			metric:  UpstreamEventsTotal,
			labels:  prometheus.Labels{"channel": "scooters"},
			incBy:   5,
			wantVal: 5,
		},
		{
			name:    "delivery outcome counter",
			metric:  HubDeliveriesTotal,
			labels:  prometheus.Labels{"outcome": "enqueued"},
			incBy:   10,
			wantVal: 10,
		},
		{
			name:    "connection rejection counter",
			metric:  ConnectionsRejectedTotal,
			labels:  prometheus.Labels{"reason": "rate_limit"},
			incBy:   3,
			wantVal: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset metric
			tt.metric.Reset()

			// Increment counter
			for i := 0; i < int(tt.incBy); i++ {
				tt.metric.With(tt.labels).Inc()
			}

			// Verify value
			val := testutil.ToFloat64(tt.metric.With(tt.labels))
			assert.Equal(t, tt.wantVal, val)
		})
	}
}

func TestGaugeMetrics(t *testing.T) {
	t.Run("connected clients can rise and fall", func(t *testing.T) {
		HubConnectedClients.Set(10)
		assert.Equal(t, 10.0, testutil.ToFloat64(HubConnectedClients))

		HubConnectedClients.Inc()
		assert.Equal(t, 11.0, testutil.ToFloat64(HubConnectedClients))

		HubConnectedClients.Set(0)
		assert.Equal(t, 0.0, testutil.ToFloat64(HubConnectedClients))
	})

	t.Run("circuit breaker state by component", func(t *testing.T) {
		CircuitBreakerState.Reset()
		CircuitBreakerState.WithLabelValues("redis").Set(2)
		assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("redis")))
	})
}

func TestHistogramMetrics(t *testing.T) {
	t.Run("dispatch duration", func(t *testing.T) {
		for _, obs := range []float64{0.0001, 0.0005, 0.001} {
			HubDispatchDuration.Observe(obs)
		}
		count := testutil.CollectAndCount(HubDispatchDuration)
		assert.Greater(t, count, 0, "histogram should have metrics")
	})

	t.Run("redis operation duration", func(t *testing.T) {
		RedisOpDuration.Reset()
		for _, obs := range []float64{0.001, 0.005, 0.010} {
			RedisOpDuration.WithLabelValues("subscribe").Observe(obs)
		}
		count := testutil.CollectAndCount(RedisOpDuration)
		assert.Greater(t, count, 0, "histogram should have metrics")
	})
}
