package core

import (
	"sync"
	"time"
)

// metricsCall records a single RecordRequest invocation.
type metricsCall struct {
	method   string
	endpoint string
	status   string
	duration time.Duration
}

// mockMetricsCollector implements MetricsCollector for tests.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{
		method:   method,
		endpoint: endpoint,
		status:   status,
		duration: duration,
	})
}
