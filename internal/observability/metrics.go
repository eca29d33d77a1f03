package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the HTTP layer and the
// processing pipeline.
type Metrics struct {
	mu                  sync.Mutex
	requestCount        map[string]int64
	errorCount          map[string]int64
	completedByCategory map[string]int64
	failedCount         int64
	notificationsSent   int64
	notificationsFailed int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:        make(map[string]int64),
		errorCount:          make(map[string]int64),
		completedByCategory: make(map[string]int64),
	}
}

// RecordRequest increments counters for HTTP requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments HTTP error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordCompleted counts a successfully classified request per category.
func (m *Metrics) RecordCompleted(category string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedByCategory[category]++
}

// RecordFailed counts a request that exhausted its classification attempts.
func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedCount++
}

// RecordNotification counts a notification dispatch outcome.
func (m *Metrics) RecordNotification(sent bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sent {
		m.notificationsSent++
	} else {
		m.notificationsFailed++
	}
}

// PipelineSnapshot reports current pipeline counters.
func (m *Metrics) PipelineSnapshot() (completed map[string]int64, failed, sent, sendFailed int64) {
	if m == nil {
		return nil, 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	completed = make(map[string]int64, len(m.completedByCategory))
	for k, v := range m.completedByCategory {
		completed[k] = v
	}
	return completed, m.failedCount, m.notificationsSent, m.notificationsFailed
}
