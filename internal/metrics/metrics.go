package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched         int64
	DuplicatesFiltered   int64
	GenerationAttempts   int64
	GenerationSuccesses  int64
	GenerationFailures   int64
	FallbackReports      int64
	EmailsSent           int64
	TelegramMessagesSent int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	sections map[string]func() map[string]interface{}
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// Attach publishes the result of fn under name in GetStats. A second call
// with the same name replaces the first.
func (m *Metrics) Attach(name string, fn func() map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sections == nil {
		m.sections = make(map[string]func() map[string]interface{})
	}
	m.sections[name] = fn
}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) AddDuplicatesFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered += int64(n)
}

func (m *Metrics) IncrementGenerationAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerationAttempts++
}

func (m *Metrics) IncrementGenerationSuccesses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerationSuccesses++
}

func (m *Metrics) IncrementGenerationFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerationFailures++
}

func (m *Metrics) IncrementFallbackReports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackReports++
}

func (m *Metrics) IncrementEmailsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmailsSent++
}

func (m *Metrics) IncrementTelegramMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TelegramMessagesSent++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"items_fetched":              m.ItemsFetched,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"generation_attempts":        m.GenerationAttempts,
		"generation_successes":       m.GenerationSuccesses,
		"generation_failures":        m.GenerationFailures,
		"fallback_reports":           m.FallbackReports,
		"emails_sent":                m.EmailsSent,
		"telegram_messages_sent":     m.TelegramMessagesSent,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
	for name, fn := range m.sections {
		stats[name] = fn()
	}
	return stats
}
