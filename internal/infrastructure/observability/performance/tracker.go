package performance

import (
	"runtime"
	"sync"
	"time"
)

// Counter names incremented by the attribution services.
const (
	CounterTouchpointsTracked      = "touchpoints_tracked"
	CounterConversionsTracked      = "conversions_tracked"
	CounterEmptyJourneyConversions = "empty_journey_conversions"
	CounterRejectedConversions     = "rejected_conversions"
	CounterStreamClients           = "stream_clients"
)

// Tracker aggregates completed markers per operation and keeps named counters
type Tracker struct {
	operations map[string]*OperationStats
	counters   map[string]int64
	config     *TrackerConfig
	started    time.Time
	mu         sync.RWMutex
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	SlowOperationThreshold time.Duration `json:"slowOperationThreshold"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		SlowOperationThreshold: time.Second,
	}
}

// OperationStats summarises every completed marker of one operation
type OperationStats struct {
	Operation     string        `json:"operation"`
	Count         int64         `json:"count"`
	Failures      int64         `json:"failures"`
	SlowCount     int64         `json:"slowCount"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
	LastError     string        `json:"lastError,omitempty"`
}

// AverageDuration returns the mean duration of the operation
func (s OperationStats) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		operations: make(map[string]*OperationStats),
		counters:   make(map[string]int64),
		config:     config,
		started:    time.Now(),
	}
}

// StartOperation creates a marker that reports back to the tracker on Complete
func (t *Tracker) StartOperation(operation string) *Marker {
	return &Marker{
		Operation: operation,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	m.mu.Lock()
	duration, success, errMsg := m.Duration, m.Success, m.Error
	m.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.operations[m.Operation]
	if !ok {
		stats = &OperationStats{Operation: m.Operation}
		t.operations[m.Operation] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	if duration > stats.MaxDuration {
		stats.MaxDuration = duration
	}
	if duration > t.config.SlowOperationThreshold {
		stats.SlowCount++
	}
	if !success {
		stats.Failures++
		stats.LastError = errMsg
	}
}

// Increment adds delta to a named counter
func (t *Tracker) Increment(name string, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[name] += delta
}

// Counter returns the current value of a named counter
func (t *Tracker) Counter(name string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counters[name]
}

// Operation returns the stats recorded for an operation
func (t *Tracker) Operation(name string) (OperationStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats, ok := t.operations[name]
	if !ok {
		return OperationStats{}, false
	}
	return *stats, true
}

// GetOverallStats returns overall tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	operations := make(map[string]any, len(t.operations))
	for name, stats := range t.operations {
		operations[name] = map[string]any{
			"count":           stats.Count,
			"failures":        stats.Failures,
			"slowCount":       stats.SlowCount,
			"averageDuration": stats.AverageDuration().String(),
			"maxDuration":     stats.MaxDuration.String(),
			"lastError":       stats.LastError,
		}
	}

	counters := make(map[string]int64, len(t.counters))
	for name, value := range t.counters {
		counters[name] = value
	}

	return map[string]any{
		"trackerUptime": time.Since(t.started).String(),
		"operations":    operations,
		"counters":      counters,
		"memoryUsageMB": memStats.Alloc / (1024 * 1024),
	}
}
