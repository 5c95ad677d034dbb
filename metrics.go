package cdrloader

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks upload counts and latencies using atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	uploadsTotal    atomic.Uint64
	uploadsCreated  atomic.Uint64
	uploadsFailed   atomic.Uint64
	transportErrors atomic.Uint64

	// Timing (stored as nanoseconds)
	requestTimeTotal atomic.Uint64
	requestTimeMin   atomic.Uint64
	requestTimeMax   atomic.Uint64

	byType sync.Map // map[string]*typeMetrics
}

type typeMetrics struct {
	attempts  atomic.Uint64
	failures  atomic.Uint64
	totalTime atomic.Uint64 // nanoseconds
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.requestTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordUpload records one completed upload attempt. transport is true when no
// response was received.
func (m *Metrics) RecordUpload(resourceType string, duration time.Duration, created, transport bool) {
	m.uploadsTotal.Add(1)
	switch {
	case created:
		m.uploadsCreated.Add(1)
	case transport:
		m.uploadsFailed.Add(1)
		m.transportErrors.Add(1)
	default:
		m.uploadsFailed.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: nanoseconds are always positive for valid durations
	m.requestTimeTotal.Add(ns)

	for {
		old := m.requestTimeMin.Load()
		if ns >= old {
			break
		}
		if m.requestTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	for {
		old := m.requestTimeMax.Load()
		if ns <= old {
			break
		}
		if m.requestTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}

	tm := m.getOrCreateTypeMetrics(resourceType)
	tm.attempts.Add(1)
	if !created {
		tm.failures.Add(1)
	}
	tm.totalTime.Add(ns)
}

func (m *Metrics) getOrCreateTypeMetrics(name string) *typeMetrics {
	if v, ok := m.byType.Load(name); ok {
		return v.(*typeMetrics)
	}
	tm := &typeMetrics{}
	actual, _ := m.byType.LoadOrStore(name, tm)
	return actual.(*typeMetrics)
}

// --- Query Methods ---

// UploadsTotal returns the number of upload attempts.
func (m *Metrics) UploadsTotal() uint64 {
	return m.uploadsTotal.Load()
}

// UploadsCreated returns the number of uploads answered with a success status.
func (m *Metrics) UploadsCreated() uint64 {
	return m.uploadsCreated.Load()
}

// UploadsFailed returns the number of failed uploads, transport errors included.
func (m *Metrics) UploadsFailed() uint64 {
	return m.uploadsFailed.Load()
}

// TransportErrors returns the number of uploads that got no response.
func (m *Metrics) TransportErrors() uint64 {
	return m.transportErrors.Load()
}

// AverageRequestTime returns the average request duration.
func (m *Metrics) AverageRequestTime() time.Duration {
	total := m.uploadsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.requestTimeTotal.Load() / total) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MinRequestTime returns the fastest request duration.
func (m *Metrics) MinRequestTime() time.Duration {
	minVal := m.requestTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MaxRequestTime returns the slowest request duration.
func (m *Metrics) MaxRequestTime() time.Duration {
	return time.Duration(m.requestTimeMax.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// TypeStats holds per resource type upload statistics.
type TypeStats struct {
	ResourceType string        `json:"resource_type"`
	Attempts     uint64        `json:"attempts"`
	Failures     uint64        `json:"failures"`
	TotalTime    time.Duration `json:"total_time"`
}

// TypeStats returns statistics for one resource type.
func (m *Metrics) TypeStats(resourceType string) (TypeStats, bool) {
	v, ok := m.byType.Load(resourceType)
	if !ok {
		return TypeStats{ResourceType: resourceType}, false
	}
	return toTypeStats(resourceType, v.(*typeMetrics)), true
}

// AllTypeStats returns statistics for every resource type seen, sorted by name.
func (m *Metrics) AllTypeStats() []TypeStats {
	var stats []TypeStats
	m.byType.Range(func(key, value any) bool {
		stats = append(stats, toTypeStats(key.(string), value.(*typeMetrics)))
		return true
	})
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].ResourceType < stats[j].ResourceType
	})
	return stats
}

func toTypeStats(name string, tm *typeMetrics) TypeStats {
	return TypeStats{
		ResourceType: name,
		Attempts:     tm.attempts.Load(),
		Failures:     tm.failures.Load(),
		TotalTime:    time.Duration(tm.totalTime.Load()), //nolint:gosec // Safe: nanoseconds within int64 range
	}
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	UploadsTotal    uint64 `json:"uploads_total"`
	UploadsCreated  uint64 `json:"uploads_created"`
	UploadsFailed   uint64 `json:"uploads_failed"`
	TransportErrors uint64 `json:"transport_errors"`

	AvgRequestTime time.Duration `json:"avg_request_time"`
	MinRequestTime time.Duration `json:"min_request_time"`
	MaxRequestTime time.Duration `json:"max_request_time"`

	Types []TypeStats `json:"types,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:       time.Now(),
		UploadsTotal:    m.UploadsTotal(),
		UploadsCreated:  m.UploadsCreated(),
		UploadsFailed:   m.UploadsFailed(),
		TransportErrors: m.TransportErrors(),
		AvgRequestTime:  m.AverageRequestTime(),
		MinRequestTime:  m.MinRequestTime(),
		MaxRequestTime:  m.MaxRequestTime(),
		Types:           m.AllTypeStats(),
	}
}
