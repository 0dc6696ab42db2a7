package logger

import (
	"sync"
	"time"
)

// Metrics tracks operational metrics including counters, gauges, and timings.
// All operations are thread-safe.
//
// Counters track incrementing values (e.g., fetch attempts).
// Gauges track point-in-time values (e.g., records in the current snapshot).
// Timings track durations and automatically compute min/max/average statistics.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

var defaultMetrics = NewMetrics()

// NewMetrics creates a new metrics tracker with empty counters, gauges, and timings.
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]time.Duration),
	}
}

// DefaultMetrics returns the package-level metrics tracker
func DefaultMetrics() *Metrics {
	return defaultMetrics
}

// IncrCounter increments a counter by 1
func (m *Metrics) IncrCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// SetGauge sets a gauge to the specified value, overwriting any previous value
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordTiming records a duration measurement
func (m *Metrics) RecordTiming(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[name] = append(m.timings[name], duration)
}

// Counter returns the current value of a counter
func (m *Metrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Gauge returns the current value of a gauge
func (m *Metrics) Gauge(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// TimingStats summarizes the durations recorded under one name
type TimingStats struct {
	Count   int           `json:"count"`
	Total   time.Duration `json:"total"`
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
}

func summarize(durations []time.Duration) TimingStats {
	stats := TimingStats{Count: len(durations), Min: durations[0], Max: durations[0]}
	for _, d := range durations {
		stats.Total += d
		stats.Min = min(stats.Min, d)
		stats.Max = max(stats.Max, d)
	}
	stats.Average = stats.Total / time.Duration(stats.Count)
	return stats
}

// MetricsSnapshot is a point-in-time copy of a Metrics tracker
type MetricsSnapshot struct {
	Counters map[string]int64       `json:"counters"`
	Gauges   map[string]float64     `json:"gauges"`
	Timings  map[string]TimingStats `json:"timings"`
}

// Snapshot copies the current metrics. Safe to call during updates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Timings:  make(map[string]TimingStats, len(m.timings)),
	}
	for name, v := range m.counters {
		snap.Counters[name] = v
	}
	for name, v := range m.gauges {
		snap.Gauges[name] = v
	}
	for name, durations := range m.timings {
		if len(durations) > 0 {
			snap.Timings[name] = summarize(durations)
		}
	}
	return snap
}

// Fields flattens the snapshot into log fields: counters and gauges by name,
// timings as "<name>.avg" and "<name>.count"
func (s MetricsSnapshot) Fields() Fields {
	fields := make(Fields, len(s.Counters)+len(s.Gauges)+2*len(s.Timings))
	for name, v := range s.Counters {
		fields[name] = v
	}
	for name, v := range s.Gauges {
		fields[name] = v
	}
	for name, t := range s.Timings {
		fields[name+".avg"] = t.Average.String()
		fields[name+".count"] = t.Count
	}
	return fields
}
