package assembler

import (
	"sync/atomic"
	"time"
)

// Observer receives assembly lifecycle hooks.
type Observer interface {
	// OnResolve is called after each resolvability check.
	OnResolve(name string, resolvable bool, cached bool)
	// OnAssemble is called after a successful assembly.
	OnAssemble(name string, duration time.Duration)
	// OnError is called when assembly fails.
	OnError(name string, err error)
}

// NoopObserver is a no-op implementation of Observer for when metrics are disabled.
type NoopObserver struct{}

func (NoopObserver) OnResolve(name string, resolvable bool, cached bool) {}
func (NoopObserver) OnAssemble(name string, duration time.Duration)      {}
func (NoopObserver) OnError(name string, err error)                      {}

// MetricsObserver counts assembly activity. It is safe for concurrent use.
type MetricsObserver struct {
	resolveCount   atomic.Int64
	cacheHits      atomic.Int64
	unresolvable   atomic.Int64
	assembleCount  atomic.Int64
	errorCount     atomic.Int64
	totalLatencyNs atomic.Int64
}

// NewMetricsObserver creates a MetricsObserver.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (m *MetricsObserver) OnResolve(name string, resolvable bool, cached bool) {
	m.resolveCount.Add(1)
	if cached {
		m.cacheHits.Add(1)
	}
	if !resolvable {
		m.unresolvable.Add(1)
	}
}

func (m *MetricsObserver) OnAssemble(name string, duration time.Duration) {
	m.assembleCount.Add(1)
	m.totalLatencyNs.Add(int64(duration))
}

func (m *MetricsObserver) OnError(name string, err error) {
	m.errorCount.Add(1)
}

// Snapshot returns a copy of the current counters.
func (m *MetricsObserver) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ResolveCount:  m.resolveCount.Load(),
		CacheHits:     m.cacheHits.Load(),
		Unresolvable:  m.unresolvable.Load(),
		AssembleCount: m.assembleCount.Load(),
		ErrorCount:    m.errorCount.Load(),
		TotalLatency:  time.Duration(m.totalLatencyNs.Load()),
	}
}

// MetricsSnapshot is a point-in-time copy of MetricsObserver counters.
type MetricsSnapshot struct {
	ResolveCount  int64         `json:"resolveCount"`
	CacheHits     int64         `json:"cacheHits"`
	Unresolvable  int64         `json:"unresolvable"`
	AssembleCount int64         `json:"assembleCount"`
	ErrorCount    int64         `json:"errorCount"`
	TotalLatency  time.Duration `json:"totalLatency"`
}
