package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobMetrics keeps in-process worker counters for the /stats endpoint. The
// Prometheus series carry the same outcomes for scraping.
type JobMetrics struct {
	claimed      atomic.Uint64
	done         atomic.Uint64
	failed       atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	duplicates   atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64

	mu        sync.Mutex
	byType    map[string]uint64
	lastError string
	lastErrAt time.Time
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{byType: map[string]uint64{}}
}

func (m *JobMetrics) IncClaimed(jobType string) {
	m.claimed.Add(1)

	m.mu.Lock()
	m.byType[jobType]++
	m.mu.Unlock()
}

func (m *JobMetrics) IncDone()         { m.done.Add(1) }
func (m *JobMetrics) IncRetried()      { m.retried.Add(1) }
func (m *JobMetrics) IncDeadLettered() { m.deadLettered.Add(1) }

// IncDuplicate counts notifications the delivery ledger had already recorded.
func (m *JobMetrics) IncDuplicate() { m.duplicates.Add(1) }

// IncFailed counts a failed attempt and keeps its message as the last error.
func (m *JobMetrics) IncFailed(msg string) {
	m.failed.Add(1)

	m.mu.Lock()
	m.lastError = msg
	m.lastErrAt = time.Now().UTC()
	m.mu.Unlock()
}

func (m *JobMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()
		if ns <= curr || m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobMetricsSnapshot struct {
	Claimed           uint64            `json:"claimed"`
	Done              uint64            `json:"done"`
	Failed            uint64            `json:"failed"`
	Retried           uint64            `json:"retried"`
	DeadLettered      uint64            `json:"deadLettered"`
	Duplicates        uint64            `json:"duplicates"`
	ClaimedByType     map[string]uint64 `json:"claimedByType"`
	AverageDurationMs int64             `json:"averageDurationMs"`
	MaxDurationMs     int64             `json:"maxDurationMs"`
	LastError         string            `json:"lastError,omitempty"`
	LastErrorAt       *time.Time        `json:"lastErrorAt,omitempty"`
}

func (m *JobMetrics) Snapshot() JobMetricsSnapshot {
	s := JobMetricsSnapshot{
		Claimed:       m.claimed.Load(),
		Done:          m.done.Load(),
		Failed:        m.failed.Load(),
		Retried:       m.retried.Load(),
		DeadLettered:  m.deadLettered.Load(),
		Duplicates:    m.duplicates.Load(),
		MaxDurationMs: time.Duration(m.durationMax.Load()).Milliseconds(),
	}

	if count := m.durationCount.Load(); count > 0 {
		s.AverageDurationMs = time.Duration(m.durationTotal.Load() / int64(count)).Milliseconds()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.ClaimedByType = make(map[string]uint64, len(m.byType))
	for k, v := range m.byType {
		s.ClaimedByType[k] = v
	}
	if m.lastError != "" {
		at := m.lastErrAt
		s.LastError = m.lastError
		s.LastErrorAt = &at
	}
	return s
}
