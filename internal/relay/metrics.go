package relay

import (
	"sync/atomic"
	"time"
)

// Metrics tracks relay statistics. Safe for concurrent reads while the
// relay runs.
type Metrics struct {
	Cycles          atomic.Int64
	FailedCycles    atomic.Int64
	RelayedMessages atomic.Int64
	FailedMessages  atomic.Int64
	LastCycle       atomic.Value // time.Time
	LastDuration    atomic.Value // time.Duration
	LastError       atomic.Value // string

	startedAt time.Time
}

// Snapshot is a point-in-time copy of Metrics
type Snapshot struct {
	StartedAt       time.Time  `json:"started_at"`
	Cycles          int64      `json:"cycles"`
	FailedCycles    int64      `json:"failed_cycles"`
	RelayedMessages int64      `json:"relayed_messages"`
	FailedMessages  int64      `json:"failed_messages"`
	LastCycle       *time.Time `json:"last_cycle,omitempty"`
	LastDurationMS  int64      `json:"last_duration_ms"`
	LastError       string     `json:"last_error,omitempty"`
}

// NewMetrics creates zeroed metrics
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) recordCycle(start time.Time, sent int, err error) {
	m.Cycles.Add(1)
	m.RelayedMessages.Add(int64(sent))
	m.LastCycle.Store(start)
	m.LastDuration.Store(time.Since(start))

	if err != nil {
		m.FailedCycles.Add(1)
		m.LastError.Store(err.Error())
	} else {
		m.LastError.Store("")
	}
}

// Snapshot returns the current values
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		StartedAt:       m.startedAt,
		Cycles:          m.Cycles.Load(),
		FailedCycles:    m.FailedCycles.Load(),
		RelayedMessages: m.RelayedMessages.Load(),
		FailedMessages:  m.FailedMessages.Load(),
	}

	if t, ok := m.LastCycle.Load().(time.Time); ok {
		s.LastCycle = &t
	}
	if d, ok := m.LastDuration.Load().(time.Duration); ok {
		s.LastDurationMS = d.Milliseconds()
	}
	if e, ok := m.LastError.Load().(string); ok {
		s.LastError = e
	}

	return s
}
