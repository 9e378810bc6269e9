package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics 指标收集器，所有方法都可在 nil 接收者上调用
type Metrics struct {
	assessments     atomic.Int64
	highRisk        atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	errors          atomic.Int64
	eventsPublished atomic.Int64
	publishErrors   atomic.Int64
	wsClients       atomic.Int64

	startTime time.Time
}

// Snapshot is the JSON view served at /api/metrics.
type Snapshot struct {
	Assessments      int64   `json:"assessments"`
	HighRisk         int64   `json:"high_risk"`
	HighRiskRate     float64 `json:"high_risk_rate"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	Errors           int64   `json:"errors"`
	EventsPublished  int64   `json:"events_published"`
	PublishErrors    int64   `json:"publish_errors"`
	WebSocketClients int64   `json:"websocket_clients"`
	Uptime           string  `json:"uptime"`
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordAssessment(highRisk, cached bool) {
	if m == nil {
		return
	}
	m.assessments.Add(1)
	if highRisk {
		m.highRisk.Add(1)
	}
	if cached {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
}

func (m *Metrics) RecordError() {
	if m == nil {
		return
	}
	m.errors.Add(1)
}

func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.Add(1)
		return
	}
	m.eventsPublished.Add(1)
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Add(1)
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Add(-1)
	}
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Assessments:      m.assessments.Load(),
		HighRisk:         m.highRisk.Load(),
		CacheHits:        m.cacheHits.Load(),
		CacheMisses:      m.cacheMisses.Load(),
		Errors:           m.errors.Load(),
		EventsPublished:  m.eventsPublished.Load(),
		PublishErrors:    m.publishErrors.Load(),
		WebSocketClients: m.wsClients.Load(),
		Uptime:           time.Since(m.startTime).Round(time.Second).String(),
	}
	if s.Assessments > 0 {
		s.HighRiskRate = float64(s.HighRisk) / float64(s.Assessments)
	}
	return s
}
