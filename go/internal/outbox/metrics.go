package outbox

import (
	"context"
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)                    {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool)          {}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, event)

	p.metrics.RecordEventProcessed(event.EventType, err == nil, time.Since(start))
	return err
}

// EventTypeStats are the counters kept per event type
type EventTypeStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Retries   uint64 `json:"retries"`
}

// StatsCollector keeps in-process counters, served by the health endpoint
type StatsCollector struct {
	mu            sync.Mutex
	byType        map[string]*EventTypeStats
	batches       uint64
	lastPublished time.Time
	lastLatency   time.Duration
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{byType: make(map[string]*EventTypeStats)}
}

func (s *StatsCollector) entry(eventType string) *EventTypeStats {
	e, ok := s.byType[eventType]
	if !ok {
		e = &EventTypeStats{}
		s.byType[eventType] = e
	}
	return e
}

func (s *StatsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(eventType)
	if success {
		e.Published++
		s.lastPublished = time.Now()
		s.lastLatency = duration
		return
	}
	e.Failed++
}

func (s *StatsCollector) RecordBatchProcessed(count int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
}

func (s *StatsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if attempt <= 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(eventType).Retries++
}

// Snapshot copies the counters
func (s *StatsCollector) Snapshot() (map[string]EventTypeStats, uint64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]EventTypeStats, len(s.byType))
	for k, v := range s.byType {
		out[k] = *v
	}
	return out, s.batches, s.lastPublished
}
