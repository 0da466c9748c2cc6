package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool                      `json:"healthy"`
	LastEventTime     time.Time                 `json:"last_event_time"`
	EventsProcessed   uint64                    `json:"events_processed"`
	PendingEvents     int                       `json:"pending_events"`
	DatabaseConnected bool                      `json:"database_connected"`
	NATSConnected     bool                      `json:"nats_connected"`
	ListenerActive    bool                      `json:"listener_active"`
	EventTypes        map[string]EventTypeStats `json:"event_types,omitempty"`
	Errors            []string                  `json:"errors"`
}

// HealthSource is what the checker reads from the database side
type HealthSource interface {
	Ping(ctx context.Context) error
	CountPendingOutbox(ctx context.Context) (int, error)
}

// ListenerStatus is what the checker reads from the listener
type ListenerStatus interface {
	Running() bool
	Stats() (uint64, time.Time)
}

type HealthChecker struct {
	source    HealthSource
	listener  ListenerStatus
	connected func() bool
	stats     *StatsCollector
	threshold time.Duration // How long pending events may wait before unhealthy
	maxQueue  int
}

func NewHealthChecker(source HealthSource, listener ListenerStatus, natsConnected func() bool, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		source:    source,
		listener:  listener,
		connected: natsConnected,
		threshold: threshold,
		maxQueue:  1000,
	}
}

// WithStats includes per event type counters in the report
func (h *HealthChecker) WithStats(stats *StatsCollector) *HealthChecker {
	h.stats = stats
	return h
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.listener.Stats()

	if err := h.source.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.connected != nil {
		status.NATSConnected = h.connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.listener.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.source.CountPendingOutbox(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > h.maxQueue {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// Pending rows with no recent publish means the pipeline is stuck
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		since := time.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since.Round(time.Second)))
		}
	}

	if h.stats != nil {
		status.EventTypes, _, _ = h.stats.Snapshot()
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode outbox health")
	}
}
