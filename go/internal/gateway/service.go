package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Tracker is everything the gateway needs from the session tracker
type Tracker interface {
	StateProvider
	SessionApplier
}

// Service is the countdown gateway: WebSocket fan-out, state endpoints and the session event consumer
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	// ConsumeEvents disables the JetStream consumer when false; polling then drives the tracker alone
	ConsumeEvents bool
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		ConsumeEvents:    true,
	}
}

// NewService creates the gateway around an existing connection manager.
// The connection manager is built first because the tracker publishes into it.
func NewService(config Config, cm *ConnectionManager, tracker Tracker) (*Service, error) {
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, tracker),
		stateHandler:      NewStateHandler(tracker),
	}

	if config.ConsumeEvents {
		eventConsumer, err := NewEventConsumer(tracker, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("consume_events", s.eventConsumer != nil).Msg("starting countdown gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("countdown gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	// Connection manager stops when its context is cancelled
	log.Info().Msg("countdown gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("countdown gateway routes registered")
}

// GetStats returns statistics about the gateway service, including the
// session event consumer's backlog when it is enabled
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "countdown_gateway"
	stats["status"] = "running"

	if s.eventConsumer != nil {
		info, err := s.eventConsumer.GetConsumerInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read event consumer info")
			stats["event_consumer"] = map[string]interface{}{"error": err.Error()}
		} else {
			stats["event_consumer"] = consumerStats(info)
		}
	}
	return stats
}

func consumerStats(info *jetstream.ConsumerInfo) map[string]interface{} {
	return map[string]interface{}{
		"stream":        info.Stream,
		"consumer":      info.Name,
		"pending":       info.NumPending,
		"ack_pending":   info.NumAckPending,
		"redelivered":   info.NumRedelivered,
		"delivered_seq": info.Delivered.Stream,
	}
}
