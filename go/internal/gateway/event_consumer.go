package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/cafeclock/go/internal/events"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrUnknownEventType is returned for envelopes the gateway does not handle
var ErrUnknownEventType = errors.New("unknown event type")

// SessionApplier receives session lifecycle changes (the session tracker)
type SessionApplier interface {
	Apply(ctx context.Context, session models.Session)
	Unmount(ctx context.Context, sessionID string)
}

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g., "cafe.sessions.>"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "CAFE_SESSIONS",
		ConsumerName:  "countdown-gateway",
		SubjectFilter: "cafe.sessions.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer consumes session lifecycle events from JetStream and feeds the tracker
type EventConsumer struct {
	applier  SessionApplier
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(applier SessionApplier, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		applier: applier,
		nc:      nc,
		js:      js,
		config:  config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// ensureConsumer creates or gets the durable consumer, creating the stream when the backend has not yet
func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		stream, err = ec.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        ec.config.StreamName,
			Description: "Café session lifecycle events",
			Subjects:    []string{ec.config.SubjectFilter},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", ec.config.StreamName).Msg("created JetStream stream")
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Countdown gateway session consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start begins consuming events from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := HandleMessage(ctx, ec.applier, msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if errors.Is(err, ErrUnknownEventType) {
					// Redelivery will not help; other services share the subject space
					if termErr := msg.Term(); termErr != nil {
						log.Error().Err(termErr).Msg("failed to TERM message")
					}
					continue
				}
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else {
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			}
		}
	}
}

// HandleMessage decodes one session lifecycle envelope and applies it
func HandleMessage(ctx context.Context, applier SessionApplier, data []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("session_id", envelope.SessionID).
		Str("event_type", envelope.EventType).
		Msg("processing JetStream event")

	switch envelope.EventType {
	case events.EventTypeSessionStarted, events.EventTypeSessionExtended:
		var payload events.SessionPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", envelope.EventType, err)
		}
		if payload.SessionID == "" {
			payload.SessionID = envelope.SessionID
		}
		if payload.SessionID == "" {
			return fmt.Errorf("%s event %s has no session id", envelope.EventType, envelope.EventID)
		}
		if payload.Status == "" {
			payload.Status = string(models.SessionStatusActive)
			if envelope.EventType == events.EventTypeSessionExtended {
				payload.Status = string(models.SessionStatusExtended)
			}
		}
		applier.Apply(ctx, payload.Session())

	case events.EventTypeSessionEnded:
		sessionID := envelope.SessionID
		if sessionID == "" {
			var payload events.SessionEndedPayload
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				return fmt.Errorf("unmarshal %s payload: %w", envelope.EventType, err)
			}
			sessionID = payload.SessionID
		}
		if sessionID == "" {
			return fmt.Errorf("%s event %s has no session id", envelope.EventType, envelope.EventID)
		}
		applier.Unmount(ctx, sessionID)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownEventType, envelope.EventType)
	}

	log.Info().
		Str("event_id", envelope.EventID).
		Str("session_id", envelope.SessionID).
		Str("event_type", envelope.EventType).
		Msg("session event applied")
	return nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}

	return nil
}

// GetConsumerInfo returns information about the consumer
func (ec *EventConsumer) GetConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	if ec.consumer == nil {
		return nil, fmt.Errorf("consumer %s not initialised", ec.config.ConsumerName)
	}
	return ec.consumer.Info(ctx)
}
