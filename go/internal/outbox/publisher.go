package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/cafeclock/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Header keys set on every countdown notification
const (
	HeaderEventType = "Event-Type"
	HeaderSessionID = "Session-ID"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	// MaxAge bounds how long a notification stays in the stream
	MaxAge time.Duration
	// DuplicateWindow must cover the listener's retries and fallback sweeps
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "COUNTDOWN_EVENTS",
		SubjectPrefix:   "countdown.events",
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 10 * time.Minute,
	}
}

// Subject returns "<prefix>.<event type>.<session id>", so consumers can
// filter by transition kind and the stream can keep one message per session
func (c JetStreamConfig) Subject(eventType, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, eventType, subjectToken(sessionID))
}

// streamConfig keeps only the latest notification per session and transition
func (c JetStreamConfig) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              c.StreamName,
		Description:       "Countdown low-time and expiry notifications",
		Subjects:          []string{c.SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 1,
		MaxAge:            c.MaxAge,
		Duplicates:        c.DuplicateWindow,
		Storage:           jetstream.FileStorage,
	}
}

// subjectToken makes an opaque session id safe to use as one subject token
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("cafeclock-outbox"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("outbox lost NATS connection, rows stay pending until it returns")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("outbox reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, cfg.streamConfig()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// Envelope wraps an outbox row in the shared event envelope
func Envelope(event OutboxEvent, at time.Time) events.Envelope {
	return events.Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		SessionID: event.SessionID,
		Timestamp: at,
		Payload:   event.Payload,
	}
}

// message builds the NATS message for an outbox row. The row id doubles as
// Nats-Msg-Id, so a row republished after a crash is dropped by the stream.
func (c JetStreamConfig) message(event OutboxEvent, at time.Time) (*nats.Msg, error) {
	data, err := json.Marshal(Envelope(event, at))
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := nats.NewMsg(c.Subject(event.EventType, event.SessionID))
	msg.Data = data
	msg.Header.Set(HeaderEventType, event.EventType)
	msg.Header.Set(HeaderSessionID, event.SessionID)
	msg.Header.Set(jetstream.MsgIDHeader, event.ID.String())
	return msg, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	msg, err := p.config.message(event, time.Now().UTC())
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithExpectStream(p.config.StreamName))
	if err != nil {
		return fmt.Errorf("publish %s for session %s: %w", event.EventType, event.SessionID, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("session_id", event.SessionID).
		Str("event_type", event.EventType).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("countdown notification published")
	return nil
}

// Connected reports whether the NATS connection is up
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
