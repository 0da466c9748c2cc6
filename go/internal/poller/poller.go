package poller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 15 * time.Second

// SessionSource lists sessions from the backend (the café API client)
type SessionSource interface {
	ListSessions(ctx context.Context, cafeID string) ([]models.Session, error)
}

// SessionSink receives authoritative listings (the session tracker)
type SessionSink interface {
	Sync(ctx context.Context, scope string, sessions []models.Session)
}

// Clock is the subset of clockwork the poller needs
type Clock interface {
	NewTicker(d time.Duration) clockwork.Ticker
}

type Config struct {
	Interval time.Duration
	// CafeIDs scopes polling; an empty list polls the caller's whole collection once per cycle
	CafeIDs []string
}

// Poller refreshes countdown inputs from the backend on a fixed period.
// Each poll hands over full listings so timestamps are replaced wholesale.
type Poller struct {
	source SessionSource
	sink   SessionSink
	clock  Clock
	config Config
}

func New(source SessionSource, sink SessionSink, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		source: source,
		sink:   sink,
		clock:  clockwork.NewRealClock(),
		config: cfg,
	}
}

// WithClock swaps the clock used for the poll ticker
func (p *Poller) WithClock(clock Clock) *Poller {
	p.clock = clock
	return p
}

// Run polls immediately and then on every interval until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", p.config.Interval).
		Strs("cafe_ids", p.config.CafeIDs).
		Msg("session poller started")

	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session poller shutting down")
			return nil
		case <-ticker.Chan():
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every configured scope once. A failed scope keeps its
// previous inputs; the countdowns carry on from them.
func (p *Poller) PollOnce(ctx context.Context) {
	scopes := p.config.CafeIDs
	if len(scopes) == 0 {
		scopes = []string{""}
	}

	for _, cafeID := range scopes {
		sessions, err := p.source.ListSessions(ctx, cafeID)
		if err != nil {
			log.Error().Err(err).Str("cafe_id", cafeID).Msg("failed to poll sessions")
			continue
		}

		running := 0
		for _, s := range sessions {
			if s.IsRunning() {
				running++
			}
		}

		p.sink.Sync(ctx, cafeID, sessions)

		log.Debug().
			Str("cafe_id", cafeID).
			Int("sessions", len(sessions)).
			Int("running", running).
			Msg("polled sessions")
	}
}
