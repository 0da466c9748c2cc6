package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/mcdev12/cafeclock/go/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (s *stubSource) ListSessions(_ context.Context, cafeID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cafeID)
	if s.fail[cafeID] {
		return nil, errors.New("backend unavailable")
	}
	return []models.Session{{ID: "s-" + cafeID, CafeID: cafeID, Status: models.SessionStatusActive}}, nil
}

type syncCall struct {
	scope    string
	sessions []models.Session
}

type stubSink struct {
	ch chan syncCall
}

func (s *stubSink) Sync(_ context.Context, scope string, sessions []models.Session) {
	s.ch <- syncCall{scope: scope, sessions: sessions}
}

func TestPollOnce_SkipsFailedScopes(t *testing.T) {
	source := &stubSource{fail: map[string]bool{"c2": true}}
	sink := &stubSink{ch: make(chan syncCall, 8)}

	p := poller.New(source, sink, poller.Config{CafeIDs: []string{"c1", "c2", "c3"}})
	p.PollOnce(context.Background())

	close(sink.ch)
	var scopes []string
	for call := range sink.ch {
		scopes = append(scopes, call.scope)
		require.Len(t, call.sessions, 1)
	}
	assert.Equal(t, []string{"c1", "c3"}, scopes)
	assert.Equal(t, []string{"c1", "c2", "c3"}, source.calls)
}

func TestRun_PollsImmediatelyAndOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &stubSource{}
	sink := &stubSink{ch: make(chan syncCall, 8)}

	p := poller.New(source, sink, poller.Config{Interval: 10 * time.Second}).WithClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	next := func() syncCall {
		select {
		case c := <-sink.ch:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for poll")
			return syncCall{}
		}
	}

	first := next()
	assert.Equal(t, "", first.scope, "no configured cafés polls the whole collection")

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(10 * time.Second)
	next()

	cancel()
	require.NoError(t, <-done)
}
