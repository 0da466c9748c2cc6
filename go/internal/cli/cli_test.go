package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/cli"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/countdownrpc"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubClient struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	listed   []string
}

func (s *stubClient) ListSessions(_ context.Context, cafeID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, cafeID)

	var out []models.Session
	for _, sess := range s.sessions {
		if cafeID == "" || sess.CafeID == cafeID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubClient) GetSession(_ context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, capi.ErrSessionNotFound
	}
	return sess, nil
}

func newDeps(clock clockwork.Clock, client *stubClient) cli.Deps {
	return cli.Deps{
		Clock:      clock,
		NewClient:  func(string, string) cli.SessionClient { return client },
		HTTPClient: http.DefaultClient,
	}
}

func run(t *testing.T, deps cli.Deps, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTick(t *testing.T) {
	deps := newDeps(clockwork.NewFakeClock(), &stubClient{})

	t.Run("text", func(t *testing.T) {
		out, err := run(t, deps, "tick",
			"--start", "2025-03-01T12:00:00Z",
			"--end", "2025-03-01T13:00:00Z",
			"--now", "2025-03-01T12:15:00Z")
		require.NoError(t, err)
		assert.Contains(t, out, "0h 45m 0s")
		assert.Contains(t, out, "75.0%")
		assert.NotContains(t, out, "[low time]")
	})

	t.Run("low time with epoch input", func(t *testing.T) {
		// epoch seconds for 12:00 and 13:00 UTC
		out, err := run(t, deps, "tick",
			"--start", "1740830400",
			"--end", "1740834000",
			"--now", "2025-03-01T12:50:00Z")
		require.NoError(t, err)
		assert.Contains(t, out, "0h 10m 0s")
		assert.Contains(t, out, "[low time]")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, deps, "--json", "tick",
			"--start", "2025-03-01T12:00:00Z",
			"--end", "2025-03-01T13:00:00Z",
			"--now", "2025-03-01T14:00:00Z")
		require.NoError(t, err)

		var frame countdown.Frame
		require.NoError(t, json.Unmarshal([]byte(out), &frame))
		assert.True(t, frame.Expired)
		assert.Equal(t, countdown.ExpiredLabel, frame.Label)
		assert.Equal(t, countdown.StateExpired, frame.State)
	})

	t.Run("malformed time expires", func(t *testing.T) {
		out, err := run(t, deps, "tick", "--start", "yesterday", "--end", "2025-03-01T13:00:00Z")
		require.NoError(t, err)
		assert.Contains(t, out, countdown.ExpiredLabel)
	})

	t.Run("malformed now expires", func(t *testing.T) {
		out, err := run(t, deps, "tick",
			"--start", "2025-03-01T12:00:00Z",
			"--end", "2025-03-01T13:00:00Z",
			"--now", "not-a-time")
		require.NoError(t, err)
		assert.Contains(t, out, countdown.ExpiredLabel)
		assert.Contains(t, out, "[expired]")
	})

		t.Run("missing flag", func(t *testing.T) {
		_, err := run(t, deps, "tick", "--end", "2025-03-01T13:00:00Z")
		require.Error(t, err)
	})
}

func TestTick_Server(t *testing.T) {
	clock := clockwork.NewFakeClockAt(sessionStart.Add(30 * time.Minute))
	svc := countdownrpc.NewService(nil, countdown.DefaultSettings()).WithClock(clock)
	mux := http.NewServeMux()
	mux.Handle(countdownrpc.NewHandler(svc))
	server := httptest.NewServer(mux)
	defer server.Close()

	out, err := run(t, newDeps(clockwork.NewFakeClock(), &stubClient{}), "tick",
		"--server", server.URL,
		"--start", "2025-03-01T12:00:00Z",
		"--end", "2025-03-01T13:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "0h 30m 0s")
}

func TestSessions(t *testing.T) {
	clock := clockwork.NewFakeClockAt(sessionStart.Add(30 * time.Minute))
	client := &stubClient{sessions: map[string]models.Session{
		"s1": {ID: "s1", CafeID: "c1", DeviceID: "pc-01", Status: models.SessionStatusActive,
			StartTime: sessionStart, EstimatedEndTime: sessionStart.Add(time.Hour)},
		"s2": {ID: "s2", CafeID: "c1", DeviceID: "pc-02", Status: models.SessionStatusCompleted,
			StartTime: sessionStart, EstimatedEndTime: sessionStart.Add(time.Hour)},
		"s3": {ID: "s3", CafeID: "c2", DeviceID: "pc-03", Status: models.SessionStatusActive,
			StartTime: sessionStart, EstimatedEndTime: sessionStart.Add(time.Hour)},
	}}

	out, err := run(t, newDeps(clock, client), "sessions", "--cafe", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "pc-01")
	assert.Contains(t, out, "0h 30m 0s")
	assert.NotContains(t, out, "pc-02", "completed sessions are hidden by default")
	assert.NotContains(t, out, "pc-03")
	assert.Equal(t, []string{"c1"}, client.listed)

	out, err = run(t, newDeps(clock, client), "--json", "sessions", "--cafe", "c1", "--all")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)
}

func TestWatch_ExpiredSessionPrintsOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(sessionStart.Add(2 * time.Hour))
	client := &stubClient{sessions: map[string]models.Session{
		"s1": {ID: "s1", Status: models.SessionStatusActive,
			StartTime: sessionStart, EstimatedEndTime: sessionStart.Add(time.Hour)},
	}}

	out, err := run(t, newDeps(clock, client), "watch", "--session", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte(countdown.ExpiredLabel)))
}

func TestWatch_CountsDownToExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(sessionStart.Add(time.Hour - 5*time.Second))
	client := &stubClient{sessions: map[string]models.Session{
		"s1": {ID: "s1", Status: models.SessionStatusActive,
			StartTime: sessionStart, EstimatedEndTime: sessionStart.Add(time.Hour)},
	}}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := run(t, newDeps(clock, client), "watch", "--session", "s1", "--refresh", "1m")
		done <- result{out, err}
	}()

	// the countdown ticker and the refresh ticker
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(10 * time.Second)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "0h 0m 5s")
		assert.Contains(t, r.out, countdown.ExpiredLabel)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not exit after expiry")
	}
}

func TestWatch_ClosedSession(t *testing.T) {
	client := &stubClient{sessions: map[string]models.Session{
		"s1": {ID: "s1", Status: models.SessionStatusCompleted},
	}}

	out, err := run(t, newDeps(clockwork.NewFakeClock(), client), "watch", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "session s1 is COMPLETED")

	_, err = run(t, newDeps(clockwork.NewFakeClock(), client), "watch", "--session", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

type staticFrames map[string]countdown.Frame

func (s staticFrames) Frame(id string) (countdown.Frame, bool) {
	f, ok := s[id]
	return f, ok
}

func TestGet(t *testing.T) {
	frame := countdown.Render("s1", countdown.Window{Start: sessionStart, End: sessionStart.Add(time.Hour)}, sessionStart.Add(55*time.Minute), 0.2)
	svc := countdownrpc.NewService(staticFrames{"s1": frame}, countdown.DefaultSettings())
	mux := http.NewServeMux()
	mux.Handle(countdownrpc.NewHandler(svc))
	server := httptest.NewServer(mux)
	defer server.Close()

	deps := newDeps(clockwork.NewFakeClock(), &stubClient{})

	out, err := run(t, deps, "get", "--session", "s1", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "0h 5m 0s")
	assert.Contains(t, out, "[low time]")

	_, err = run(t, deps, "get", "--session", "missing", "--server", server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not tracked")
}
