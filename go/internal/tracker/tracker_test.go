package tracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/mcdev12/cafeclock/go/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeSink struct {
	mu     sync.Mutex
	frames []countdown.Frame
	ended  []string
}

func (s *fakeSink) PublishFrame(f countdown.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *fakeSink) PublishSessionEnded(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, id)
}

func (s *fakeSink) endedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ended...)
}

func (s *fakeSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type fakeRecorder struct {
	ch chan countdown.Frame
}

func (r *fakeRecorder) RecordTransition(_ context.Context, f countdown.Frame) error {
	r.ch <- f
	return nil
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]models.Session)}
}

func (m *memoryStore) Save(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryStore) List(_ context.Context) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func session(id, cafe string, start, end time.Time) models.Session {
	return models.Session{
		ID:               id,
		CafeID:           cafe,
		DeviceID:         "dev-" + id,
		Status:           models.SessionStatusActive,
		StartTime:        start,
		EstimatedEndTime: end,
	}
}

func runTracker(t *testing.T, tr *tracker.Tracker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestTracker_MountAndFrame(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	sink := &fakeSink{}
	tr := tracker.New(countdown.DefaultSettings(), sink, tracker.WithClock(clock))
	runTracker(t, tr)

	tr.Mount(context.Background(), session("s1", "cafe-1", base, base.Add(time.Hour)))

	frame, ok := tr.Frame("s1")
	require.True(t, ok)
	assert.Equal(t, "1h 0m 0s", frame.Label)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 1, sink.frameCount(), "initial frame published on mount")

	_, ok = tr.Frame("missing")
	assert.False(t, ok)
}

func TestTracker_SyncReplacesAndUnmounts(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	sink := &fakeSink{}
	tr := tracker.New(countdown.DefaultSettings(), sink, tracker.WithClock(clock))
	runTracker(t, tr)
	ctx := context.Background()

	tr.Sync(ctx, "cafe-1", []models.Session{
		session("s1", "cafe-1", base, base.Add(time.Hour)),
		session("s2", "cafe-1", base, base.Add(2*time.Hour)),
	})
	tr.Sync(ctx, "cafe-2", []models.Session{
		session("s3", "cafe-2", base, base.Add(time.Hour)),
	})
	require.Equal(t, 3, tr.Len())

	extended := session("s1", "cafe-1", base, base.Add(3*time.Hour))
	extended.Status = models.SessionStatusExtended
	completed := session("s2", "cafe-1", base, base.Add(2*time.Hour))
	completed.Status = models.SessionStatusCompleted

	tr.Sync(ctx, "cafe-1", []models.Session{extended, completed})

	frame, ok := tr.Frame("s1")
	require.True(t, ok)
	assert.Equal(t, "3h 0m 0s", frame.Label)

	_, ok = tr.Frame("s2")
	assert.False(t, ok, "completed session is unmounted")

	tr.Sync(ctx, "cafe-1", nil)
	_, ok = tr.Frame("s1")
	assert.False(t, ok, "missing session is unmounted")

	_, ok = tr.Frame("s3")
	assert.True(t, ok, "other scopes are untouched")
	assert.ElementsMatch(t, []string{"s2", "s1"}, sink.endedIDs())
}

func TestTracker_RecordsTransitions(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	rec := &fakeRecorder{ch: make(chan countdown.Frame, 8)}
	tr := tracker.New(countdown.DefaultSettings(), &fakeSink{}, tracker.WithClock(clock), tracker.WithRecorder(rec))
	runTracker(t, tr)

	tr.Mount(context.Background(), session("s1", "cafe-1", base.Add(-9*time.Second), base.Add(time.Second)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case f := <-rec.ch:
		assert.Equal(t, "s1", f.SessionID)
		assert.Equal(t, countdown.TransitionExpired, f.Transition)
	case <-time.After(2 * time.Second):
		t.Fatal("expected expiry transition to be recorded")
	}

	frame, ok := tr.Frame("s1")
	require.True(t, ok, "expired sessions stay mounted until the backend completes them")
	assert.True(t, frame.Expired)
}

func TestTracker_StoreAndRestore(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	store := newMemoryStore()
	ctx := context.Background()

	first := tracker.New(countdown.DefaultSettings(), nil, tracker.WithClock(clock), tracker.WithStore(store))
	first.Mount(ctx, session("s1", "cafe-1", base, base.Add(time.Hour)))
	first.Mount(ctx, session("s2", "cafe-1", base, base.Add(time.Hour)))
	first.Unmount(ctx, "s2")

	stored, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	second := tracker.New(countdown.DefaultSettings(), nil, tracker.WithClock(clock), tracker.WithStore(store))
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	frame, ok := second.Frame("s1")
	require.True(t, ok)
	assert.Equal(t, "1h 0m 0s", frame.Label)
}

func TestTracker_FramesOrderedByEnd(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	tr := tracker.New(countdown.DefaultSettings(), nil, tracker.WithClock(clock))
	runTracker(t, tr)
	ctx := context.Background()

	tr.Mount(ctx, session("late", "c", base, base.Add(3*time.Hour)))
	tr.Mount(ctx, session("soon", "c", base, base.Add(time.Hour)))

	frames := tr.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "soon", frames[0].SessionID)
	assert.Equal(t, "late", frames[1].SessionID)
}

func TestTracker_RunStopsTimers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	tr := tracker.New(countdown.DefaultSettings(), nil, tracker.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	tr.Mount(context.Background(), session("s1", "c", base, base.Add(time.Hour)))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, tr.Len())
}

// unmountingSink unmounts the session from inside its first frame, the way a
// concurrent poll or SessionEnded event can land while Mount is still running.
type unmountingSink struct {
	fakeSink
	tr   *tracker.Tracker
	once sync.Once
	done chan struct{}
}

func (s *unmountingSink) PublishFrame(f countdown.Frame) {
	s.fakeSink.PublishFrame(f)
	s.once.Do(func() {
		go func() {
			defer close(s.done)
			s.tr.Unmount(context.Background(), f.SessionID)
		}()
		for s.tr.Len() != 0 {
			time.Sleep(time.Millisecond)
		}
	})
}

func TestTracker_UnmountDuringMountLeavesNothingBehind(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	store := newMemoryStore()
	sink := &unmountingSink{done: make(chan struct{})}
	tr := tracker.New(countdown.DefaultSettings(), sink, tracker.WithClock(clock), tracker.WithStore(store))
	sink.tr = tr

	tr.Mount(context.Background(), session("s1", "cafe-1", base, base.Add(time.Hour)))

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("unmount did not finish")
	}

	stored, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored, "an unmounted session must not be restored on the next boot")
	assert.Equal(t, []string{"s1"}, sink.endedIDs())

	clock.Advance(3 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sink.frameCount())
	assert.Equal(t, 0, tr.Len())
}
