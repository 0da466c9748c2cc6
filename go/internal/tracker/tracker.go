package tracker

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

const transitionBufferSize = 256

// FrameSink is where every frame of every mounted session ends up (e.g. the websocket gateway)
type FrameSink interface {
	PublishFrame(frame countdown.Frame)
	PublishSessionEnded(sessionID string)
}

// TransitionRecorder persists notable countdown transitions (e.g. the outbox)
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, frame countdown.Frame) error
}

// SnapshotStore persists mounted session windows so they survive a restart
type SnapshotStore interface {
	Save(ctx context.Context, session models.Session) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]models.Session, error)
}

// Option customises a Tracker
type Option func(*Tracker)

// WithClock overrides the real clock, mainly for tests
func WithClock(clock countdown.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithRecorder attaches a transition recorder
func WithRecorder(recorder TransitionRecorder) Option {
	return func(t *Tracker) { t.recorder = recorder }
}

// WithStore attaches a snapshot store
func WithStore(store SnapshotStore) Option {
	return func(t *Tracker) { t.store = store }
}

type mounted struct {
	timer   *countdown.Timer
	session models.Session
	scope   string
}

// Tracker owns one countdown timer per displayed session.
// Timers tick independently; the tracker only guards its own bookkeeping.
type Tracker struct {
	settings countdown.Settings
	clock    countdown.Clock
	sink     FrameSink
	recorder TransitionRecorder
	store    SnapshotStore

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*mounted

	// storeMu orders snapshot writes so a Delete from Unmount always lands after a racing Save
	storeMu sync.Mutex

	transitions chan countdown.Frame
}

// New creates a tracker. Timers are bound to an internal context that is
// cancelled when Run returns.
func New(settings countdown.Settings, sink FrameSink, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		settings:    settings.Normalize(),
		clock:       clockwork.NewRealClock(),
		sink:        sink,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*mounted),
		transitions: make(chan countdown.Frame, transitionBufferSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mount starts a countdown for the session, or replaces the window of an existing one.
// Sessions that are no longer running are unmounted instead.
func (t *Tracker) Mount(ctx context.Context, session models.Session) {
	t.mount(ctx, "", session)
}

// Apply handles a single session update pushed by the backend event stream
func (t *Tracker) Apply(ctx context.Context, session models.Session) {
	t.mount(ctx, "", session)
}

func (t *Tracker) mount(ctx context.Context, scope string, session models.Session) {
	if !session.IsRunning() {
		t.Unmount(ctx, session.ID)
		return
	}

	window := countdown.Window{Start: session.StartTime, End: session.EstimatedEndTime}

	t.mu.Lock()
	if m, ok := t.sessions[session.ID]; ok {
		changed := !m.session.StartTime.Equal(session.StartTime) || !m.session.EstimatedEndTime.Equal(session.EstimatedEndTime)
		m.session = session
		if scope != "" {
			m.scope = scope
		}
		t.mu.Unlock()

		if changed {
			if !m.timer.Replace(window) {
				log.Debug().
					Str("session_id", session.ID).
					Time("estimated_end_time", session.EstimatedEndTime).
					Msg("ignoring window change for expired countdown")
			} else {
				log.Info().
					Str("session_id", session.ID).
					Time("estimated_end_time", session.EstimatedEndTime).
					Msg("countdown window replaced")
			}
			t.save(ctx, m, session)
		}
		return
	}

	m := &mounted{session: session, scope: scope}
	m.timer = countdown.NewTimer(session.ID, window, t.clock, t.settings, t.frameSink(m))
	t.sessions[session.ID] = m
	t.mu.Unlock()

	// a concurrent Unmount may already have stopped the timer, which makes Start a no-op
	m.timer.Start(t.ctx)
	t.save(ctx, m, session)

	log.Info().
		Str("session_id", session.ID).
		Str("cafe_id", session.CafeID).
		Str("device_id", session.DeviceID).
		Time("start_time", session.StartTime).
		Time("estimated_end_time", session.EstimatedEndTime).
		Msg("countdown mounted")
}

// Unmount stops and discards the countdown for a session
func (t *Tracker) Unmount(ctx context.Context, sessionID string) {
	t.mu.Lock()
	m, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	m.timer.Stop()
	if t.sink != nil {
		t.sink.PublishSessionEnded(sessionID)
	}
	if t.store != nil {
		t.storeMu.Lock()
		if err := t.store.Delete(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session snapshot")
		}
		t.storeMu.Unlock()
	}

	log.Info().Str("session_id", sessionID).Msg("countdown unmounted")
}

// Sync applies an authoritative session listing for one poll scope (a café).
// Running sessions are mounted or refreshed; completed sessions and sessions
// of this scope missing from the listing are unmounted.
func (t *Tracker) Sync(ctx context.Context, scope string, sessions []models.Session) {
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		seen[s.ID] = struct{}{}
		t.mount(ctx, scope, s)
	}

	t.mu.RLock()
	var stale []string
	for id, m := range t.sessions {
		if _, ok := seen[id]; ok {
			continue
		}
		if m.scope == scope || (scope != "" && m.scope == "" && m.session.CafeID == scope) {
			stale = append(stale, id)
		}
	}
	t.mu.RUnlock()

	for _, id := range stale {
		t.Unmount(ctx, id)
	}
}

// Restore re-mounts every window held by the snapshot store
func (t *Tracker) Restore(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}

	sessions, err := t.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		t.mount(ctx, "", s)
	}

	log.Info().Int("sessions", len(sessions)).Msg("restored countdowns from snapshot store")
	return len(sessions), nil
}

// Frame returns the current frame for a mounted session
func (t *Tracker) Frame(sessionID string) (countdown.Frame, bool) {
	t.mu.RLock()
	m, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return countdown.Frame{}, false
	}
	return m.timer.Current(), true
}

// Frames returns the current frame of every mounted session ordered by estimated end time
func (t *Tracker) Frames() []countdown.Frame {
	t.mu.RLock()
	timers := make([]*countdown.Timer, 0, len(t.sessions))
	for _, m := range t.sessions {
		timers = append(timers, m.timer)
	}
	t.mu.RUnlock()

	frames := make([]countdown.Frame, 0, len(timers))
	for _, timer := range timers {
		frames = append(frames, timer.Current())
	}
	sort.Slice(frames, func(i, j int) bool {
		if frames[i].EstimatedEndTime.Equal(frames[j].EstimatedEndTime) {
			return frames[i].SessionID < frames[j].SessionID
		}
		return frames[i].EstimatedEndTime.Before(frames[j].EstimatedEndTime)
	})
	return frames
}

// Session returns the snapshot a countdown was last mounted with
func (t *Tracker) Session(sessionID string) (models.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return m.session, true
}

// Len returns the number of mounted countdowns
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Run hands queued transitions to the recorder until ctx is cancelled,
// then stops every mounted timer.
func (t *Tracker) Run(ctx context.Context) error {
	log.Info().Msg("session tracker started")

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return nil
		case frame := <-t.transitions:
			t.record(ctx, frame)
		}
	}
}

func (t *Tracker) shutdown() {
	t.cancel()

	t.mu.Lock()
	timers := make([]*countdown.Timer, 0, len(t.sessions))
	for id, m := range t.sessions {
		timers = append(timers, m.timer)
		log.Debug().Str("session_id", id).Msg("cancelled countdown on shutdown")
	}
	t.sessions = make(map[string]*mounted)
	t.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
	log.Info().Int("timers", len(timers)).Msg("session tracker stopped")
}

func (t *Tracker) record(ctx context.Context, frame countdown.Frame) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordTransition(ctx, frame); err != nil {
		log.Error().
			Err(err).
			Str("session_id", frame.SessionID).
			Str("transition", string(frame.Transition)).
			Msg("failed to record countdown transition")
	}
}

// frameSink binds a timer's frames to this mount, dropping frames that race with Unmount
func (t *Tracker) frameSink(m *mounted) countdown.FrameSink {
	return func(frame countdown.Frame) {
		t.mu.RLock()
		current, ok := t.sessions[frame.SessionID]
		t.mu.RUnlock()
		if !ok || current != m {
			return
		}

		if t.sink != nil {
			t.sink.PublishFrame(frame)
		}

		if frame.Transition == countdown.TransitionNone {
			return
		}

		log.Info().
			Str("session_id", frame.SessionID).
			Str("transition", string(frame.Transition)).
			Str("label", frame.Label).
			Msg("countdown transition")

		select {
		case t.transitions <- frame:
		default:
			log.Warn().Str("session_id", frame.SessionID).Msg("transition queue full, dropping transition")
		}
	}
}

// save persists the window of m unless m has been unmounted in the meantime
func (t *Tracker) save(ctx context.Context, m *mounted, session models.Session) {
	if t.store == nil {
		return
	}

	t.storeMu.Lock()
	defer t.storeMu.Unlock()

	t.mu.RLock()
	current := t.sessions[session.ID]
	t.mu.RUnlock()
	if current != m {
		log.Debug().Str("session_id", session.ID).Msg("skipping snapshot of unmounted session")
		return
	}

	if err := t.store.Save(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to save session snapshot")
	}
}
