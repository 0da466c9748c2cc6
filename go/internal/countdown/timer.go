package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// FrameSink receives every frame a timer produces.
// It runs on the timer goroutine and must not call Stop on the same timer.
type FrameSink func(Frame)

// Timer is the scoped countdown resource for one displayed session.
// Start acquires a periodic ticker, Stop releases it. Every tick re-reads the
// clock, so a late tick still reports the true remaining time.
type Timer struct {
	sessionID string
	clock     Clock
	settings  Settings
	sink      FrameSink

	mu           sync.Mutex
	window       Window
	state        State
	lowSignalled bool
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewTimer creates a countdown timer for a session. It does not tick until Start.
func NewTimer(sessionID string, window Window, clock Clock, settings Settings, sink FrameSink) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = func(Frame) {}
	}

	return &Timer{
		sessionID: sessionID,
		clock:     clock,
		settings:  settings.Normalize(),
		sink:      sink,
		window:    window,
	}
}

// Start emits the initial frame and, unless the window is already over,
// begins ticking until ctx is cancelled, Stop is called or the session expires.
// Calling Start more than once, or after Stop, has no effect.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true

	frame := t.evaluateLocked(t.clock.Now(), true)
	if frame.State == StateExpired {
		t.mu.Unlock()
		log.Debug().
			Str("session_id", t.sessionID).
			Msg("countdown mounted on an already expired window")
		t.sink(frame)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	ticker := t.clock.NewTicker(t.settings.TickInterval)
	t.mu.Unlock()

	t.sink(frame)
	go t.run(runCtx, ticker)
}

// Stop releases the ticker and waits for the tick goroutine to exit. Safe to call repeatedly.
// A timer stopped before Start never ticks.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Replace swaps the session window wholesale. The next tick evaluates the new
// window, so an end time moved into the past expires on that tick.
// It returns false once the timer has expired, since expiry is final.
func (t *Timer) Replace(window Window) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateExpired {
		return false
	}
	t.window = window
	return true
}

// Window returns the timestamps currently driving the countdown
func (t *Timer) Window() Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

// State returns the current display state
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current renders a frame at the clock's current time without advancing the state machine
func (t *Timer) Current() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame := Render(t.sessionID, t.window, t.clock.Now(), t.settings.LowTimeThreshold)
	if t.state == StateExpired {
		frame = expireFrame(frame)
	}
	return frame
}

func (t *Timer) run(ctx context.Context, ticker clockwork.Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.mu.Lock()
			frame := t.evaluateLocked(t.clock.Now(), false)
			t.mu.Unlock()

			t.sink(frame)

			if frame.State == StateExpired {
				log.Debug().
					Str("session_id", t.sessionID).
					Time("estimated_end_time", frame.EstimatedEndTime).
					Msg("countdown expired, releasing ticker")
				return
			}
		}
	}
}

// evaluateLocked renders the frame for now and advances RUNNING -> EXPIRED.
// Transitions are only reported for changes observed after mount.
func (t *Timer) evaluateLocked(now time.Time, initial bool) Frame {
	frame := Render(t.sessionID, t.window, now, t.settings.LowTimeThreshold)

	if t.state == StateExpired {
		return expireFrame(frame)
	}

	if frame.Expired {
		if !initial {
			frame.Transition = TransitionExpired
		}
		t.state = StateExpired
		return frame
	}

	t.state = StateRunning
	switch {
	case !frame.LowTime:
		// a top-up can lift a session back out of the low-time band
		t.lowSignalled = false
	case !t.lowSignalled:
		t.lowSignalled = true
		if !initial {
			frame.Transition = TransitionLowTime
		}
	}
	return frame
}

func expireFrame(f Frame) Frame {
	f.State = StateExpired
	f.Expired = true
	f.LowTime = false
	f.Label = ExpiredLabel
	f.RemainingMs = 0
	f.ElapsedFraction = 1
	f.Progress = 0
	f.ProgressPercent = 0
	return f
}
