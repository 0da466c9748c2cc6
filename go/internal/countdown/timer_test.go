package countdown_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameRecorder chan countdown.Frame

func newFrameRecorder() frameRecorder {
	return make(frameRecorder, 64)
}

func (r frameRecorder) sink(f countdown.Frame) {
	r <- f
}

func (r frameRecorder) next(t *testing.T) countdown.Frame {
	t.Helper()
	select {
	case f := <-r:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown frame")
		return countdown.Frame{}
	}
}

func (r frameRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case f := <-r:
		t.Fatalf("unexpected frame: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func startTimer(t *testing.T, clock *clockwork.FakeClock, window countdown.Window) (*countdown.Timer, frameRecorder) {
	t.Helper()
	rec := newFrameRecorder()
	timer := countdown.NewTimer("sess-1", window, clock, countdown.DefaultSettings(), rec.sink)
	timer.Start(context.Background())
	t.Cleanup(timer.Stop)
	return timer, rec
}

func waitForTicker(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestTimer_EmitsInitialFrameAndTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base.Add(-30 * time.Minute), End: base.Add(30 * time.Minute)})

	first := rec.next(t)
	assert.Equal(t, "0h 30m 0s", first.Label)
	assert.Equal(t, countdown.StateRunning, first.State)
	assert.Equal(t, countdown.TransitionNone, first.Transition)

	waitForTicker(t, clock)
	clock.Advance(time.Second)

	second := rec.next(t)
	assert.Equal(t, "0h 29m 59s", second.Label)
	assert.Equal(t, base.Add(time.Second), second.TickedAt)
	assert.Equal(t, countdown.StateRunning, timer.State())
}

func TestTimer_DelayedTickUsesRealNow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	_, rec := startTimer(t, clock, countdown.Window{Start: base, End: base.Add(time.Hour)})
	rec.next(t)

	waitForTicker(t, clock)
	clock.Advance(2500 * time.Millisecond)

	frame := rec.next(t)
	assert.Equal(t, base.Add(2500*time.Millisecond), frame.TickedAt)
	assert.Equal(t, int64((time.Hour - 2500*time.Millisecond).Milliseconds()), frame.RemainingMs)
	assert.Equal(t, "0h 59m 57s", frame.Label)
}

func TestTimer_ExpiresOnceAndReleasesTicker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base.Add(-time.Hour), End: base.Add(2 * time.Second)})
	rec.next(t)

	waitForTicker(t, clock)
	clock.Advance(time.Second)
	running := rec.next(t)
	assert.False(t, running.Expired)

	clock.Advance(time.Second)
	expired := rec.next(t)
	assert.True(t, expired.Expired)
	assert.Equal(t, countdown.ExpiredLabel, expired.Label)
	assert.Equal(t, countdown.TransitionExpired, expired.Transition)
	assert.Equal(t, countdown.StateExpired, timer.State())

	clock.Advance(5 * time.Second)
	rec.none(t)

	assert.False(t, timer.Replace(countdown.Window{Start: base, End: base.Add(time.Hour)}), "expiry is final")
	assert.True(t, timer.Current().Expired)
}

func TestTimer_LowTimeTransitionFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	// 10s window, low-time band starts with 2s left
	_, rec := startTimer(t, clock, countdown.Window{Start: base, End: base.Add(10 * time.Second)})
	rec.next(t)
	waitForTicker(t, clock)

	var transitions []countdown.Transition
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		f := rec.next(t)
		if f.Transition != countdown.TransitionNone {
			transitions = append(transitions, f.Transition)
		}
		if f.Expired {
			break
		}
	}

	assert.Equal(t, []countdown.Transition{countdown.TransitionLowTime, countdown.TransitionExpired}, transitions)
}

func TestTimer_ReplaceExtendsWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base, End: base.Add(time.Minute)})
	rec.next(t)

	require.True(t, timer.Replace(countdown.Window{Start: base, End: base.Add(time.Hour)}))

	waitForTicker(t, clock)
	clock.Advance(time.Second)
	frame := rec.next(t)
	assert.Equal(t, "0h 59m 59s", frame.Label)
	assert.Equal(t, base.Add(time.Hour), timer.Window().End)
}

func TestTimer_ReplaceIntoPastExpiresOnNextTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base.Add(-time.Hour), End: base.Add(time.Hour)})
	rec.next(t)

	require.True(t, timer.Replace(countdown.Window{Start: base.Add(-time.Hour), End: base.Add(-time.Minute)}))
	assert.Equal(t, countdown.StateRunning, timer.State(), "no transition until the next tick")

	waitForTicker(t, clock)
	clock.Advance(time.Second)
	frame := rec.next(t)
	assert.True(t, frame.Expired)
	assert.Equal(t, countdown.TransitionExpired, frame.Transition)
}

func TestTimer_MountedExpiredDoesNotTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base.Add(-2 * time.Hour), End: base.Add(-time.Hour)})

	frame := rec.next(t)
	assert.True(t, frame.Expired)
	assert.Equal(t, countdown.TransitionNone, frame.Transition)
	assert.Equal(t, countdown.StateExpired, timer.State())

	clock.Advance(3 * time.Second)
	rec.none(t)
}

func TestTimer_StopReleasesTicker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	timer, rec := startTimer(t, clock, countdown.Window{Start: base, End: base.Add(time.Hour)})
	rec.next(t)
	waitForTicker(t, clock)

	timer.Stop()
	timer.Stop()

	clock.Advance(3 * time.Second)
	rec.none(t)
}

func TestTimer_StopOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	rec := newFrameRecorder()
	timer := countdown.NewTimer("sess-2", countdown.Window{Start: base, End: base.Add(time.Hour)}, clock, countdown.DefaultSettings(), rec.sink)

	ctx, cancel := context.WithCancel(context.Background())
	timer.Start(ctx)
	rec.next(t)
	waitForTicker(t, clock)

	cancel()
	timer.Stop()

	clock.Advance(time.Second)
	rec.none(t)
}

func TestTimer_StopBeforeStartNeverTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	rec := newFrameRecorder()
	timer := countdown.NewTimer("sess-3", countdown.Window{Start: base, End: base.Add(time.Hour)}, clock, countdown.DefaultSettings(), rec.sink)

	timer.Stop()
	timer.Start(context.Background())
	t.Cleanup(timer.Stop)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
	}
	rec.none(t)
	assert.Equal(t, 0, len(rec))
}
