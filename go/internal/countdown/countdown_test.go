package countdown_test

import (
	"testing"
	"time"

	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func TestTick_HalfwayThroughHourSession(t *testing.T) {
	view := countdown.Tick(base, base.Add(time.Hour), base.Add(30*time.Minute))

	assert.False(t, view.Expired)
	assert.Equal(t, 30*time.Minute, view.Remaining)
	assert.InDelta(t, 0.5, view.ElapsedFraction, 1e-9)
	assert.InDelta(t, 0.5, view.Progress(), 1e-9)
	assert.Equal(t, "0h 30m 0s", view.Label())
}

func TestTick_OneMillisecondPastEnd(t *testing.T) {
	view := countdown.Tick(base, base.Add(time.Hour), base.Add(time.Hour+time.Millisecond))

	assert.True(t, view.Expired)
	assert.Equal(t, time.Duration(0), view.Remaining)
	assert.Equal(t, 0.0, view.Progress())
	assert.Equal(t, "Session Expired", view.Label())
}

func TestTick_ExactlyAtEndIsExpired(t *testing.T) {
	view := countdown.Tick(base, base.Add(time.Hour), base.Add(time.Hour))
	assert.True(t, view.Expired)
	assert.Zero(t, view.Remaining)
}

func TestTick_DegenerateWindows(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		now        time.Time
	}{
		{name: "equal start and end", start: base, end: base, now: base.Add(-time.Minute)},
		{name: "inverted window", start: base.Add(time.Hour), end: base, now: base.Add(-time.Hour)},
		{name: "zero start", start: time.Time{}, end: base.Add(time.Hour), now: base},
		{name: "zero end", start: base, end: time.Time{}, now: base},
		{name: "zero now", start: base, end: base.Add(time.Hour), now: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := countdown.Tick(tt.start, tt.end, tt.now)
			assert.True(t, view.Expired)
			assert.Zero(t, view.Remaining)
			assert.Equal(t, 1.0, view.ElapsedFraction)
			assert.Equal(t, countdown.ExpiredLabel, view.Label())
		})
	}
}

func TestTick_BeforeStartClampsElapsed(t *testing.T) {
	view := countdown.Tick(base, base.Add(time.Hour), base.Add(-10*time.Minute))

	assert.False(t, view.Expired)
	assert.Equal(t, 70*time.Minute, view.Remaining)
	assert.Equal(t, 0.0, view.ElapsedFraction)
	assert.Equal(t, 1.0, view.Progress())
}

func TestTick_Monotonic(t *testing.T) {
	start, end := base, base.Add(90*time.Minute)

	prev := countdown.Tick(start, end, start.Add(-time.Minute))
	for now := start; now.Before(end.Add(5 * time.Minute)); now = now.Add(17 * time.Second) {
		view := countdown.Tick(start, end, now)

		require.GreaterOrEqual(t, view.ElapsedFraction, prev.ElapsedFraction)
		require.GreaterOrEqual(t, view.ElapsedFraction, 0.0)
		require.LessOrEqual(t, view.ElapsedFraction, 1.0)
		require.GreaterOrEqual(t, view.Remaining, time.Duration(0))

		if now.Before(end) {
			require.Greater(t, view.Remaining, time.Duration(0))
			require.Less(t, view.Remaining, prev.Remaining)
		} else {
			require.True(t, view.Expired)
		}
		prev = view
	}
}

func TestTick_Idempotent(t *testing.T) {
	now := base.Add(12*time.Minute + 345*time.Millisecond)
	a := countdown.Tick(base, base.Add(2*time.Hour), now)
	b := countdown.Tick(base, base.Add(2*time.Hour), now)
	assert.Equal(t, a, b)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m 0s"},
		{999 * time.Millisecond, "0h 0m 0s"},
		{time.Second, "0h 0m 1s"},
		{61 * time.Second, "0h 1m 1s"},
		{time.Hour + 2*time.Minute + 3*time.Second + 900*time.Millisecond, "1h 2m 3s"},
		{26 * time.Hour, "26h 0m 0s"},
		{-5 * time.Second, "0h 0m 0s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, countdown.FormatRemaining(tt.in), "input %s", tt.in)
	}
}

func TestView_LowTime(t *testing.T) {
	end := base.Add(100 * time.Minute)

	assert.False(t, countdown.Tick(base, end, base.Add(79*time.Minute)).LowTime(0.2))
	assert.True(t, countdown.Tick(base, end, base.Add(80*time.Minute)).LowTime(0.2))
	assert.True(t, countdown.Tick(base, end, base.Add(99*time.Minute)).LowTime(0.2))
	assert.False(t, countdown.Tick(base, end, end).LowTime(0.2), "expired is not low-time")
}

func TestRender(t *testing.T) {
	window := countdown.Window{Start: base, End: base.Add(time.Hour)}
	frame := countdown.Render("sess-1", window, base.Add(50*time.Minute), 0.2)

	assert.Equal(t, "sess-1", frame.SessionID)
	assert.Equal(t, "0h 10m 0s", frame.Label)
	assert.Equal(t, int64(10*60*1000), frame.RemainingMs)
	assert.InDelta(t, 16.666, frame.ProgressPercent, 0.01)
	assert.True(t, frame.LowTime)
	assert.False(t, frame.Expired)
	assert.Equal(t, countdown.StateRunning, frame.State)
	assert.Equal(t, window.Start, frame.StartTime)
	assert.Equal(t, window.End, frame.EstimatedEndTime)
}

func TestSettings_Normalize(t *testing.T) {
	s := countdown.Settings{}.Normalize()
	assert.Equal(t, countdown.DefaultSettings(), s)

	s = countdown.Settings{TickInterval: 250 * time.Millisecond, LowTimeThreshold: 1.5}.Normalize()
	assert.Equal(t, 250*time.Millisecond, s.TickInterval)
	assert.Equal(t, countdown.DefaultLowTimeThreshold, s.LowTimeThreshold)
}
