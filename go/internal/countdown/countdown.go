package countdown

import (
	"fmt"
	"time"
)

// ExpiredLabel is shown instead of a duration once a session runs out
const ExpiredLabel = "Session Expired"

// View is the countdown state of a single session at one instant.
// It is rebuilt from the session's two timestamps on every tick.
type View struct {
	Remaining       time.Duration `json:"remaining"`
	ElapsedFraction float64       `json:"elapsed_fraction"`
	Expired         bool          `json:"expired"`
}

// Progress is the share of the session still left, i.e. the bar fill in [0,1]
func (v View) Progress() float64 {
	return 1 - v.ElapsedFraction
}

// Label renders the remaining time for display
func (v View) Label() string {
	if v.Expired {
		return ExpiredLabel
	}
	return FormatRemaining(v.Remaining)
}

// LowTime reports whether the remaining share has fallen to threshold or below.
// An expired view is never low-time, it is expired.
func (v View) LowTime(threshold float64) bool {
	return !v.Expired && v.Progress() <= threshold
}

// Tick computes the countdown view for a session window at now.
//
// now is whatever the host clock reports; callers must not derive it from a
// tick count. Zero or inverted windows and zero timestamps, now included,
// degrade to an expired view.
func Tick(start, end, now time.Time) View {
	if start.IsZero() || end.IsZero() || now.IsZero() {
		return expiredView()
	}

	total := end.Sub(start)
	remaining := end.Sub(now)
	if remaining <= 0 || total <= 0 {
		return expiredView()
	}

	elapsed := float64(total-remaining) / float64(total)
	return View{
		Remaining:       remaining,
		ElapsedFraction: clampUnit(elapsed),
	}
}

// FormatRemaining renders d as "{h}h {m}m {s}s" without padding.
// Negative durations render as zero.
func FormatRemaining(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	hours := ms / 3600000
	minutes := ms % 3600000 / 60000
	seconds := ms % 60000 / 1000

	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

func expiredView() View {
	return View{Expired: true, ElapsedFraction: 1}
}

func clampUnit(f float64) float64 {
	switch {
	case f != f: // NaN
		return 1
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
