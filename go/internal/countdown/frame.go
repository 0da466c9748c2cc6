package countdown

import (
	"time"
)

// DefaultLowTimeThreshold is the remaining share at or below which displays switch to low-time styling
const DefaultLowTimeThreshold = 0.20

// DefaultTickInterval is the re-evaluation period of a mounted countdown
const DefaultTickInterval = time.Second

// Settings configures how a countdown is evaluated and rendered
type Settings struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	LowTimeThreshold float64       `yaml:"low_time_threshold"`
}

// DefaultSettings returns the engine defaults
func DefaultSettings() Settings {
	return Settings{
		TickInterval:     DefaultTickInterval,
		LowTimeThreshold: DefaultLowTimeThreshold,
	}
}

// Normalize fills zero or out-of-range fields with defaults
func (s Settings) Normalize() Settings {
	if s.TickInterval <= 0 {
		s.TickInterval = DefaultTickInterval
	}
	if s.LowTimeThreshold <= 0 || s.LowTimeThreshold > 1 {
		s.LowTimeThreshold = DefaultLowTimeThreshold
	}
	return s
}

// Window is the pair of timestamps a countdown is driven by
type Window struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"estimated_end_time"`
}

// State is the per-session display state
type State string

const (
	StateRunning State = "RUNNING"
	StateExpired State = "EXPIRED"
)

// Transition marks the first frame after a notable change
type Transition string

const (
	TransitionNone    Transition = ""
	TransitionLowTime Transition = "LOW_TIME"
	TransitionExpired Transition = "EXPIRED"
)

// Frame is the render contract handed to displays on every tick
type Frame struct {
	SessionID        string     `json:"session_id"`
	Label            string     `json:"label"`
	RemainingMs      int64      `json:"remaining_ms"`
	ElapsedFraction  float64    `json:"elapsed_fraction"`
	Progress         float64    `json:"progress"`
	ProgressPercent  float64    `json:"progress_percent"`
	LowTime          bool       `json:"low_time"`
	Expired          bool       `json:"expired"`
	State            State      `json:"state"`
	Transition       Transition `json:"transition,omitempty"`
	StartTime        time.Time  `json:"start_time"`
	EstimatedEndTime time.Time  `json:"estimated_end_time"`
	TickedAt         time.Time  `json:"ticked_at"`
}

// Render evaluates a window at now and builds the frame a display would show.
// State is derived from the view alone; timers layer transitions on top.
func Render(sessionID string, window Window, now time.Time, threshold float64) Frame {
	view := Tick(window.Start, window.End, now)
	state := StateRunning
	if view.Expired {
		state = StateExpired
	}

	return Frame{
		SessionID:        sessionID,
		Label:            view.Label(),
		RemainingMs:      view.Remaining.Milliseconds(),
		ElapsedFraction:  view.ElapsedFraction,
		Progress:         view.Progress(),
		ProgressPercent:  view.Progress() * 100,
		LowTime:          view.LowTime(threshold),
		Expired:          view.Expired,
		State:            state,
		StartTime:        window.Start,
		EstimatedEndTime: window.End,
		TickedAt:         now,
	}
}
