// Package sessions resolves which operating session, if any, is active at a
// given wall-clock time. Resolution is a pure function of the effective
// config and the clock so it can be tested with a fixed time.
package sessions

import (
	"strconv"
	"strings"
	"time"

	"github.com/heliosfit/gymdesk/internal/gymconfig"
)

// Label identifies the active session. The zero value means the gym is closed.
type Label string

const (
	None       Label = ""
	Morning    Label = "morning"
	Evening    Label = "evening"
	Continuous Label = "continuous"
	FullDay    Label = "full-day"
)

const minutesPerDay = 24 * 60

// DisplayName returns the operator-facing name for a label, preferring the
// configured window names.
func (l Label) DisplayName(cfg gymconfig.Config) string {
	switch l {
	case Morning:
		if cfg.Sessions.Morning.Name != "" {
			return cfg.Sessions.Morning.Name
		}
		return "Morning"
	case Evening:
		if cfg.Sessions.Evening.Name != "" {
			return cfg.Sessions.Evening.Name
		}
		return "Evening"
	case Continuous:
		return "Day"
	case FullDay:
		return "Full Day"
	default:
		return "Session"
	}
}

// Resolve determines the active session for the given wall-clock time.
// The caller is responsible for converting now into the gym's local time;
// resolution only looks at the time of day. Malformed window strings fall
// back to the corresponding default window rather than failing.
func Resolve(cfg gymconfig.Config, now time.Time) Label {
	if cfg.OperatingMode == gymconfig.Mode24Hours {
		return FullDay
	}

	t := now.Hour()*60 + now.Minute()
	defaults := gymconfig.Default()

	if cfg.OperatingMode == gymconfig.ModeContinuous {
		start := parseClock(cfg.ContinuousSession.Start, defaults.ContinuousSession.Start)
		end := parseClock(cfg.ContinuousSession.End, defaults.ContinuousSession.End)
		if inWindow(t, start, end) {
			return Continuous
		}
		return None
	}

	// "sessions" mode. Morning is checked first, so it wins when windows
	// overlap.
	morningStart := parseClock(cfg.Sessions.Morning.Start, defaults.Sessions.Morning.Start)
	morningEnd := parseClock(cfg.Sessions.Morning.End, defaults.Sessions.Morning.End)
	if inWindow(t, morningStart, morningEnd) {
		return Morning
	}

	eveningStart := parseClock(cfg.Sessions.Evening.Start, defaults.Sessions.Evening.Start)
	eveningEnd := parseClock(cfg.Sessions.Evening.End, defaults.Sessions.Evening.End)
	if inWindow(t, eveningStart, eveningEnd) {
		return Evening
	}

	return None
}

// inWindow reports whether minute-of-day t falls inside the window. Both
// boundaries are inclusive. A window whose start exceeds its end crosses
// midnight: membership is t >= start or t <= end.
func inWindow(t, start, end int) bool {
	if start <= end {
		return t >= start && t <= end
	}
	return t >= start || t <= end
}

// parseClock converts an "HH:MM" string to minutes since midnight, falling
// back to fallback (assumed valid) when raw is missing or malformed.
func parseClock(raw, fallback string) int {
	if v, ok := tryParseClock(raw); ok {
		return v
	}
	v, _ := tryParseClock(fallback)
	return v
}

func tryParseClock(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	total := hours*60 + minutes
	if hours < 0 || minutes < 0 || minutes > 59 || total >= minutesPerDay {
		return 0, false
	}
	return total, true
}

// DayKey returns the gym-local calendar day for t as "YYYY-MM-DD". Attendance
// records are bucketed by this key so an early-morning check-in lands in the
// correct day.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
