package aggregation

import (
	"fmt"
	"time"
)

// Window restricts samples to [From, To], both inclusive. A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return fmt.Errorf("window end %s is before start %s", w.To.Format(time.RFC3339), w.From.Format(time.RFC3339))
	}
	return nil
}

// ParseRange parses a relative range such as "6h" or "30d".
// Supports Go duration syntax plus "Xd" for days.
func ParseRange(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("range must not be empty")
	}

	// "d" is not understood by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid range %q: %w", s, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("range must be positive, got %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("range must be positive, got %q", s)
	}
	return d, nil
}

// EndOfDay returns the last millisecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}
