// Package datewindow computes calendar-day windows for order listings.
package datewindow

import (
	"fmt"
	"time"

	"github.com/jardin-pos/api/internal/apperr"
)

// DayLayout is the format of the ?date= query parameter.
const DayLayout = "2006-01-02"

// Window is an inclusive [Start, End] range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Day returns the window covering ref's calendar day in loc, from
// 00:00:00.000 to 23:59:59.999.
func Day(ref time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := ref.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
	return Window{Start: start, End: end}
}

// Contains reports whether t falls in the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Label is the window's day in DayLayout.
func (w Window) Label() string {
	return w.Start.Format(DayLayout)
}

// ParseDay parses a DayLayout date in loc. An empty string means the day of now.
func ParseDay(s string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	if s == "" {
		return Day(now, loc), nil
	}
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", apperr.ErrValidation, s)
	}
	return Day(t, loc), nil
}

// Filter keeps the items whose timestamp falls inside w. A zero timestamp
// counts as now, so records not yet stamped by the store show up in today's
// window.
func Filter[T any](items []T, w Window, now time.Time, at func(T) time.Time) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ts := at(it)
		if ts.IsZero() {
			ts = now
		}
		if w.Contains(ts) {
			out = append(out, it)
		}
	}
	return out
}
