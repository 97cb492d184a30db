package datewindow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/datewindow"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestDayBounds(t *testing.T) {
	loc := mustLoc(t, "America/Mexico_City")
	ref := time.Date(2024, 3, 15, 14, 30, 0, 0, loc)

	w := datewindow.Day(ref, loc)

	wantStart := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	wantEnd := time.Date(2024, 3, 15, 23, 59, 59, 999_000_000, loc)
	if !w.Start.Equal(wantStart) {
		t.Errorf("start: got %v, want %v", w.Start, wantStart)
	}
	if !w.End.Equal(wantEnd) {
		t.Errorf("end: got %v, want %v", w.End, wantEnd)
	}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start", wantStart, true},
		{"end", wantEnd, true},
		{"just before end", time.Date(2024, 3, 15, 23, 59, 59, 998_000_000, loc), true},
		{"next midnight", time.Date(2024, 3, 16, 0, 0, 0, 0, loc), false},
		{"previous day", time.Date(2024, 3, 14, 23, 59, 59, 999_000_000, loc), false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDayUsesDisplayZone(t *testing.T) {
	loc := mustLoc(t, "America/Mexico_City")
	// 03:00 UTC on the 16th is still the 15th in Mexico City.
	ref := time.Date(2024, 3, 16, 3, 0, 0, 0, time.UTC)

	w := datewindow.Day(ref, loc)
	if got := w.Label(); got != "2024-03-15" {
		t.Errorf("label: got %s, want 2024-03-15", got)
	}
}

func TestParseDay(t *testing.T) {
	loc := mustLoc(t, "America/Mexico_City")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, loc)

	w, err := datewindow.ParseDay("", now, loc)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if w.Label() != "2024-06-01" {
		t.Errorf("empty: got %s, want 2024-06-01", w.Label())
	}

	w, err = datewindow.ParseDay("2024-03-15", now, loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Label() != "2024-03-15" {
		t.Errorf("label: got %s, want 2024-03-15", w.Label())
	}

	_, err = datewindow.ParseDay("15/03/2024", now, loc)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad date: got %v, want ErrValidation", err)
	}
}

func TestFilter(t *testing.T) {
	loc := time.UTC
	w := datewindow.Day(time.Date(2024, 3, 15, 0, 0, 0, 0, loc), loc)

	type rec struct {
		id string
		at time.Time
	}
	items := []rec{
		{"in", time.Date(2024, 3, 15, 9, 0, 0, 0, loc)},
		{"out", time.Date(2024, 3, 16, 0, 0, 0, 0, loc)},
		{"unstamped", time.Time{}},
	}
	at := func(r rec) time.Time { return r.at }

	got := datewindow.Filter(items, w, time.Date(2024, 3, 15, 20, 0, 0, 0, loc), at)
	if len(got) != 2 || got[0].id != "in" || got[1].id != "unstamped" {
		t.Errorf("filter same day: got %+v", got)
	}

	got = datewindow.Filter(items, w, time.Date(2024, 3, 17, 8, 0, 0, 0, loc), at)
	if len(got) != 1 || got[0].id != "in" {
		t.Errorf("filter other day: got %+v", got)
	}
}
