package model

import (
	"errors"
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func TestNewAvailabilityWindowRejectsEmptyAndInverted(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if _, err := NewAvailabilityWindow("doc-1", day, mustClock(t, "09:00"), mustClock(t, "09:00"), true); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for empty window, got %v", err)
	}
	if _, err := NewAvailabilityWindow("doc-1", day, mustClock(t, "12:00"), mustClock(t, "09:00"), true); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for inverted window, got %v", err)
	}
	if _, err := NewAvailabilityWindow(" ", day, mustClock(t, "09:00"), mustClock(t, "12:00"), true); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for missing doctor, got %v", err)
	}

	w, err := NewAvailabilityWindow("doc-1", day.Add(15*time.Hour), mustClock(t, "09:00"), mustClock(t, "12:00"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Date.Equal(day) {
		t.Fatalf("expected date truncated to day, got %s", w.Date)
	}
	if w.Span() != 3*time.Hour {
		t.Fatalf("unexpected span %s", w.Span())
	}
	if !w.StartAt().Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("unexpected start %s", w.StartAt())
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]bool{
		"00:00": true,
		"09:30": true,
		"24:00": true,
		"24:01": false,
		"9:30":  false,
		"09:60": false,
		"ab:cd": false,
		"+1:30": false,
		"-0:30": false,
		"09:+5": false,
		" 9:30": false,
	}
	for in, ok := range cases {
		_, err := ParseClock(in)
		if ok && err != nil {
			t.Fatalf("ParseClock(%q) unexpected error %v", in, err)
		}
		if !ok && !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("ParseClock(%q) expected ErrInvalidClock, got %v", in, err)
		}
	}
	if got := mustClock(t, "07:05").String(); got != "07:05" {
		t.Fatalf("expected zero padded clock, got %q", got)
	}
}

func TestSlotString(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := Slot{Start: start, End: start.Add(90 * time.Minute)}
	if got := s.String(); got != "09:00 - 10:30" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestNaiveKeepsWallClock(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	in := time.Date(2026, 3, 2, 10, 15, 0, 0, loc)
	got := Naive(in)
	if got.Hour() != 10 || got.Minute() != 15 || got.Location() != time.UTC {
		t.Fatalf("unexpected naive time %s", got)
	}
}
