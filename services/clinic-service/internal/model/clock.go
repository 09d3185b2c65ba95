package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MinutesPerDay bounds every window and appointment length.
const MinutesPerDay = 24 * 60

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a naive wall-clock time of day, in minutes after midnight.
// 24:00 is accepted as the end of the day.
type Clock int

func NewClock(hour, minute int) (Clock, error) {
	c := Clock(hour*60 + minute)
	if hour < 0 || minute < 0 || minute > 59 || c > MinutesPerDay {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}
	return c, nil
}

func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(h, m)
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On anchors the clock to the given calendar day.
func (c Clock) On(date time.Time) time.Time {
	return DateOf(date).Add(time.Duration(c) * time.Minute)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DateOf truncates t to midnight of its calendar day. Times carry no zone
// semantics: the wall clock is kept and the location is normalized to UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Naive drops the location of t while keeping its wall clock reading.
func Naive(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
