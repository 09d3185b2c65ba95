package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidWindow = errors.New("invalid availability window")

// AvailabilityWindow is an interval of a single day during which a doctor accepts bookings.
// Available=false keeps the record but blocks it from slot computation.
type AvailabilityWindow struct {
	ID        string
	DoctorID  string
	Date      time.Time
	Start     Clock
	End       Clock
	Available bool
}

// NewAvailabilityWindow is the only constructor used by the schedule collaborator;
// it rejects empty and inverted windows.
func NewAvailabilityWindow(doctorID string, date time.Time, start, end Clock, available bool) (AvailabilityWindow, error) {
	w := AvailabilityWindow{
		DoctorID:  strings.TrimSpace(doctorID),
		Date:      DateOf(date),
		Start:     start,
		End:       end,
		Available: available,
	}
	if err := w.Validate(); err != nil {
		return AvailabilityWindow{}, err
	}
	return w, nil
}

func (w AvailabilityWindow) Validate() error {
	if w.DoctorID == "" {
		return fmt.Errorf("%w: doctor id is required", ErrInvalidWindow)
	}
	if w.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidWindow)
	}
	if w.Start < 0 || w.End > MinutesPerDay {
		return fmt.Errorf("%w: times must fall within the day", ErrInvalidWindow)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

func (w AvailabilityWindow) StartAt() time.Time { return w.Start.On(w.Date) }
func (w AvailabilityWindow) EndAt() time.Time   { return w.End.On(w.Date) }

func (w AvailabilityWindow) Span() time.Duration {
	return time.Duration(w.End-w.Start) * time.Minute
}

// Contains reports whether [start, end) lies entirely inside the window.
func (w AvailabilityWindow) Contains(start, end time.Time) bool {
	return !start.Before(w.StartAt()) && !end.After(w.EndAt())
}
