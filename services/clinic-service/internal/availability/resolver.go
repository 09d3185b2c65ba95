package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

var ErrInvalidDuration = errors.New("duration must be a positive number of minutes")

// WindowReader returns the available windows of a doctor for one day, in storage order.
type WindowReader interface {
	AvailableWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error)
}

// BookingReader returns the calendar-blocking bookings of a doctor for one day.
type BookingReader interface {
	BookedIntervals(ctx context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error)
}

type Config struct {
	Stride        time.Duration
	HidePastSlots bool
	Now           func() time.Time
}

// Resolver computes bookable slots. Reads are not locked: a stale answer only means the
// ledger may later reject the chosen slot.
type Resolver struct {
	windows  WindowReader
	bookings BookingReader
	stride   time.Duration
	hidePast bool
	now      func() time.Time
}

func NewResolver(windows WindowReader, bookings BookingReader, cfg Config) *Resolver {
	if cfg.Stride <= 0 {
		cfg.Stride = DefaultStride
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		windows:  windows,
		bookings: bookings,
		stride:   cfg.Stride,
		hidePast: cfg.HidePastSlots,
		now:      cfg.Now,
	}
}

func (r *Resolver) Stride() time.Duration { return r.stride }

// ComputeSlots lists the slots of durationMinutes a doctor can still take on date.
// Each window is scanned on its own in fetch order; overlapping windows are not merged,
// so the same slot may appear more than once. No windows yields an empty result.
func (r *Resolver) ComputeSlots(ctx context.Context, doctorID string, date time.Time, durationMinutes int) ([]model.Slot, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if durationMinutes > model.MinutesPerDay {
		// Longer than any window can be.
		return []model.Slot{}, nil
	}
	day := model.DateOf(date)

	windows, err := r.windows.AvailableWindows(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if len(windows) == 0 {
		return []model.Slot{}, nil
	}

	booked, err := r.bookings.BookedIntervals(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	busy := BusyIntervals(booked)

	var now time.Time
	if r.hidePast {
		now = model.Naive(r.now())
	}

	duration := time.Duration(durationMinutes) * time.Minute
	slots := []model.Slot{}
	for _, w := range windows {
		if !w.Available {
			continue
		}
		for _, start := range AvailableSlots(w.StartAt(), w.EndAt(), duration, r.stride, busy, now) {
			slots = append(slots, model.Slot{Start: start, End: start.Add(duration)})
		}
	}
	return slots, nil
}

// BusyIntervals converts bookings to occupied ranges, skipping cancelled ones.
func BusyIntervals(booked []model.BookedInterval) []Interval {
	busy := make([]Interval, 0, len(booked))
	for _, b := range booked {
		if !b.Status.BlocksCalendar() {
			continue
		}
		busy = append(busy, Interval{Start: b.Start, End: b.End()})
	}
	return busy
}
