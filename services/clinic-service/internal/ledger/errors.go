package ledger

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

var (
	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrSlotConflict means the requested range overlaps a committed appointment.
	// Callers should refresh the slot list and let the user pick again.
	ErrSlotConflict        = errors.New("requested time overlaps an existing appointment")
	ErrOutsideAvailability = errors.New("requested time is outside the doctor's availability")
	ErrUnknownEntity       = model.ErrUnknownEntity
	ErrNotFound            = errors.New("appointment not found")
	ErrPastAppointment     = errors.New("appointment has already started")
	ErrActiveAppointments  = errors.New("party still has active appointments")

	ErrInvalidTransition = model.ErrInvalidTransition
	ErrForbidden         = model.ErrForbidden
)

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrOverlap):
		return fmt.Errorf("%w: %w", ErrSlotConflict, err)
	case errors.Is(err, model.ErrNotFound):
		return ErrNotFound
	}
	return err
}
