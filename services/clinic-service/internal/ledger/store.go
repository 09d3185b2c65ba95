package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

// Store is the persistence the ledger commits through.
type Store interface {
	// Atomic runs fn in a single transaction after acquiring every named lock.
	// Locks are held until the transaction ends. A non-nil error from fn rolls back.
	Atomic(ctx context.Context, locks []string, fn func(Tx) error) error

	Get(ctx context.Context, id string) (model.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID string, date time.Time) ([]model.Appointment, error)
	ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	// CountActive counts appointments referencing party that are not cancelled.
	CountActive(ctx context.Context, party model.Party) (int, error)
}

// Tx is the view of the store inside Atomic. Reads are fresh and see the transaction's own writes.
type Tx interface {
	BookedIntervals(ctx context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error)
	AvailableWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error)
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	Insert(ctx context.Context, appt model.Appointment) error
	Update(ctx context.Context, appt model.Appointment) error
	AppendEvent(ctx context.Context, evt outbox.Event) error

	// LockParty locks the doctor or patient record until the transaction ends, or
	// returns model.ErrNotFound.
	LockParty(ctx context.Context, party model.Party) error
	CountActive(ctx context.Context, party model.Party) (int, error)
	// DeleteParty removes the record and the cancelled appointments referencing it,
	// returning how many appointments went with it. Remaining references fail with
	// model.ErrStillReferenced.
	DeleteParty(ctx context.Context, party model.Party) (int, error)
}

// DayLock names the lock that serializes bookings of a doctor on one calendar day.
func DayLock(doctorID string, date time.Time) string {
	return "day:" + doctorID + ":" + model.DateOf(date).Format(model.DateLayout)
}

// AppointmentLock names the lock that serializes status changes of one appointment.
func AppointmentLock(id string) string {
	return "appointment:" + id
}

// PartyLock names the lock taken while a doctor or patient is deleted.
func PartyLock(p model.Party) string {
	return "party:" + string(p.Kind) + ":" + p.ID
}

// SortLocks orders and deduplicates lock names so concurrent callers acquire them in one order.
func SortLocks(locks []string) []string {
	out := make([]string, 0, len(locks))
	seen := map[string]bool{}
	for _, l := range locks {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
