package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	// RequireWindow rejects bookings that do not fit inside one available window.
	RequireWindow bool
	Now           func() time.Time
	NewID         func() string
}

// Ledger is the only writer of appointments. Every commit re-reads the doctor's day under
// a lock, so two bookings can never both pass the overlap check.
type Ledger struct {
	store         Store
	logger        *slog.Logger
	tracer        trace.Tracer
	requireWindow bool
	now           func() time.Time
	newID         func() string
}

func New(store Store, logger *slog.Logger, cfg Config) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Ledger{
		store:         store,
		logger:        logger,
		tracer:        otelx.Tracer("clinic-service/ledger"),
		requireWindow: cfg.RequireWindow,
		now:           cfg.Now,
		newID:         cfg.NewID,
	}
}

// BookingRequest is a booking intent. Status must be given explicitly: pending for the
// patient flow, confirmed for administrative bookings.
type BookingRequest struct {
	DoctorID        string
	PatientID       string
	Start           time.Time
	DurationMinutes int
	Notes           string
	Status          model.Status
	Actor           model.Actor
}

func (r *BookingRequest) normalize() error {
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.DoctorID == "" || r.PatientID == "" {
		return fmt.Errorf("%w: doctor and patient are required", ErrInvalidRequest)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidRequest)
	}
	if r.DurationMinutes <= 0 || r.DurationMinutes > model.MinutesPerDay {
		return fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidRequest, model.MinutesPerDay)
	}
	r.Start = model.Naive(r.Start)
	if !fitsDay(r.Start, r.DurationMinutes) {
		return fmt.Errorf("%w: appointment must end on the day it starts", ErrInvalidRequest)
	}
	switch r.Status {
	case model.StatusPending:
	case model.StatusConfirmed:
		if r.Actor.Role != model.RoleAdmin && r.Actor.Role != model.RoleSystem {
			return fmt.Errorf("%w: only administrative bookings start confirmed", ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: initial status must be pending or confirmed", ErrInvalidRequest)
	}
	if r.Actor.Role == model.RolePatient && r.Actor.ID != r.PatientID {
		return fmt.Errorf("%w: patients book for themselves", ErrForbidden)
	}
	return nil
}

func fitsDay(start time.Time, minutes int) bool {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return !end.After(model.DateOf(start).Add(24 * time.Hour))
}

// Commit books an appointment or rejects it with ErrSlotConflict, ErrOutsideAvailability,
// ErrUnknownEntity or a validation error. It never retries.
func (l *Ledger) Commit(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.Commit")
	defer span.End()

	if err := req.normalize(); err != nil {
		return model.Appointment{}, endSpan(span, err)
	}
	span.SetAttributes(
		attribute.String("doctor.id", req.DoctorID),
		attribute.String("appointment.start", req.Start.Format(time.RFC3339)),
		attribute.Int("appointment.duration_minutes", req.DurationMinutes),
	)

	now := l.now()
	appt := model.Appointment{
		ID:              l.newID(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := l.store.Atomic(ctx, []string{DayLock(appt.DoctorID, appt.Start)}, func(tx Tx) error {
		if err := l.checkCalendar(ctx, tx, appt); err != nil {
			return err
		}
		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}
		return appendEvent(ctx, tx, outbox.TypeBooked, appt, req.Actor)
	})
	if err != nil {
		err = mapStoreErr(err)
		l.logger.Info("booking rejected", "doctor_id", appt.DoctorID, "start", appt.Start, "err", err)
		return model.Appointment{}, endSpan(span, err)
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	l.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "status", appt.Status.String())
	return appt, nil
}

// checkCalendar runs under the day lock and re-reads bookings so the check is never stale.
func (l *Ledger) checkCalendar(ctx context.Context, tx Tx, appt model.Appointment) error {
	booked, err := tx.BookedIntervals(ctx, appt.DoctorID, appt.Date())
	if err != nil {
		return err
	}
	candidate := availability.Interval{Start: appt.Start, End: appt.End()}
	for _, b := range booked {
		if b.AppointmentID == appt.ID || !b.Status.BlocksCalendar() {
			continue
		}
		if availability.Overlaps(candidate, availability.Interval{Start: b.Start, End: b.End()}) {
			return ErrSlotConflict
		}
	}

	if !l.requireWindow {
		return nil
	}
	windows, err := tx.AvailableWindows(ctx, appt.DoctorID, appt.Date())
	if err != nil {
		return err
	}
	for _, w := range windows {
		if w.Available && w.Contains(appt.Start, appt.End()) {
			return nil
		}
	}
	return ErrOutsideAvailability
}

// Confirm moves a pending appointment to confirmed once payment has succeeded.
// Confirming twice returns ErrInvalidTransition; callers decide whether that is benign.
func (l *Ledger) Confirm(ctx context.Context, id string, by model.Actor) (model.Appointment, error) {
	return l.transition(ctx, "ledger.Confirm", id, model.StatusConfirmed, by, "")
}

// Complete marks a confirmed appointment as held. A doctor may only complete their own.
func (l *Ledger) Complete(ctx context.Context, id string, by model.Actor) (model.Appointment, error) {
	return l.transition(ctx, "ledger.Complete", id, model.StatusCompleted, by, "")
}

// Cancel frees the appointment's time. Patients may cancel only their own pending
// appointments that have not started; admins may cancel any non-terminal appointment.
func (l *Ledger) Cancel(ctx context.Context, id string, by model.Actor, reason string) (model.Appointment, error) {
	return l.transition(ctx, "ledger.Cancel", id, model.StatusCancelled, by, strings.TrimSpace(reason))
}

func (l *Ledger) transition(ctx context.Context, op, id string, to model.Status, by model.Actor, reason string) (model.Appointment, error) {
	ctx, span := l.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("actor.role", string(by.Role)),
	))
	defer span.End()

	var out model.Appointment
	err := l.store.Atomic(ctx, []string{AppointmentLock(id)}, func(tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := model.Transition(appt.Status, to, by); err != nil {
			return err
		}
		if err := l.checkOwnership(appt, to, by); err != nil {
			return err
		}

		now := l.now()
		appt.Status = to
		appt.UpdatedAt = now
		if to == model.StatusCancelled {
			appt.CancelledAt = &now
			appt.CancelReason = reason
		}
		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, eventTypeFor(to), appt, by); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, endSpan(span, mapStoreErr(err))
	}
	l.logger.Info("appointment status changed", "appointment_id", id, "status", to.String(), "actor_role", by.Role)
	return out, nil
}

func (l *Ledger) checkOwnership(appt model.Appointment, to model.Status, by model.Actor) error {
	switch by.Role {
	case model.RolePatient:
		if appt.PatientID != by.ID {
			return ErrForbidden
		}
		if to == model.StatusCancelled && !model.Naive(l.now()).Before(appt.Start) {
			return ErrPastAppointment
		}
	case model.RoleDoctor:
		if appt.DoctorID != by.ID {
			return ErrForbidden
		}
	}
	return nil
}

func eventTypeFor(s model.Status) string {
	switch s {
	case model.StatusConfirmed:
		return outbox.TypeConfirmed
	case model.StatusCompleted:
		return outbox.TypeCompleted
	case model.StatusCancelled:
		return outbox.TypeCancelled
	}
	return outbox.TypeBooked
}

// Reschedule moves an appointment to a new start and, when newDurationMinutes > 0, a new
// length, re-validating against the destination day. Only admins reschedule.
func (l *Ledger) Reschedule(ctx context.Context, id string, newStart time.Time, newDurationMinutes int, by model.Actor) (model.Appointment, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.Reschedule", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer span.End()

	if !by.IsAdmin() {
		return model.Appointment{}, endSpan(span, ErrForbidden)
	}
	if newStart.IsZero() || newDurationMinutes < 0 || newDurationMinutes > model.MinutesPerDay {
		return model.Appointment{}, endSpan(span, fmt.Errorf("%w: invalid new start or duration", ErrInvalidRequest))
	}
	newStart = model.Naive(newStart)

	// The doctor of an appointment never changes, so it can be read before locking.
	// Leaving a day only frees time; only the destination day is locked.
	current, err := l.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, endSpan(span, mapStoreErr(err))
	}
	locks := SortLocks([]string{AppointmentLock(id), DayLock(current.DoctorID, newStart)})

	var out model.Appointment
	err = l.store.Atomic(ctx, locks, func(tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status.IsTerminal() {
			return fmt.Errorf("%w: %s appointment cannot be rescheduled", ErrInvalidTransition, appt.Status)
		}
		previous := appt.Start
		appt.Start = newStart
		if newDurationMinutes > 0 {
			appt.DurationMinutes = newDurationMinutes
		}
		if !fitsDay(appt.Start, appt.DurationMinutes) {
			return fmt.Errorf("%w: appointment must end on the day it starts", ErrInvalidRequest)
		}
		if err := l.checkCalendar(ctx, tx, appt); err != nil {
			return err
		}
		appt.UpdatedAt = l.now()
		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		evt, err := outbox.RescheduledEvent(appt, previous, by)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, endSpan(span, mapStoreErr(err))
	}
	l.logger.Info("appointment rescheduled", "appointment_id", id, "start", out.Start, "duration_minutes", out.DurationMinutes)
	return out, nil
}

// EnsureDeletable returns ErrActiveAppointments while any non-cancelled appointment
// references the doctor or patient. It is advisory; DeleteParty re-checks under lock.
func (l *Ledger) EnsureDeletable(ctx context.Context, party model.Party) error {
	if !party.Valid() {
		return fmt.Errorf("%w: unknown party", ErrInvalidRequest)
	}
	n, err := l.store.CountActive(ctx, party)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s %s has %d", ErrActiveAppointments, party.Kind, party.ID, n)
	}
	return nil
}

// DeleteParty removes a doctor or patient together with their cancelled appointments.
// The party row is locked before counting, so a booking racing the delete either lands
// first and blocks it, or fails afterwards with ErrUnknownEntity. Only admins delete.
func (l *Ledger) DeleteParty(ctx context.Context, party model.Party, by model.Actor) error {
	ctx, span := l.tracer.Start(ctx, "ledger.DeleteParty", trace.WithAttributes(
		attribute.String("party.kind", string(party.Kind)),
		attribute.String("party.id", party.ID),
	))
	defer span.End()

	if !by.IsAdmin() {
		return endSpan(span, ErrForbidden)
	}
	if !party.Valid() {
		return endSpan(span, fmt.Errorf("%w: unknown party", ErrInvalidRequest))
	}

	var removed int
	err := l.store.Atomic(ctx, []string{PartyLock(party)}, func(tx Tx) error {
		if err := tx.LockParty(ctx, party); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("%s %s: %w", party.Kind, party.ID, model.ErrNotFound)
			}
			return err
		}
		n, err := tx.CountActive(ctx, party)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s %s has %d", ErrActiveAppointments, party.Kind, party.ID, n)
		}
		if removed, err = tx.DeleteParty(ctx, party); err != nil {
			return err
		}
		evt, err := outbox.PartyDeletedEvent(party, removed, by)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if errors.Is(err, model.ErrStillReferenced) {
		err = fmt.Errorf("%w: %s %s", ErrActiveAppointments, party.Kind, party.ID)
	}
	if err != nil {
		return endSpan(span, err)
	}
	l.logger.Info("party deleted", "kind", party.Kind, "id", party.ID, "cancelled_removed", removed)
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := l.store.Get(ctx, id)
	return appt, mapStoreErr(err)
}

func (l *Ledger) ListForDoctor(ctx context.Context, doctorID string, date time.Time) ([]model.Appointment, error) {
	return l.store.ListForDoctor(ctx, doctorID, model.DateOf(date))
}

func (l *Ledger) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return l.store.ListForPatient(ctx, patientID)
}

func appendEvent(ctx context.Context, tx Tx, eventType string, appt model.Appointment, by model.Actor) error {
	evt, err := outbox.AppointmentEvent(eventType, appt, by)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, evt)
}

func endSpan(span trace.Span, err error) error {
	if err != nil && !isCallerError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// isCallerError reports rejections that are expected outcomes rather than failures.
func isCallerError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest, ErrSlotConflict, ErrOutsideAvailability, ErrUnknownEntity,
		ErrNotFound, ErrPastAppointment, ErrActiveAppointments, ErrInvalidTransition, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
