package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id, doctor_id, patient_id, start_at, duration_minutes, status, notes,
	cancelled_at, cancel_reason, created_at, updated_at`

// Atomic takes a transaction-scoped advisory lock per name, in sorted order, and runs fn.
// The locks serialize the read-check-write of one doctor's day across every replica.
func (r *BookingRepository) Atomic(ctx context.Context, locks []string, fn func(ledger.Tx) error) error {
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		for _, name := range ledger.SortLocks(locks) {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, name); err != nil {
				return err
			}
		}
		return fn(&pgTx{tx: tx, outbox: r.outbox})
	})
	return translate(err)
}

func (r *BookingRepository) BookedIntervals(ctx context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error) {
	return bookedIntervals(ctx, r.pool, doctorID, date)
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	return appt, translate(err)
}

func (r *BookingRepository) ListForDoctor(ctx context.Context, doctorID string, date time.Time) ([]model.Appointment, error) {
	day := model.DateOf(date)
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at, id
	`, doctorID, day, day.AddDate(0, 0, 1))
}

func (r *BookingRepository) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_at, id
	`, patientID)
}

func (r *BookingRepository) CountActive(ctx context.Context, party model.Party) (int, error) {
	return countActive(ctx, r.pool, party)
}

func countActive(ctx context.Context, q queryer, party model.Party) (int, error) {
	_, column := partyTable(party.Kind)
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE `+column+` = $1 AND status <> 'cancelled'
	`, party.ID).Scan(&n)
	return n, err
}

// partyTable returns the directory table of kind and the appointments column pointing at it.
func partyTable(kind model.PartyKind) (table, column string) {
	if kind == model.PartyDoctor {
		return "doctors", "doctor_id"
	}
	return "patients", "patient_id"
}

// UpcomingConfirmed lists confirmed appointments starting within [from, to] with the
// doctor and patient details a reminder needs.
func (r *BookingRepository) UpcomingConfirmed(ctx context.Context, from, to time.Time) ([]model.AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.start_at, a.duration_minutes, a.status, a.notes,
			a.cancelled_at, a.cancel_reason, a.created_at, a.updated_at,
			d.name, d.specialty, d.email, p.name, p.email
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'confirmed' AND a.start_at BETWEEN $1 AND $2
		ORDER BY a.start_at, a.id
	`, model.Naive(from), model.Naive(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentDetail
	for rows.Next() {
		var d model.AppointmentDetail
		var status string
		a := &d.Appointment
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Start, &a.DurationMinutes, &status, &a.Notes,
			&a.CancelledAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt,
			&d.Doctor.Name, &d.Doctor.Specialty, &d.Doctor.Email, &d.Patient.Name, &d.Patient.Email); err != nil {
			return nil, err
		}
		if a.Status, err = model.ParseStatus(status); err != nil {
			return nil, err
		}
		d.Doctor.ID = a.DoctorID
		d.Patient.ID = a.PatientID
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepository) list(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := []model.Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func bookedIntervals(ctx context.Context, q queryer, doctorID string, date time.Time) ([]model.BookedInterval, error) {
	day := model.DateOf(date)
	rows, err := q.Query(ctx, `
		SELECT id, doctor_id, start_at, duration_minutes, status
		FROM appointments
		WHERE doctor_id = $1
			AND status <> 'cancelled'
			AND start_at >= $2
			AND start_at < $3
		ORDER BY start_at
	`, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookedInterval
	for rows.Next() {
		var b model.BookedInterval
		var status string
		if err := rows.Scan(&b.AppointmentID, &b.DoctorID, &b.Start, &b.DurationMinutes, &status); err != nil {
			return nil, err
		}
		if b.Status, err = model.ParseStatus(status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Start, &a.DurationMinutes, &status, &a.Notes,
		&a.CancelledAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Appointment{}, err
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = parsed
	return a, nil
}

// pgTx is the ledger's view of an open transaction.
type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) BookedIntervals(ctx context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error) {
	return bookedIntervals(ctx, t.tx, doctorID, date)
}

func (t *pgTx) AvailableWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	return listWindows(ctx, t.tx, doctorID, date, true)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	appt, err := scanAppointment(row)
	return appt, translate(err)
}

func (t *pgTx) Insert(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, start_at, duration_minutes, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.DoctorID, a.PatientID, a.Start, a.DurationMinutes, a.Status.String(), a.Notes, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (t *pgTx) Update(ctx context.Context, a model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET start_at = $2,
			duration_minutes = $3,
			status = $4,
			cancelled_at = $5,
			cancel_reason = $6,
			updated_at = $7
		WHERE id = $1
	`, a.ID, a.Start, a.DurationMinutes, a.Status.String(), a.CancelledAt, a.CancelReason, a.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) LockParty(ctx context.Context, p model.Party) error {
	table, _ := partyTable(p.Kind)
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, p.ID).Scan(&id)
	return translate(err)
}

func (t *pgTx) CountActive(ctx context.Context, p model.Party) (int, error) {
	return countActive(ctx, t.tx, p)
}

// DeleteParty clears the cancelled history first; the RESTRICT foreign keys then refuse
// the delete if anything else still points at the record.
func (t *pgTx) DeleteParty(ctx context.Context, p model.Party) (int, error) {
	table, column := partyTable(p.Kind)
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE `+column+` = $1 AND status = 'cancelled'`, p.ID)
	if err != nil {
		return 0, err
	}
	removed := int(tag.RowsAffected())

	tag, err = t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, p.ID)
	if err != nil {
		if IsForeignKey(err) {
			return 0, errors.Join(model.ErrStillReferenced, err)
		}
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	return removed, nil
}
