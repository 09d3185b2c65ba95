package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const windowColumns = `id, doctor_id, work_date, start_minute, end_minute, available`

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ScheduleRepository) InsertWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, doctor_id, work_date, start_minute, end_minute, available)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.DoctorID, w.Date, int(w.Start), int(w.End), w.Available)
	if err != nil {
		return model.AvailabilityWindow{}, translate(err)
	}
	return w, nil
}

func (r *ScheduleRepository) UpdateWindow(ctx context.Context, w model.AvailabilityWindow) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_windows
		SET work_date = $2,
			start_minute = $3,
			end_minute = $4,
			available = $5,
			updated_at = now()
		WHERE id = $1
	`, w.ID, w.Date, int(w.Start), int(w.End), w.Available)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) DeleteWindow(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1`, id)
	w, err := scanWindow(row)
	return w, translate(err)
}

// ListWindows returns every window of the day, including blocked ones.
func (r *ScheduleRepository) ListWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	return listWindows(ctx, r.pool, doctorID, date, false)
}

// AvailableWindows returns the windows the resolver scans, ordered by start.
func (r *ScheduleRepository) AvailableWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	return listWindows(ctx, r.pool, doctorID, date, true)
}

func listWindows(ctx context.Context, q queryer, doctorID string, date time.Time, onlyAvailable bool) ([]model.AvailabilityWindow, error) {
	rows, err := q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1
			AND work_date = $2
			AND (available OR NOT $3)
		ORDER BY start_minute, end_minute, id
	`, doctorID, model.DateOf(date), onlyAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	var start, end int
	if err := row.Scan(&w.ID, &w.DoctorID, &w.Date, &start, &end, &w.Available); err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.Date = model.DateOf(w.Date)
	w.Start = model.Clock(start)
	w.End = model.Clock(end)
	return w, nil
}
