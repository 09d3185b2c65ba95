package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// DirectoryRepository keeps the doctor and patient records appointments refer to.
type DirectoryRepository struct {
	pool *db.Pool
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

func (r *DirectoryRepository) UpsertDoctor(ctx context.Context, d model.Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, specialty, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			specialty = EXCLUDED.specialty,
			email = EXCLUDED.email,
			updated_at = now()
	`, d.ID, d.Name, d.Specialty, d.Email)
	return err
}

func (r *DirectoryRepository) UpsertPatient(ctx context.Context, p model.Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			updated_at = now()
	`, p.ID, p.Name, p.Email)
	return err
}

func (r *DirectoryRepository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var d model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email FROM doctors WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Specialty, &d.Email)
	return d, translate(err)
}

func (r *DirectoryRepository) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email FROM patients WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email)
	return p, translate(err)
}
