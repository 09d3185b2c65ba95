package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

var (
	ErrNotFound      = model.ErrNotFound
	ErrConflict      = model.ErrOverlap
	ErrUnknownEntity = model.ErrUnknownEntity
)

const (
	codeExclusionViolation  = "23P01"
	codeForeignKeyViolation = "23503"
)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeExclusionViolation
}

func IsForeignKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}

// translate maps driver errors onto the package sentinels, keeping the original in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case IsConflict(err):
		return errors.Join(ErrConflict, err)
	case IsForeignKey(err):
		return errors.Join(ErrUnknownEntity, err)
	}
	return err
}
