package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

func TestTranslate(t *testing.T) {
	overlap := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	fk := &pgconn.PgError{Code: "23503"}
	other := errors.New("connection reset")

	if err := translate(overlap); !errors.Is(err, model.ErrOverlap) || !IsConflict(err) {
		t.Fatalf("expected overlap mapping, got %v", err)
	}
	if err := translate(fk); !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected unknown entity mapping, got %v", err)
	}
	if err := translate(pgx.ErrNoRows); !errors.Is(err, model.ErrNotFound) || !IsNotFound(err) {
		t.Fatalf("expected not found mapping, got %v", err)
	}
	if err := translate(other); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if translate(nil) != nil {
		t.Fatal("expected nil")
	}
}

func TestSchemaDeclaresOverlapGuard(t *testing.T) {
	s := Schema()
	for _, want := range []string{
		"btree_gist",
		"EXCLUDE USING gist (doctor_id WITH =, tsrange(start_at, end_at, '[)') WITH &&)",
		"WHERE (status <> 'cancelled')",
		"start_minute < end_minute",
		"outbox_events",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
