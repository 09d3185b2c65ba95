package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	if err := s.UpsertDoctor(ctx, model.Doctor{ID: "doc-1", Name: "Dr. Rahman", Specialty: "Neurology"}); err != nil {
		t.Fatalf("UpsertDoctor: %v", err)
	}
	if err := s.UpsertPatient(ctx, model.Patient{ID: "pat-1", Name: "Nadia", Email: "nadia@example.com"}); err != nil {
		t.Fatalf("UpsertPatient: %v", err)
	}
	return s
}

func appt(id string, start time.Time, minutes int, status model.Status) model.Appointment {
	return model.Appointment{ID: id, DoctorID: "doc-1", PatientID: "pat-1", Start: start, DurationMinutes: minutes, Status: status}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, []string{"day:doc-1"}, func(tx ledger.Tx) error {
		if err := tx.Insert(ctx, appt("a1", day.Add(9*time.Hour), 30, model.StatusPending)); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, outbox.Event{EventType: outbox.TypeBooked, AggregateID: "a1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Get(ctx, "a1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}
	if len(s.Events()) != 0 {
		t.Fatal("expected no events after rollback")
	}
}

func TestTxSeesOwnWrites(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	err := s.Atomic(ctx, nil, func(tx ledger.Tx) error {
		if err := tx.Insert(ctx, appt("a1", day.Add(9*time.Hour), 30, model.StatusPending)); err != nil {
			return err
		}
		booked, err := tx.BookedIntervals(ctx, "doc-1", day)
		if err != nil {
			return err
		}
		if len(booked) != 1 {
			t.Errorf("expected staged booking visible, got %d", len(booked))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestApplyRefusesOverlapWithoutLock(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	insert := func(a model.Appointment) error {
		return s.Atomic(ctx, nil, func(tx ledger.Tx) error { return tx.Insert(ctx, a) })
	}
	if err := insert(appt("a1", day.Add(9*time.Hour), 60, model.StatusPending)); err != nil {
		t.Fatalf("insert a1: %v", err)
	}
	if err := insert(appt("a2", day.Add(9*time.Hour+30*time.Minute), 30, model.StatusPending)); !errors.Is(err, model.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if err := insert(appt("a3", day.Add(9*time.Hour+30*time.Minute), 30, model.StatusCancelled)); err != nil {
		t.Fatalf("cancelled rows never conflict: %v", err)
	}
}

func TestInsertUnknownEntity(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := appt("a1", day.Add(9*time.Hour), 30, model.StatusPending)
	a.PatientID = "nobody"
	err := s.Atomic(ctx, nil, func(tx ledger.Tx) error { return tx.Insert(ctx, a) })
	if !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestLocksRespectContext(t *testing.T) {
	s := New()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), []string{"k"}, func(ledger.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Atomic(ctx, []string{"k"}, func(ledger.Tx) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(done)

	if err := s.Atomic(context.Background(), []string{"k", "k"}, func(ledger.Tx) error { return nil }); err != nil {
		t.Fatalf("expected lock to be free again: %v", err)
	}
}

func TestDrainMarksPublished(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		id := id
		err := s.Atomic(ctx, nil, func(tx ledger.Tx) error {
			return tx.AppendEvent(ctx, outbox.Event{EventType: outbox.TypeBooked, AggregateID: id})
		})
		if err != nil {
			t.Fatalf("Atomic: %v", err)
		}
	}

	if _, err := s.Drain(ctx, 2, func([]outbox.Record) error { return errors.New("down") }); err == nil {
		t.Fatal("expected publish error")
	}
	var seen []string
	n, err := s.Drain(ctx, 2, func(batch []outbox.Record) error {
		for _, r := range batch {
			seen = append(seen, r.AggregateID)
		}
		return nil
	})
	if err != nil || n != 2 || seen[0] != "a1" || seen[1] != "a2" {
		t.Fatalf("unexpected first drain n=%d seen=%v err=%v", n, seen, err)
	}
	n, err = s.Drain(ctx, 10, func([]outbox.Record) error { return nil })
	if err != nil || n != 1 {
		t.Fatalf("expected one remaining event, got %d %v", n, err)
	}
}

func TestUpcomingConfirmed(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	for _, a := range []model.Appointment{
		appt("early", day.Add(8*time.Hour), 30, model.StatusConfirmed),
		appt("soon", day.Add(10*time.Hour), 30, model.StatusConfirmed),
		appt("pending", day.Add(11*time.Hour), 30, model.StatusPending),
		appt("late", day.Add(16*time.Hour), 30, model.StatusConfirmed),
	} {
		a := a
		if err := s.Atomic(ctx, nil, func(tx ledger.Tx) error { return tx.Insert(ctx, a) }); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}
	got, err := s.UpcomingConfirmed(ctx, day.Add(9*time.Hour), day.Add(14*time.Hour))
	if err != nil {
		t.Fatalf("UpcomingConfirmed: %v", err)
	}
	if len(got) != 1 || got[0].Appointment.ID != "soon" || got[0].Doctor.Specialty != "Neurology" {
		t.Fatalf("unexpected upcoming %+v", got)
	}
}

func TestDeletePartyRefusedWhileReferenced(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	doc := model.Party{Kind: model.PartyDoctor, ID: "doc-1"}
	for _, a := range []model.Appointment{
		appt("gone", day.Add(8*time.Hour), 30, model.StatusCancelled),
		appt("kept", day.Add(9*time.Hour), 30, model.StatusCompleted),
	} {
		a := a
		if err := s.Atomic(ctx, nil, func(tx ledger.Tx) error { return tx.Insert(ctx, a) }); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}

	// Skipping the count still cannot orphan the completed appointment.
	err := s.Atomic(ctx, nil, func(tx ledger.Tx) error {
		_, err := tx.DeleteParty(ctx, doc)
		return err
	})
	if !errors.Is(err, model.ErrStillReferenced) {
		t.Fatalf("expected ErrStillReferenced, got %v", err)
	}
	if _, err := s.GetDoctor(ctx, "doc-1"); err != nil {
		t.Fatalf("expected doctor kept, got %v", err)
	}
	if _, err := s.Get(ctx, "gone"); err != nil {
		t.Fatalf("expected rollback to keep the cancelled appointment, got %v", err)
	}
}

func TestApplyRejectsBookingForDeletedParty(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	err := s.Atomic(ctx, nil, func(tx ledger.Tx) error {
		if err := tx.Insert(ctx, appt("a1", day.Add(9*time.Hour), 30, model.StatusPending)); err != nil {
			return err
		}
		// The doctor disappears between staging and commit.
		return s.Atomic(ctx, nil, func(del ledger.Tx) error {
			if err := del.LockParty(ctx, model.Party{Kind: model.PartyDoctor, ID: "doc-1"}); err != nil {
				return err
			}
			_, err := del.DeleteParty(ctx, model.Party{Kind: model.PartyDoctor, ID: "doc-1"})
			return err
		})
	})
	if !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if _, err := s.Get(ctx, "a1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected no appointment, got %v", err)
	}
}
