package schedule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memstore"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*schedule.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	if err := store.UpsertDoctor(context.Background(), model.Doctor{ID: "doc-1", Name: "Dr. Rahman"}); err != nil {
		t.Fatalf("UpsertDoctor: %v", err)
	}
	return schedule.NewService(store, slog.New(slog.NewJSONHandler(io.Discard, nil))), store
}

func input(start, end model.Clock) schedule.WindowInput {
	return schedule.WindowInput{Date: day, Start: start, End: end, Available: true}
}

func TestCreateWindowValidates(t *testing.T) {
	svc, _ := newService(t)
	doctor := model.Actor{Role: model.RoleDoctor, ID: "doc-1"}

	if _, err := svc.CreateWindow(context.Background(), doctor, "doc-1", input(600, 540)); !errors.Is(err, schedule.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := svc.CreateWindow(context.Background(), doctor, "doc-1", input(540, 540)); !errors.Is(err, schedule.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for empty window, got %v", err)
	}

	w, err := svc.CreateWindow(context.Background(), doctor, "doc-1", input(540, 720))
	if err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	if w.ID == "" || w.DoctorID != "doc-1" {
		t.Fatalf("unexpected window %+v", w)
	}
}

func TestCreateWindowUnknownDoctor(t *testing.T) {
	svc, _ := newService(t)
	admin := model.Actor{Role: model.RoleAdmin, ID: "adm"}
	if _, err := svc.CreateWindow(context.Background(), admin, "doc-x", input(540, 600)); !errors.Is(err, model.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestOnlyOwnerOrAdminManages(t *testing.T) {
	svc, _ := newService(t)
	admin := model.Actor{Role: model.RoleAdmin, ID: "adm"}
	other := model.Actor{Role: model.RoleDoctor, ID: "doc-2"}
	patient := model.Actor{Role: model.RolePatient, ID: "pat-1"}

	if _, err := svc.CreateWindow(context.Background(), other, "doc-1", input(540, 600)); !errors.Is(err, schedule.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other doctor, got %v", err)
	}
	w, err := svc.CreateWindow(context.Background(), admin, "doc-1", input(540, 600))
	if err != nil {
		t.Fatalf("admin CreateWindow: %v", err)
	}
	if err := svc.DeleteWindow(context.Background(), patient, w.ID); !errors.Is(err, schedule.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for patient, got %v", err)
	}
}

func TestUpdateAndDeleteWindow(t *testing.T) {
	svc, _ := newService(t)
	doctor := model.Actor{Role: model.RoleDoctor, ID: "doc-1"}

	w, err := svc.CreateWindow(context.Background(), doctor, "doc-1", input(540, 600))
	if err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}

	blocked := input(540, 660)
	blocked.Available = false
	updated, err := svc.UpdateWindow(context.Background(), doctor, w.ID, blocked)
	if err != nil {
		t.Fatalf("UpdateWindow: %v", err)
	}
	if updated.End != 660 || updated.Available {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := svc.UpdateWindow(context.Background(), doctor, w.ID, input(700, 600)); !errors.Is(err, schedule.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow on update, got %v", err)
	}

	list, err := svc.ListWindows(context.Background(), "doc-1", day)
	if err != nil || len(list) != 1 || list[0].Available {
		t.Fatalf("expected the blocked window to be listed, got %v %v", list, err)
	}

	if err := svc.DeleteWindow(context.Background(), doctor, w.ID); err != nil {
		t.Fatalf("DeleteWindow: %v", err)
	}
	if err := svc.DeleteWindow(context.Background(), doctor, w.ID); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
