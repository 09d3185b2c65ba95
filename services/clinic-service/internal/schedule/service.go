package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

var (
	ErrInvalidWindow = model.ErrInvalidWindow
	ErrNotFound      = errors.New("availability window not found")
	ErrForbidden     = model.ErrForbidden
)

type Store interface {
	InsertWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	UpdateWindow(ctx context.Context, w model.AvailabilityWindow) error
	DeleteWindow(ctx context.Context, id string) error
	GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error)
	ListWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error)
}

// Service manages availability windows on behalf of doctors and admins.
// Bookings never pass through here.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type WindowInput struct {
	Date      time.Time
	Start     model.Clock
	End       model.Clock
	Available bool
}

func (s *Service) CreateWindow(ctx context.Context, by model.Actor, doctorID string, in WindowInput) (model.AvailabilityWindow, error) {
	if err := canManage(by, doctorID); err != nil {
		return model.AvailabilityWindow{}, err
	}
	w, err := model.NewAvailabilityWindow(doctorID, in.Date, in.Start, in.End, in.Available)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w, err = s.store.InsertWindow(ctx, w)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	s.logger.Info("availability window created", "window_id", w.ID, "doctor_id", w.DoctorID, "date", w.Date.Format(model.DateLayout))
	return w, nil
}

func (s *Service) UpdateWindow(ctx context.Context, by model.Actor, id string, in WindowInput) (model.AvailabilityWindow, error) {
	cur, err := s.get(ctx, id)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	if err := canManage(by, cur.DoctorID); err != nil {
		return model.AvailabilityWindow{}, err
	}
	w, err := model.NewAvailabilityWindow(cur.DoctorID, in.Date, in.Start, in.End, in.Available)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.ID = cur.ID
	if err := s.store.UpdateWindow(ctx, w); err != nil {
		return model.AvailabilityWindow{}, mapErr(err)
	}
	return w, nil
}

func (s *Service) DeleteWindow(ctx context.Context, by model.Actor, id string) error {
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := canManage(by, cur.DoctorID); err != nil {
		return err
	}
	if err := s.store.DeleteWindow(ctx, id); err != nil {
		return mapErr(err)
	}
	s.logger.Info("availability window deleted", "window_id", id, "doctor_id", cur.DoctorID)
	return nil
}

// ListWindows returns all windows of the day, blocked ones included.
func (s *Service) ListWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	windows, err := s.store.ListWindows(ctx, doctorID, model.DateOf(date))
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []model.AvailabilityWindow{}
	}
	return windows, nil
}

func (s *Service) get(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	w, err := s.store.GetWindow(ctx, id)
	return w, mapErr(err)
}

func canManage(by model.Actor, doctorID string) error {
	switch by.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleDoctor:
		if by.ID == doctorID {
			return nil
		}
	}
	return ErrForbidden
}

func mapErr(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
