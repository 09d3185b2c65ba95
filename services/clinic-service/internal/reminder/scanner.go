package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// Source lists confirmed appointments starting within [from, to].
type Source interface {
	UpcomingConfirmed(ctx context.Context, from, to time.Time) ([]model.AppointmentDetail, error)
}

type Config struct {
	Interval      time.Duration
	RetryInterval time.Duration
	Lookahead     time.Duration
	MarkerTTL     time.Duration
	Now           func() time.Time
}

// Scanner sends one reminder per confirmed appointment that starts soon.
// Deduplication lives entirely in the Marker.
type Scanner struct {
	source Source
	marker Marker
	sender email.Sender
	logger *slog.Logger
	cfg    Config
}

func NewScanner(source Source, marker Marker, sender email.Sender, logger *slog.Logger, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 5 * time.Hour
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = 6 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{source: source, marker: marker, sender: sender, logger: logger, cfg: cfg}
}

func MarkerKey(appointmentID string) string {
	return "reminder_sent:" + appointmentID
}

// Run scans immediately and then on every interval, waiting the shorter retry
// interval after a failed pass.
func (s *Scanner) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next := s.cfg.Interval
			if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reminder scan failed", "err", err)
				next = s.cfg.RetryInterval
			}
			timer.Reset(next)
		}
	}
}

// ScanOnce performs one pass and returns how many reminders were sent.
// A failed send releases its claim so the next pass retries it.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	now := model.Naive(s.cfg.Now())
	due, err := s.source.UpcomingConfirmed(ctx, now, now.Add(s.cfg.Lookahead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming: %w", err)
	}

	hours := int(s.cfg.Lookahead / time.Hour)
	var sent int
	var errs []error
	for _, d := range due {
		key := MarkerKey(d.Appointment.ID)
		claimed, err := s.marker.Claim(ctx, key, s.cfg.MarkerTTL)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", key, err))
			continue
		}
		if !claimed {
			continue
		}
		if err := s.sender.Send(ctx, buildMessage(d, hours)); err != nil {
			if relErr := s.marker.Release(ctx, key); relErr != nil {
				s.logger.Warn("reminder claim release failed", "appointment_id", d.Appointment.ID, "err", relErr)
			}
			errs = append(errs, fmt.Errorf("send reminder %s: %w", d.Appointment.ID, err))
			continue
		}
		sent++
		s.logger.Info("reminder sent", "appointment_id", d.Appointment.ID, "start", d.Appointment.Start)
	}
	return sent, errors.Join(errs...)
}
