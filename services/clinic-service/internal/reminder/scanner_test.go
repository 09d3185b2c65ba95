package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type staticSource struct {
	due       []model.AppointmentDetail
	from, to  time.Time
	callCount int
}

func (s *staticSource) UpcomingConfirmed(_ context.Context, from, to time.Time) ([]model.AppointmentDetail, error) {
	s.from, s.to = from, to
	s.callCount++
	return s.due, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []email.Message
	fail bool
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("smtp down")
	}
	o.sent = append(o.sent, msg)
	return nil
}

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func detail(id string, start time.Time, minutes int) model.AppointmentDetail {
	return model.AppointmentDetail{
		Appointment: model.Appointment{ID: id, Start: start, DurationMinutes: minutes, Status: model.StatusConfirmed},
		Doctor:      model.Doctor{Name: "Rahman", Specialty: "Cardiology"},
		Patient:     model.Patient{Name: "Nadia", Email: "nadia@example.com"},
	}
}

func newScanner(src Source, marker Marker, sender email.Sender) *Scanner {
	return NewScanner(src, marker, sender, slog.New(slog.NewJSONHandler(io.Discard, nil)), Config{
		Now: func() time.Time { return now },
	})
}

func TestScanOnceSendsOncePerAppointment(t *testing.T) {
	src := &staticSource{due: []model.AppointmentDetail{
		detail("a1", now.Add(2*time.Hour), 60),
		detail("a2", now.Add(4*time.Hour), 30),
	}}
	box := &outbox{}
	s := newScanner(src, NewMemoryMarker(), box)

	n, err := s.ScanOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 reminders, got %d err=%v", n, err)
	}
	if !src.from.Equal(now) || !src.to.Equal(now.Add(5*time.Hour)) {
		t.Fatalf("unexpected scan range %s - %s", src.from, src.to)
	}

	n, err = s.ScanOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected dedup on second pass, got %d err=%v", n, err)
	}
	if len(box.sent) != 2 {
		t.Fatalf("expected 2 emails total, got %d", len(box.sent))
	}

	body := box.sent[0].Body
	for _, want := range []string{"Dear Nadia", "March 02, 2026", "10:00 AM - 11:00 AM", "Duration: 1 hour", "Dr. Rahman", "Cardiology"} {
		if !strings.Contains(body, want) {
			t.Fatalf("reminder body missing %q:\n%s", want, body)
		}
	}
	if box.sent[0].To != "nadia@example.com" {
		t.Fatalf("unexpected recipient %q", box.sent[0].To)
	}
}

func TestScanOnceReleasesClaimOnFailure(t *testing.T) {
	src := &staticSource{due: []model.AppointmentDetail{detail("a1", now.Add(time.Hour), 30)}}
	box := &outbox{fail: true}
	marker := NewMemoryMarker()
	s := newScanner(src, marker, box)

	if _, err := s.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected send failure")
	}
	box.fail = false
	n, err := s.ScanOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected retry to send, got %d err=%v", n, err)
	}
}

func TestMemoryMarkerExpires(t *testing.T) {
	m := NewMemoryMarker()
	clock := now
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, MarkerKey("a1"), 6*time.Hour); !ok {
		t.Fatal("expected first claim")
	}
	if ok, _ := m.Claim(ctx, MarkerKey("a1"), 6*time.Hour); ok {
		t.Fatal("expected duplicate claim to fail")
	}
	clock = clock.Add(6 * time.Hour)
	if ok, _ := m.Claim(ctx, MarkerKey("a1"), 6*time.Hour); !ok {
		t.Fatal("expected claim after ttl")
	}
}

func TestDurationText(t *testing.T) {
	cases := map[int]string{30: "30 minutes", 60: "1 hour", 90: "1.5 hours", 45: "45 minutes", 120: "120 minutes"}
	for in, want := range cases {
		if got := DurationText(in); got != want {
			t.Fatalf("DurationText(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &staticSource{}
	s := newScanner(src, NewMemoryMarker(), &outbox{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
	if src.callCount == 0 {
		t.Fatal("expected an immediate first scan")
	}
}
