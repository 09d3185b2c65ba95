package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type sliceSource struct {
	pending   []Record
	published []Record
}

func (s *sliceSource) Drain(_ context.Context, limit int, publish func([]Record) error) (int, error) {
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	if n == 0 {
		return 0, nil
	}
	batch := s.pending[:n]
	if err := publish(batch); err != nil {
		return 0, err
	}
	s.published = append(s.published, batch...)
	s.pending = s.pending[n:]
	return n, nil
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestPublishBatch(t *testing.T) {
	src := &sliceSource{pending: []Record{
		{ID: 1, EventID: "e1", AggregateID: "a1", EventType: TypeBooked, Payload: []byte(`{}`)},
		{ID: 2, EventID: "e2", AggregateID: "a1", EventType: TypeConfirmed, Payload: []byte(`{}`)},
		{ID: 3, EventID: "e3", AggregateID: "a2", EventType: TypeBooked, Payload: []byte(`{}`)},
	}}
	w := &recordingWriter{}
	p := NewPublisher(src, w, testLogger(), PublisherConfig{BatchSize: 2})

	n, err := p.PublishBatch(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 published, got %d err=%v", n, err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages written, got %d", len(w.msgs))
	}
	msg := w.msgs[1]
	if msg.Topic != TypeConfirmed || string(msg.Key) != "a1" {
		t.Fatalf("unexpected message routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	if meta := kafkax.ExtractEventMeta(msg); meta.EventID != "e2" {
		t.Fatalf("expected event id header, got %+v", meta)
	}
	if len(src.pending) != 1 {
		t.Fatalf("expected one event left, got %d", len(src.pending))
	}
}

func TestPublishBatchWriterFailureKeepsEvents(t *testing.T) {
	src := &sliceSource{pending: []Record{{ID: 1, EventID: "e1", AggregateID: "a1", EventType: TypeBooked}}}
	boom := errors.New("broker down")
	p := NewPublisher(src, &recordingWriter{err: boom}, testLogger(), PublisherConfig{})

	if _, err := p.PublishBatch(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if len(src.pending) != 1 || len(src.published) != 0 {
		t.Fatal("expected event to stay unpublished")
	}
}

func TestAppointmentEventPayload(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	appt := model.Appointment{
		ID:              "appt-1",
		DoctorID:        "doc-1",
		PatientID:       "pat-1",
		Start:           start,
		DurationMinutes: 30,
		Status:          model.StatusPending,
	}
	evt, err := RescheduledEvent(appt, start.Add(-time.Hour), model.Actor{Role: model.RoleAdmin, ID: "adm"})
	if err != nil {
		t.Fatalf("RescheduledEvent: %v", err)
	}
	if evt.EventType != TypeRescheduled || evt.AggregateID != "appt-1" || evt.AggregateType != AggregateAppointment {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var got map[string]any
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload json: %v", err)
	}
	if got["start_time"] != "2026-03-02T09:30:00" || got["previous_start_time"] != "2026-03-02T08:30:00" {
		t.Fatalf("unexpected times in payload: %v", got)
	}
	if got["status"] != "pending" || got["actor_role"] != "admin" {
		t.Fatalf("unexpected payload: %v", got)
	}
}
