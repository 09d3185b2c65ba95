package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// Event is the domain event envelope written to the outbox table in the same transaction
// as the state change. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"
	AggregateDoctor      = "doctor"
	AggregatePatient     = "patient"

	TypeBooked      = "clinic.appointment.booked.v1"
	TypeConfirmed   = "clinic.appointment.confirmed.v1"
	TypeCompleted   = "clinic.appointment.completed.v1"
	TypeCancelled   = "clinic.appointment.cancelled.v1"
	TypeRescheduled = "clinic.appointment.rescheduled.v1"

	TypeDoctorDeleted  = "clinic.doctor.deleted.v1"
	TypePatientDeleted = "clinic.patient.deleted.v1"
)

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	DoctorID        string `json:"doctor_id"`
	PatientID       string `json:"patient_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	ActorRole       string `json:"actor_role,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	PreviousStart   string `json:"previous_start_time,omitempty"`
}

// AppointmentEvent builds the event for a committed appointment change.
func AppointmentEvent(eventType string, appt model.Appointment, by model.Actor) (Event, error) {
	return newEvent(AggregateAppointment, eventType, appt.ID, payloadOf(appt, by))
}

// RescheduledEvent records the previous start time next to the new state.
func RescheduledEvent(appt model.Appointment, previousStart time.Time, by model.Actor) (Event, error) {
	p := payloadOf(appt, by)
	p.PreviousStart = previousStart.Format(timestampLayout)
	return newEvent(AggregateAppointment, TypeRescheduled, appt.ID, p)
}

type partyDeletedPayload struct {
	ID                    string `json:"id"`
	CancelledAppointments int    `json:"cancelled_appointments_removed"`
	ActorID               string `json:"actor_id,omitempty"`
}

// PartyDeletedEvent records the removal of a doctor or patient.
func PartyDeletedEvent(p model.Party, cancelledRemoved int, by model.Actor) (Event, error) {
	aggregate, eventType := AggregatePatient, TypePatientDeleted
	if p.Kind == model.PartyDoctor {
		aggregate, eventType = AggregateDoctor, TypeDoctorDeleted
	}
	return newEvent(aggregate, eventType, p.ID, partyDeletedPayload{ID: p.ID, CancelledAppointments: cancelledRemoved, ActorID: by.ID})
}

const timestampLayout = "2006-01-02T15:04:05"

func payloadOf(appt model.Appointment, by model.Actor) appointmentPayload {
	return appointmentPayload{
		AppointmentID:   appt.ID,
		DoctorID:        appt.DoctorID,
		PatientID:       appt.PatientID,
		StartTime:       appt.Start.Format(timestampLayout),
		DurationMinutes: appt.DurationMinutes,
		Status:          appt.Status.String(),
		ActorRole:       string(by.Role),
		ActorID:         by.ID,
		Reason:          appt.CancelReason,
	}
}

func newEvent(aggregateType, eventType, aggregateID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// Record is a stored event as read back by the publisher.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	Published     bool
}
