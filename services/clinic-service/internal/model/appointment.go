package model

import (
	"fmt"
	"time"
)

type Appointment struct {
	ID              string
	DoctorID        string
	PatientID       string
	Start           time.Time
	DurationMinutes int
	Status          Status
	Notes           string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) End() time.Time { return a.Start.Add(a.Duration()) }

func (a Appointment) Date() time.Time { return DateOf(a.Start) }

// Booked returns the view of the appointment used for conflict checks.
func (a Appointment) Booked() BookedInterval {
	return BookedInterval{
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		Start:           a.Start,
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
	}
}

// BookedInterval is the part of an appointment that occupies a doctor's calendar.
type BookedInterval struct {
	AppointmentID   string
	DoctorID        string
	Start           time.Time
	DurationMinutes int
	Status          Status
}

func (b BookedInterval) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Slot is a computed candidate booking; it is never stored.
type Slot struct {
	Start time.Time
	End   time.Time
}

// String renders the slot as "HH:MM - HH:MM".
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d - %02d:%02d", s.Start.Hour(), s.Start.Minute(), s.End.Hour(), s.End.Minute())
}

type Doctor struct {
	ID        string
	Name      string
	Specialty string
	Email     string
}

type Patient struct {
	ID    string
	Name  string
	Email string
}

// Party is a doctor or patient record referenced by appointments.
type Party struct {
	Kind PartyKind
	ID   string
}

type PartyKind string

const (
	PartyDoctor  PartyKind = "doctor"
	PartyPatient PartyKind = "patient"
)

func (p Party) Valid() bool {
	return p.ID != "" && (p.Kind == PartyDoctor || p.Kind == PartyPatient)
}

// References reports whether a points at this doctor or patient.
func (p Party) References(a Appointment) bool {
	switch p.Kind {
	case PartyDoctor:
		return a.DoctorID == p.ID
	case PartyPatient:
		return a.PatientID == p.ID
	}
	return false
}

// AppointmentDetail joins an appointment with the records needed to describe it to a person.
type AppointmentDetail struct {
	Appointment Appointment
	Doctor      Doctor
	Patient     Patient
}
