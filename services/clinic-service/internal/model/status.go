package model

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the appointment lifecycle state. The zero value is not a valid status.
type Status int

const (
	StatusPending Status = iota + 1
	StatusConfirmed
	StatusCompleted
	StatusCancelled
)

var (
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor not allowed to perform transition")
)

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusCancelled
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// BlocksCalendar reports whether an appointment in this state occupies the doctor's time.
func (s Status) BlocksCalendar() bool {
	return s.Valid() && s != StatusCancelled
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidStatus
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transition checks that actor may move an appointment from one state to another.
//
//	pending   -> confirmed  payment (system) or admin
//	pending   -> cancelled  the owning patient or admin
//	confirmed -> completed  doctor or admin
//	confirmed -> cancelled  admin only
//
// Completed and cancelled are terminal. Ownership of the appointment is checked by the caller.
func Transition(from, to Status, by Actor) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidStatus
	}
	switch from {
	case StatusPending:
		switch to {
		case StatusConfirmed:
			return allow(by, RoleSystem, RoleAdmin)
		case StatusCancelled:
			return allow(by, RolePatient, RoleAdmin)
		}
	case StatusConfirmed:
		switch to {
		case StatusCompleted:
			return allow(by, RoleDoctor, RoleAdmin)
		case StatusCancelled:
			return allow(by, RoleAdmin)
		}
	case StatusCompleted, StatusCancelled:
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func allow(by Actor, roles ...Role) error {
	for _, r := range roles {
		if by.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
