package model

import "errors"

// Errors shared between the stores and the components that use them.
var (
	ErrNotFound = errors.New("record not found")
	// ErrOverlap is returned by a store that refused an overlapping appointment on its own.
	ErrOverlap       = errors.New("overlapping appointment")
	ErrUnknownEntity = errors.New("referenced doctor or patient does not exist")

	// ErrStillReferenced is returned when a doctor or patient delete would orphan
	// appointments that are not cancelled.
	ErrStillReferenced = errors.New("record is still referenced by active appointments")
)
