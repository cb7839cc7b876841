package automation

import "errors"

var (
	// ErrAutomationNotFound is returned when an automation does not exist.
	ErrAutomationNotFound = errors.New("automation: not found")

	// ErrAutomationExists is returned when creating an automation whose
	// ID is already taken.
	ErrAutomationExists = errors.New("automation: already exists")

	// ErrInvalidName is returned when an automation name is empty or
	// contains disallowed characters.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidSchedule is returned when hour, minute or days are out
	// of range.
	ErrInvalidSchedule = errors.New("automation: invalid schedule")

	// ErrNoSteps is returned when an automation declares no steps.
	ErrNoSteps = errors.New("automation: no steps")
)
