package automation

import (
	"fmt"
	"time"
)

// Validate checks the invariants an automation must satisfy before it
// is persisted.
func Validate(a *Automation) error {
	if a.Name == "" || len(a.Name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidName, a.Name)
	}
	if a.Schedule.Hour < 0 || a.Schedule.Hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrInvalidSchedule, a.Schedule.Hour)
	}
	if a.Schedule.Minute < 0 || a.Schedule.Minute > 59 {
		return fmt.Errorf("%w: minute %d", ErrInvalidSchedule, a.Schedule.Minute)
	}
	if len(a.Schedule.Days) == 0 {
		return fmt.Errorf("%w: no days selected", ErrInvalidSchedule)
	}
	for _, d := range a.Schedule.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: day %d", ErrInvalidSchedule, d)
		}
	}
	if len(a.Steps) == 0 {
		return ErrNoSteps
	}
	for i, s := range a.Steps {
		if s.RemoteName == "" || s.ButtonName == "" {
			return fmt.Errorf("%w: step %d incomplete", ErrNoSteps, i)
		}
	}
	if a.State != StateEnabled && a.State != StateDisabled {
		return fmt.Errorf("automation: invalid state %q", a.State)
	}
	return nil
}
