package automation

import "time"

// State is the administrative state of an automation. Disabled
// automations keep their schedule and progress but are never triggered.
type State string

const (
	// StateEnabled means the scheduler will trigger the automation.
	StateEnabled State = "enabled"

	// StateDisabled means the automation is parked.
	StateDisabled State = "disabled"
)

// Step is one remote/button pair executed unattended.
type Step struct {
	RemoteName string `json:"remote_name"`
	ButtonName string `json:"button_name"`
}

// Schedule is a daily cron-style firing time. Days uses time.Weekday
// numbering (Sunday = 0).
type Schedule struct {
	Hour   int            `json:"hour"`
	Minute int            `json:"minute"`
	Days   []time.Weekday `json:"days"`
}

// Matches reports whether the schedule fires at the given instant.
func (s Schedule) Matches(t time.Time) bool {
	if t.Hour() != s.Hour || t.Minute() != s.Minute {
		return false
	}
	for _, d := range s.Days {
		if d == t.Weekday() {
			return true
		}
	}
	return false
}

// Automation is a persisted multi-step sequence. ExecutedCounter is the
// index of the next step to run; it wraps to zero when the last step
// completes, so an automation is cyclic rather than one-shot.
type Automation struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Schedule        Schedule   `json:"schedule"`
	Steps           []Step     `json:"steps"`
	ExecutedCounter int        `json:"executed_counter"`
	TotalSteps      int        `json:"total_steps"`
	State           State      `json:"state"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	HasError        bool       `json:"has_error"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// InProgress reports whether the automation is mid-cycle: at least one
// step has run and the cycle has not wrapped yet.
func (a *Automation) InProgress() bool {
	return a.ExecutedCounter > 0
}
