package remote

import "time"

// Button is one learned IR code on a remote. Code is the raw captured
// value; its bit length must equal the owning remote's CommandSize,
// and CommandSize is stamped from the remote when the button is
// persisted. State is a client-declared label for toggle buttons
// ("on", "off"); the server stores it untouched.
type Button struct {
	Name        string `json:"name"`
	Code        uint64 `json:"code"`
	CommandSize int    `json:"command_size"`
	State       string `json:"state,omitempty"`
}

// Remote is a virtual remote control bound to one bridge device.
// Protocol and CommandSize are fixed at creation and apply to every
// button the remote will ever hold.
type Remote struct {
	Name         string    `json:"name"`
	DeviceID     string    `json:"device_id"`
	Protocol     string    `json:"protocol"`
	CommandSize  int       `json:"command_size"`
	Buttons      []Button  `json:"buttons"`
	ClickCounter int64     `json:"click_counter"`
	SortOrder    int       `json:"sort_order"`
	Category     string    `json:"category,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FindButton returns the button with the given name, or nil.
func (r *Remote) FindButton(name string) *Button {
	for i := range r.Buttons {
		if r.Buttons[i].Name == name {
			return &r.Buttons[i]
		}
	}
	return nil
}

// HasButton reports whether the remote holds a button of that name.
func (r *Remote) HasButton(name string) bool {
	return r.FindButton(name) != nil
}
