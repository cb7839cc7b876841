package device

import (
	"regexp"
	"strings"
	"time"
)

// Device is a registered IR bridge identified by its MAC address.
// ConnectionID is set while the device holds a live channel and nil
// otherwise; everything that needs to know whether a device is
// reachable reads this field.
type Device struct {
	ID           string    `json:"id"` // MAC address, canonical uppercase form
	DisplayName  string    `json:"display_name"`
	SortOrder    int       `json:"sort_order"`
	ConnectionID *string   `json:"connection_id,omitempty"`
	PairingHash  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Online reports whether the device currently holds a live connection.
func (d *Device) Online() bool {
	return d.ConnectionID != nil && *d.ConnectionID != ""
}

var macPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// NormalizeMAC converts a MAC address to its canonical uppercase
// colon-separated form. Returns ErrInvalidMAC if the input is not a
// MAC address in colon or dash notation.
func NormalizeMAC(mac string) (string, error) {
	canonical := strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
	if !macPattern.MatchString(canonical) {
		return "", ErrInvalidMAC
	}
	return canonical, nil
}
