package remote

import (
	"fmt"
	"math/bits"
	"regexp"
)

// Names travel inside wire frames and MQTT topics, so the allowed set
// is deliberately narrow.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9 -]+$`)

const (
	maxNameLength = 64

	// CommandSize is the bit width of an IR code; anything wider than
	// 64 bits does not fit the storage representation.
	minCommandSize = 1
	maxCommandSize = 64
)

// ValidateButtonName checks a button name against the allowed character
// set and length bound.
func ValidateButtonName(name string) error {
	if name == "" || len(name) > maxNameLength || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidButtonName, name)
	}
	return nil
}

// ValidateRemote checks the invariants a remote must satisfy before it
// is persisted. Buttons already present are checked against the
// declared command size.
func ValidateRemote(r *Remote) error {
	if err := ValidateButtonName(r.Name); err != nil {
		return fmt.Errorf("remote name: %w", err)
	}
	if r.Protocol == "" {
		return ErrInvalidProtocol
	}
	if r.CommandSize < minCommandSize || r.CommandSize > maxCommandSize {
		return fmt.Errorf("%w: %d", ErrInvalidCommandSize, r.CommandSize)
	}
	seen := make(map[string]bool, len(r.Buttons))
	for _, b := range r.Buttons {
		if err := ValidateButtonName(b.Name); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %q", ErrButtonExists, b.Name)
		}
		seen[b.Name] = true
		if b.CommandSize != 0 && b.CommandSize != r.CommandSize {
			return fmt.Errorf("%w: button %q declares %d bits, remote expects %d",
				ErrInvalidCommandSize, b.Name, b.CommandSize, r.CommandSize)
		}
		if err := ValidateCode(b.Code, r.CommandSize); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCode checks that a captured IR code occupies exactly
// commandSize bits. A code with a shorter bit length was truncated or
// mis-captured; a longer one cannot be emitted by the remote's protocol.
func ValidateCode(code uint64, commandSize int) error {
	if bits.Len64(code) != commandSize {
		return fmt.Errorf("%w: code has %d bits, remote expects %d",
			ErrCodeWidthMismatch, bits.Len64(code), commandSize)
	}
	return nil
}
