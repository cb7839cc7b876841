package remote

import "errors"

var (
	// ErrRemoteNotFound is returned when a remote does not exist.
	ErrRemoteNotFound = errors.New("remote: not found")

	// ErrRemoteExists is returned when creating a remote whose name is taken.
	ErrRemoteExists = errors.New("remote: already exists")

	// ErrButtonNotFound is returned when a remote has no button of that name.
	ErrButtonNotFound = errors.New("remote: button not found")

	// ErrButtonExists is returned when appending a button whose name is taken.
	ErrButtonExists = errors.New("remote: button already exists")

	// ErrInvalidButtonName is returned when a button name contains
	// characters outside the allowed set.
	ErrInvalidButtonName = errors.New("remote: invalid button name")

	// ErrCodeWidthMismatch is returned when a captured code's bit length
	// does not match the remote's command size.
	ErrCodeWidthMismatch = errors.New("remote: code width does not match command size")

	// ErrInvalidCommandSize is returned when a remote declares a command
	// size outside the supported range.
	ErrInvalidCommandSize = errors.New("remote: invalid command size")

	// ErrInvalidProtocol is returned when a remote declares an empty protocol.
	ErrInvalidProtocol = errors.New("remote: invalid protocol")
)
