package dispatch

import (
	"errors"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/remote"
	"github.com/irbridge/core/internal/requestpool"
)

var (
	// ErrUnknownCommand is returned when an inbound frame carries a
	// command kind outside the closed set.
	ErrUnknownCommand = errors.New("dispatch: unknown command kind")

	// ErrStaleRequest is returned when an acknowledgement references a
	// request that has already been resolved or swept. Treated as a
	// no-op toward the device, never surfaced as a failure.
	ErrStaleRequest = errors.New("dispatch: stale or unknown request")

	// ErrPushFailed is returned when the push channel rejects a payload.
	ErrPushFailed = errors.New("dispatch: push failed")
)

// ErrorClass buckets every failure the engine can produce so the
// transport layer can decide what to tell the requester.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota

	// ClassValidation covers malformed or disallowed input. Reported
	// to the caller, never retried.
	ClassValidation

	// ClassNotFound covers missing remotes, buttons, devices and stale
	// requests. Reported, not retried.
	ClassNotFound

	// ClassOffline covers a resolved device with no live channel.
	ClassOffline

	// ClassInfrastructure covers store and channel failures. Safe to
	// retry at the caller's discretion.
	ClassInfrastructure
)

// Classify maps an error from Dispatch or HandleAck onto its class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnknownCommand),
		errors.Is(err, remote.ErrInvalidButtonName),
		errors.Is(err, remote.ErrCodeWidthMismatch),
		errors.Is(err, remote.ErrButtonExists),
		errors.Is(err, requestpool.ErrInvalidOrigin):
		return ClassValidation
	case errors.Is(err, remote.ErrRemoteNotFound),
		errors.Is(err, remote.ErrButtonNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, ErrStaleRequest):
		return ClassNotFound
	case errors.Is(err, device.ErrDeviceOffline):
		return ClassOffline
	default:
		return ClassInfrastructure
	}
}
