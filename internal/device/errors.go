package device

import "errors"

var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device whose MAC
	// address is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrDeviceOffline is returned when an operation needs a live
	// connection and the device has none.
	ErrDeviceOffline = errors.New("device: offline")

	// ErrInvalidMAC is returned when a device ID is not a MAC address.
	ErrInvalidMAC = errors.New("device: invalid mac address")

	// ErrPairingFailed is returned when a connecting device presents a
	// secret that does not match its stored pairing hash.
	ErrPairingFailed = errors.New("device: pairing failed")
)
