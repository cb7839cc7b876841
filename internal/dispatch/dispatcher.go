package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/remote"
	"github.com/irbridge/core/internal/requestpool"
)

// UsageRecorder receives dispatch and resolution outcomes for
// telemetry. Implementations must not block; a nil recorder disables
// recording.
type UsageRecorder interface {
	RecordDispatch(kind requestpool.CommandKind, remoteName string, ok bool)
	RecordResolution(kind requestpool.CommandKind, remoteName string, ok bool)
}

// ClickCounterRecorder is an optional extension of UsageRecorder for
// sinks that also track a remote's cumulative usage counter.
type ClickCounterRecorder interface {
	RecordClickCounter(remoteName string, counter int64)
}

// Dispatcher validates an inbound command, records a correlation row
// and pushes the translated payload to the owning device.
type Dispatcher struct {
	pool     requestpool.Repository
	remotes  remote.Repository
	devices  device.Repository
	channel  PushChannel
	recorder UsageRecorder
	expiry   time.Duration
	logger   *logging.Logger

	// prepare holds one entry per command kind; an inbound kind with
	// no entry is rejected before anything is resolved or stored.
	prepare map[requestpool.CommandKind]prepareFunc
}

// prepareFunc checks kind-specific button rules against the resolved
// remote and returns the code to embed in the device payload, if any.
type prepareFunc func(r *remote.Remote, buttonName string) (*uint64, error)

// NewDispatcher wires a Dispatcher. The expiry window bounds how long a
// correlation row may wait for its acknowledgement; recorder may be nil.
func NewDispatcher(
	pool requestpool.Repository,
	remotes remote.Repository,
	devices device.Repository,
	channel PushChannel,
	recorder UsageRecorder,
	expiry time.Duration,
	logger *logging.Logger,
) *Dispatcher {
	d := &Dispatcher{
		pool:     pool,
		remotes:  remotes,
		devices:  devices,
		channel:  channel,
		recorder: recorder,
		expiry:   expiry,
		logger:   logger,
	}
	d.prepare = map[requestpool.CommandKind]prepareFunc{
		requestpool.CommandRead:    prepareRead,
		requestpool.CommandExecute: prepareExecute,
	}
	return d
}

// prepareRead admits a read only for a button the remote does not hold
// yet: reading is learning, and a learned code must not be overwritten.
func prepareRead(r *remote.Remote, buttonName string) (*uint64, error) {
	if r.HasButton(buttonName) {
		return nil, fmt.Errorf("%w: %q", remote.ErrButtonExists, buttonName)
	}
	return nil, nil
}

// prepareExecute requires the button to exist and yields its stored code.
func prepareExecute(r *remote.Remote, buttonName string) (*uint64, error) {
	b := r.FindButton(buttonName)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", remote.ErrButtonNotFound, buttonName)
	}
	return &b.Code, nil
}

// Dispatch validates and translates a command, creates a correlation
// row and pushes the device payload. It returns the request ID the
// eventual acknowledgement will carry.
//
// A push failure does not retract the correlation row; the row is
// reclaimed by the next expiry sweep and a late device reply against it
// is harmless.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd requestpool.Command, origin requestpool.Origin) (string, error) {
	requestID, err := d.dispatch(ctx, cmd, origin)
	if d.recorder != nil {
		d.recorder.RecordDispatch(cmd.Kind, cmd.RemoteName, err == nil)
	}
	return requestID, err
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd requestpool.Command, origin requestpool.Origin) (string, error) {
	prepare, known := d.prepare[cmd.Kind]
	if !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	if err := remote.ValidateButtonName(cmd.ButtonName); err != nil {
		return "", err
	}

	rem, err := d.remotes.GetByName(ctx, cmd.RemoteName)
	if err != nil {
		return "", err
	}

	code, err := prepare(rem, cmd.ButtonName)
	if err != nil {
		return "", err
	}

	dev, err := d.devices.GetByID(ctx, rem.DeviceID)
	if err != nil {
		return "", err
	}
	if !dev.Online() {
		return "", fmt.Errorf("%w: %s", device.ErrDeviceOffline, dev.ID)
	}

	// Cheap amortized cleanup: reclaim abandoned rows on the write
	// path instead of running a background reaper.
	if swept, err := d.pool.SweepExpired(ctx, d.expiry); err != nil {
		d.logger.Warn("expiry sweep failed", "error", err)
	} else if swept > 0 {
		d.logger.Debug("reclaimed expired requests", "count", swept)
	}

	req, err := d.pool.Create(ctx, origin, cmd)
	if err != nil {
		return "", fmt.Errorf("creating correlation: %w", err)
	}

	payload, err := EncodeDeviceCommand(DeviceCommand{
		Action:      ActionCmd,
		Cmd:         cmd.Kind,
		RequestID:   req.RequestID,
		CommandSize: rem.CommandSize,
		Code:        code,
	})
	if err != nil {
		return "", err
	}

	if err := d.channel.Push(ctx, *dev.ConnectionID, payload); err != nil {
		d.logger.Warn("device push failed",
			"device_id", dev.ID,
			"request_id", req.RequestID,
			"error", err)
		return req.RequestID, fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	d.logger.Debug("command dispatched",
		"kind", string(cmd.Kind),
		"remote", cmd.RemoteName,
		"button", cmd.ButtonName,
		"device_id", dev.ID,
		"request_id", req.RequestID)
	return req.RequestID, nil
}
