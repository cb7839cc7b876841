package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/remote"
	"github.com/irbridge/core/internal/requestpool"
)

// StepAdvancer is how an automation-originated acknowledgement flows
// back into the automation state machine. Defined here so the router
// does not depend on the automation package.
type StepAdvancer interface {
	// Advance moves the automation one step forward after its current
	// step's command resolved successfully.
	Advance(ctx context.Context, automationID string) error

	// Fail records a step failure on the automation for the operator
	// to see; nobody is waiting synchronously on an automation.
	Fail(ctx context.Context, automationID, message string) error
}

// AckRouter matches inbound device acknowledgements to their
// correlation rows and forwards the result to the original requester.
type AckRouter struct {
	pool     requestpool.Repository
	remotes  remote.Repository
	channel  PushChannel
	advancer StepAdvancer
	recorder UsageRecorder
	logger   *logging.Logger
}

// NewAckRouter wires an AckRouter; recorder may be nil.
func NewAckRouter(
	pool requestpool.Repository,
	remotes remote.Repository,
	channel PushChannel,
	advancer StepAdvancer,
	recorder UsageRecorder,
	logger *logging.Logger,
) *AckRouter {
	return &AckRouter{
		pool:     pool,
		remotes:  remotes,
		channel:  channel,
		advancer: advancer,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleAck resolves an acknowledgement against its correlation row.
//
// The row is taken (read and deleted in one transaction) before any
// side effect runs, so duplicate device acks resolve at most once. An
// unknown request ID returns ErrStaleRequest: the requester already
// timed out or this is a late duplicate, and the device is owed
// nothing either way.
func (r *AckRouter) HandleAck(ctx context.Context, ack DeviceAck) error {
	req, err := r.pool.Take(ctx, ack.RequestID)
	if err != nil {
		if errors.Is(err, requestpool.ErrRequestNotFound) {
			r.logger.Debug("ignoring stale acknowledgement", "request_id", ack.RequestID)
			return fmt.Errorf("%w: %s", ErrStaleRequest, ack.RequestID)
		}
		return fmt.Errorf("resolving correlation: %w", err)
	}

	sideEffectErr := r.applySideEffects(ctx, req, ack)
	if r.recorder != nil {
		r.recorder.RecordResolution(req.Command.Kind, req.Command.RemoteName, sideEffectErr == nil)
	}

	switch req.Origin.Kind {
	case requestpool.OriginClient:
		return r.resolveClient(ctx, req, sideEffectErr)
	case requestpool.OriginAutomation:
		return r.resolveAutomation(ctx, req, sideEffectErr)
	default:
		return fmt.Errorf("%w: origin %q", requestpool.ErrInvalidOrigin, req.Origin.Kind)
	}
}

// applySideEffects runs the kind-specific consequence of a resolved
// command: a read ack persists the learned button, an execute ack bumps
// the remote's usage counter.
func (r *AckRouter) applySideEffects(ctx context.Context, req *requestpool.PendingRequest, ack DeviceAck) error {
	switch req.Command.Kind {
	case requestpool.CommandRead:
		if ack.Code == nil {
			return fmt.Errorf("%w: read acknowledgement carries no code", remote.ErrCodeWidthMismatch)
		}
		// CommandSize is stamped from the remote inside AppendButton;
		// State is whatever the original requester declared.
		return r.remotes.AppendButton(ctx, req.Command.RemoteName, remote.Button{
			Name:  req.Command.ButtonName,
			Code:  *ack.Code,
			State: req.Command.ButtonState,
		})
	case requestpool.CommandExecute:
		// Usage counting is best effort; a failed bump must not turn a
		// confirmed IR emission into an error.
		if err := r.remotes.IncrementClickCounter(ctx, req.Command.RemoteName); err != nil {
			r.logger.Warn("click counter update failed",
				"remote", req.Command.RemoteName, "error", err)
			return nil
		}
		if cr, ok := r.recorder.(ClickCounterRecorder); ok {
			if rem, err := r.remotes.GetByName(ctx, req.Command.RemoteName); err == nil {
				cr.RecordClickCounter(rem.Name, int64(rem.ClickCounter))
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command.Kind)
	}
}

// resolveClient pushes the outcome to the requester's connection. A
// protocol-level reject becomes an error frame; a push failure is an
// infrastructure problem with no reachable receiver and is only logged.
func (r *AckRouter) resolveClient(ctx context.Context, req *requestpool.PendingRequest, sideEffectErr error) error {
	var payload []byte
	if sideEffectErr != nil {
		payload = EncodeErrorFrame(sideEffectErr.Error())
	} else {
		payload = EncodeClientAck(req.RequestID)
	}

	if err := r.channel.Push(ctx, req.Origin.ConnectionID, payload); err != nil {
		r.logger.Warn("requester unreachable for resolution",
			"request_id", req.RequestID,
			"connection_id", req.Origin.ConnectionID,
			"error", err)
		return nil
	}

	r.logger.Debug("request resolved",
		"request_id", req.RequestID,
		"kind", string(req.Command.Kind),
		"success", sideEffectErr == nil)
	return nil
}

// resolveAutomation routes the outcome back into the state machine.
func (r *AckRouter) resolveAutomation(ctx context.Context, req *requestpool.PendingRequest, sideEffectErr error) error {
	id := req.Origin.AutomationID
	if sideEffectErr != nil {
		if err := r.advancer.Fail(ctx, id, sideEffectErr.Error()); err != nil {
			return fmt.Errorf("recording automation failure: %w", err)
		}
		return nil
	}
	if err := r.advancer.Advance(ctx, id); err != nil {
		return fmt.Errorf("advancing automation: %w", err)
	}
	return nil
}
