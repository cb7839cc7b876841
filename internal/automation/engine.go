package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/requestpool"
)

// CommandDispatcher is the interface the engine needs from the dispatch
// package. A step runs through exactly the same validation and push
// path as a client command; only the origin tag differs.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd requestpool.Command, origin requestpool.Origin) (string, error)
}

// PendingTracker is the interface the engine needs from the request
// pool: whether a dispatched step is still waiting on its device
// acknowledgement.
type PendingTracker interface {
	HasPendingForAutomation(ctx context.Context, automationID string) (bool, error)
}

// Engine drives automations one step per trigger.
//
// Trigger dispatches the current step with an automation-tagged origin;
// when the device acknowledges, the acknowledgement router calls
// Advance (or Fail) here. No progress is held in memory, so triggers
// and acknowledgements may land on different processes.
//
// Thread Safety: all methods are safe for concurrent use; coordination
// happens through the database.
type Engine struct {
	repo       Repository
	dispatcher CommandDispatcher
	pending    PendingTracker
	staleAfter time.Duration
	logger     *logging.Logger
}

// NewEngine creates an automation engine. staleAfter bounds how long a
// mid-cycle automation may wait for its step's acknowledgement before
// the stale sweep resets it.
func NewEngine(repo Repository, dispatcher CommandDispatcher, pending PendingTracker, staleAfter time.Duration, logger *logging.Logger) *Engine {
	return &Engine{
		repo:       repo,
		dispatcher: dispatcher,
		pending:    pending,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Trigger runs the automation's current step.
//
// Failures never propagate to the scheduler: nobody is waiting on a
// tick, so every problem is recorded on the automation row for the
// operator instead. Only storage failures before the dispatch return
// an error.
func (e *Engine) Trigger(ctx context.Context, automationID string) error {
	// Recover automations whose previous step's acknowledgement never
	// arrived before deciding what to run.
	if reset, err := e.repo.ResetStale(ctx, e.staleAfter); err != nil {
		e.logger.Warn("stale automation sweep failed", "error", err)
	} else if reset > 0 {
		e.logger.Info("reset stale automations", "count", reset)
	}

	a, err := e.repo.GetByID(ctx, automationID)
	if err != nil {
		if errors.Is(err, ErrAutomationNotFound) {
			e.logger.Warn("trigger for unknown automation", "automation_id", automationID)
			return nil
		}
		return fmt.Errorf("loading automation: %w", err)
	}
	if a.State != StateEnabled {
		e.logger.Debug("skipping disabled automation", "automation_id", a.ID)
		return nil
	}

	// A correlation row for this automation means the current step is
	// already on its way to the device; dispatching again would emit
	// the same IR code twice and let the duplicate acks leapfrog the
	// counter. The row either resolves or is reclaimed by the expiry
	// sweep, so waiting is bounded.
	outstanding, err := e.pending.HasPendingForAutomation(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("checking outstanding step: %w", err)
	}
	if outstanding {
		e.logger.Debug("step awaiting acknowledgement", "automation_id", a.ID)
		return nil
	}

	// The stale sweep may have reset this automation in this same call;
	// a counter at or past the end wraps defensively to step zero.
	idx := a.ExecutedCounter
	if idx >= len(a.Steps) {
		idx = 0
	}
	step := a.Steps[idx]

	cmd := requestpool.Command{
		Kind:       requestpool.CommandExecute,
		RemoteName: step.RemoteName,
		ButtonName: step.ButtonName,
	}
	requestID, err := e.dispatcher.Dispatch(ctx, cmd, requestpool.AutomationOrigin(a.ID))
	if err != nil {
		msg := fmt.Sprintf("step %d (%s/%s): %v", idx, step.RemoteName, step.ButtonName, err)
		if setErr := e.repo.SetError(ctx, a.ID, msg); setErr != nil {
			e.logger.Error("failed to record automation error",
				"automation_id", a.ID, "error", setErr)
		}
		e.logger.Warn("automation step dispatch failed",
			"automation_id", a.ID, "step", idx, "error", err)
		return nil
	}

	e.logger.Debug("automation step dispatched",
		"automation_id", a.ID,
		"step", idx,
		"request_id", requestID)
	return nil
}

// Advance moves the automation one step forward after its current step
// resolved. Completing the last step wraps the counter to zero: the
// cycle is ready for its next scheduled run.
func (e *Engine) Advance(ctx context.Context, automationID string) error {
	a, err := e.repo.GetByID(ctx, automationID)
	if err != nil {
		return fmt.Errorf("loading automation: %w", err)
	}

	now := time.Now().UTC()
	next := a.ExecutedCounter + 1
	completed := next >= a.TotalSteps
	if completed {
		next = 0
	}

	if err := e.repo.SetProgress(ctx, a.ID, next, now); err != nil {
		return fmt.Errorf("advancing automation: %w", err)
	}

	if completed {
		e.logger.Info("automation cycle completed",
			"automation_id", a.ID, "steps", a.TotalSteps)
	} else {
		e.logger.Debug("automation advanced",
			"automation_id", a.ID, "next_step", next)
	}
	return nil
}

// Fail records a resolved-but-failed step on the automation row. The
// counter is left alone so the operator can see which step failed; the
// stale sweep eventually resets the run.
func (e *Engine) Fail(ctx context.Context, automationID, message string) error {
	if err := e.repo.SetError(ctx, automationID, message); err != nil {
		return fmt.Errorf("recording automation failure: %w", err)
	}
	e.logger.Warn("automation step failed",
		"automation_id", automationID, "reason", message)
	return nil
}
