package automation

import (
	"context"
	"time"

	"github.com/irbridge/core/internal/infrastructure/logging"
)

// Scheduler ticks once per second and triggers automations.
//
// Two situations fire a trigger: the wall clock matching an enabled
// automation's schedule (once per matching minute), and an automation
// already mid-cycle, which is re-triggered every tick until its cycle
// wraps. The engine dispatches the next step only after the previous
// one resolved, so mid-cycle ticks while an acknowledgement is in
// flight are no-ops; a started cycle still completes without waiting
// a day for its next schedule match.
type Scheduler struct {
	engine *Engine
	repo   Repository
	tick   time.Duration
	logger *logging.Logger

	// fired maps automation ID to the last schedule minute it fired
	// in, so one matching minute yields exactly one cycle start.
	fired map[string]string
}

// NewScheduler creates a scheduler; tick is normally one second.
func NewScheduler(engine *Engine, repo Repository, tick time.Duration, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		repo:   repo,
		tick:   tick,
		logger: logger,
		fired:  make(map[string]string),
	}
}

// Run blocks until the context is cancelled, evaluating all enabled
// automations on every tick. Run is the only goroutine touching the
// fired map.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("automation scheduler started", "tick", s.tick.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation scheduler stopped")
			return
		case now := <-ticker.C:
			s.evaluate(ctx, now)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, now time.Time) {
	automations, err := s.repo.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("listing automations failed", "error", err)
		return
	}

	minute := now.Format("2006-01-02T15:04")
	for i := range automations {
		a := &automations[i]
		switch {
		case a.InProgress():
			// Continue a running cycle: one step per tick.
			s.trigger(ctx, a.ID)
		case a.Schedule.Matches(now) && s.fired[a.ID] != minute:
			s.fired[a.ID] = minute
			s.logger.Info("automation schedule fired",
				"automation_id", a.ID, "name", a.Name)
			s.trigger(ctx, a.ID)
		}
	}

	// Drop fired entries from past minutes so the map stays bounded.
	for id, m := range s.fired {
		if m != minute {
			delete(s.fired, id)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, automationID string) {
	if err := s.engine.Trigger(ctx, automationID); err != nil {
		s.logger.Warn("automation trigger failed",
			"automation_id", automationID, "error", err)
	}
}
