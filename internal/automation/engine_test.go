package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/remote"
	"github.com/irbridge/core/internal/requestpool"
)

// mockDispatcher records dispatched steps and can be told to fail. It
// creates a real correlation row per dispatch so the engine sees the
// step as outstanding until a test resolves it.
type mockDispatcher struct {
	mu      sync.Mutex
	pool    requestpool.Repository
	calls   []dispatchCall
	failErr error
}

type dispatchCall struct {
	cmd       requestpool.Command
	origin    requestpool.Origin
	requestID string
}

func (d *mockDispatcher) Dispatch(ctx context.Context, cmd requestpool.Command, origin requestpool.Origin) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return "", d.failErr
	}
	req, err := d.pool.Create(ctx, origin, cmd)
	if err != nil {
		return "", err
	}
	d.calls = append(d.calls, dispatchCall{cmd: cmd, origin: origin, requestID: req.RequestID})
	return req.RequestID, nil
}

func (d *mockDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// resolve takes the correlation row behind call i, as the ack router
// would on a device acknowledgement.
func (d *mockDispatcher) resolve(ctx context.Context, t *testing.T, i int) {
	t.Helper()
	d.mu.Lock()
	requestID := d.calls[i].requestID
	d.mu.Unlock()
	if _, err := d.pool.Take(ctx, requestID); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
}

func setupEngine(t *testing.T) (*Engine, *SQLiteRepository, *mockDispatcher) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	pool := requestpool.NewSQLiteRepository(db)
	dispatcher := &mockDispatcher{pool: pool}
	engine := NewEngine(repo, dispatcher, pool, 40*time.Second, logging.Default())
	return engine, repo, dispatcher
}

func TestTriggerDispatchesCurrentStep(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if dispatcher.callCount() != 1 {
		t.Fatalf("expected one dispatch, got %d", dispatcher.callCount())
	}
	call := dispatcher.calls[0]
	if call.cmd.Kind != requestpool.CommandExecute || call.cmd.RemoteName != "SharpTV" || call.cmd.ButtonName != "Power" {
		t.Errorf("wrong step dispatched: %+v", call.cmd)
	}
	if call.origin.Kind != requestpool.OriginAutomation || call.origin.AutomationID != a.ID {
		t.Errorf("step must carry an automation origin: %+v", call.origin)
	}
}

func TestTriggerSkipsDisabled(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("parked")
	a.State = StateDisabled
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if dispatcher.callCount() != 0 {
		t.Error("disabled automation must not dispatch")
	}
}

func TestRepeatedTriggerDispatchesEachStepOnce(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.SetProgress(ctx, a.ID, 1, time.Now().UTC()); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	// First trigger dispatches step 1 and leaves its correlation row
	// waiting for the acknowledgement.
	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if dispatcher.callCount() != 1 || dispatcher.calls[0].cmd.ButtonName != "Power" {
		t.Fatalf("expected step 1 dispatched once, got %+v", dispatcher.calls)
	}

	// Further triggers while the acknowledgement is in flight must not
	// re-emit the step: a duplicate ack would advance the counter past
	// steps that never ran.
	for i := 0; i < 3; i++ {
		if err := engine.Trigger(ctx, a.ID); err != nil {
			t.Fatalf("Trigger failed: %v", err)
		}
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("step re-dispatched while unacknowledged: %d dispatches", dispatcher.callCount())
	}

	// Once the step resolves, the next trigger moves on to step 2.
	dispatcher.resolve(ctx, t, 0)
	if err := engine.Advance(ctx, a.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if dispatcher.callCount() != 2 || dispatcher.calls[1].cmd.ButtonName != "Input" {
		t.Fatalf("expected step 2 dispatched next, got %+v", dispatcher.calls)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if got.ExecutedCounter != 2 {
		t.Errorf("expected counter 2, got %d", got.ExecutedCounter)
	}
}

func TestTriggerRecordsDispatchFailure(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	dispatcher.failErr = remote.ErrRemoteNotFound
	ctx := context.Background()

	a := testAutomation("broken")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Failures are recorded on the row, never raised to the scheduler.
	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger must not propagate step failures: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if !got.HasError || got.ErrorMessage == "" {
		t.Errorf("expected failure recorded: %+v", got)
	}
	if got.ExecutedCounter != 0 {
		t.Errorf("failed step must not advance the counter, got %d", got.ExecutedCounter)
	}
}

func TestTriggerUnknownAutomationIsNoOp(t *testing.T) {
	engine, _, dispatcher := setupEngine(t)

	if err := engine.Trigger(context.Background(), "ghost"); err != nil {
		t.Fatalf("Trigger must swallow unknown IDs: %v", err)
	}
	if dispatcher.callCount() != 0 {
		t.Error("unknown automation must not dispatch")
	}
}

func TestAdvanceIncrementsCounter(t *testing.T) {
	engine, repo, _ := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := engine.Advance(ctx, a.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if got.ExecutedCounter != 1 || got.HasError {
		t.Errorf("expected counter 1 without error, got %+v", got)
	}
	if got.LastRunAt == nil {
		t.Error("expected LastRunAt updated")
	}
}

func TestAdvanceWrapsOnLastStep(t *testing.T) {
	engine, repo, _ := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine") // 3 steps
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.SetProgress(ctx, a.ID, 2, time.Now().UTC()); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	if err := engine.Advance(ctx, a.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if got.ExecutedCounter != 0 {
		t.Errorf("expected counter wrapped to 0, got %d", got.ExecutedCounter)
	}
	if got.HasError {
		t.Error("completed cycle must clear the error flag")
	}
}

func TestTriggerRecoversStaleRun(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Mid-cycle with a lastRunAt far beyond the expiry window: the
	// previous step's acknowledgement never arrived and its correlation
	// row has long been swept.
	if err := repo.SetProgress(ctx, a.ID, 1, time.Now().UTC().Add(-5*time.Minute)); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	if err := engine.Trigger(ctx, a.ID); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if got.ExecutedCounter != 0 || !got.HasError {
		t.Errorf("expected stale run reset with error flag, got %+v", got)
	}
	// After the reset, this trigger dispatched step zero again.
	if dispatcher.callCount() != 1 || dispatcher.calls[0].cmd.ButtonName != "Power" {
		t.Errorf("expected step 0 re-dispatched after recovery, got %+v", dispatcher.calls)
	}
}

func TestFailRecordsMessage(t *testing.T) {
	engine, repo, _ := setupEngine(t)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := engine.Fail(ctx, a.ID, "code width mismatch"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if !got.HasError || got.ErrorMessage != "code width mismatch" {
		t.Errorf("failure not recorded: %+v", got)
	}
}

func TestSchedulerEvaluate(t *testing.T) {
	engine, repo, dispatcher := setupEngine(t)
	scheduler := NewScheduler(engine, repo, time.Second, logging.Default())
	ctx := context.Background()

	scheduled := testAutomation("scheduled")
	scheduled.Schedule = Schedule{Hour: 7, Minute: 30, Days: []time.Weekday{time.Monday}}
	running := testAutomation("running")
	running.Schedule = Schedule{Hour: 23, Minute: 59, Days: []time.Weekday{time.Sunday}}
	idle := testAutomation("idle")
	idle.Schedule = Schedule{Hour: 23, Minute: 59, Days: []time.Weekday{time.Sunday}}
	for _, a := range []*Automation{scheduled, running, idle} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.SetProgress(ctx, running.ID, 1, time.Now().UTC()); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	monday := time.Date(2026, 8, 31, 7, 30, 15, 0, time.Local)
	scheduler.evaluate(ctx, monday)

	// scheduled fires on its minute, running continues mid-cycle, idle
	// does nothing.
	if dispatcher.callCount() != 2 {
		t.Fatalf("expected 2 triggers, got %d", dispatcher.callCount())
	}

	// A second tick inside the same minute neither restarts scheduled
	// nor re-emits running's step, whose acknowledgement is still in
	// flight.
	scheduler.evaluate(ctx, monday.Add(time.Second))
	if dispatcher.callCount() != 2 {
		t.Fatalf("expected no new dispatches on second tick, got %d", dispatcher.callCount())
	}

	// Once running's step resolves, the next tick continues its cycle.
	runningCall := -1
	for i, call := range dispatcher.calls {
		if call.origin.AutomationID == running.ID {
			runningCall = i
		}
	}
	if runningCall < 0 {
		t.Fatal("running automation never dispatched")
	}
	dispatcher.resolve(ctx, t, runningCall)
	if err := engine.Advance(ctx, running.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	scheduler.evaluate(ctx, monday.Add(2*time.Second))
	if dispatcher.callCount() != 3 {
		t.Errorf("expected running's next step after resolution, got %d dispatches", dispatcher.callCount())
	}
}
