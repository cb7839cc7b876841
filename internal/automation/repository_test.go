package automation

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/irbridge/core/internal/infrastructure/database"
	_ "github.com/irbridge/core/migrations"
)

// setupTestDB opens a throwaway database and applies the embedded
// migrations, so these tests run against the exact schema production
// runs on.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

func testAutomation(name string) *Automation {
	return &Automation{
		Name: name,
		Schedule: Schedule{
			Hour:   7,
			Minute: 30,
			Days:   []time.Weekday{time.Monday, time.Friday},
		},
		Steps: []Step{
			{RemoteName: "SharpTV", ButtonName: "Power"},
			{RemoteName: "Soundbar", ButtonName: "Power"},
			{RemoteName: "Soundbar", ButtonName: "Input"},
		},
	}
}

func TestCreateAssignsIDAndTotals(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testAutomation("morning routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected generated ID")
	}
	if a.TotalSteps != 3 || a.State != StateEnabled {
		t.Errorf("unexpected defaults: %+v", a)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "morning routine" || len(got.Steps) != 3 || len(got.Schedule.Days) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.LastRunAt != nil {
		t.Errorf("expected nil LastRunAt on fresh automation, got %v", got.LastRunAt)
	}
}

func TestCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*Automation)
		wantErr error
	}{
		{"empty name", func(a *Automation) { a.Name = "" }, ErrInvalidName},
		{"hour out of range", func(a *Automation) { a.Schedule.Hour = 24 }, ErrInvalidSchedule},
		{"minute out of range", func(a *Automation) { a.Schedule.Minute = -1 }, ErrInvalidSchedule},
		{"no days", func(a *Automation) { a.Schedule.Days = nil }, ErrInvalidSchedule},
		{"bad day", func(a *Automation) { a.Schedule.Days = []time.Weekday{7} }, ErrInvalidSchedule},
		{"no steps", func(a *Automation) { a.Steps = nil }, ErrNoSteps},
		{"incomplete step", func(a *Automation) { a.Steps = []Step{{RemoteName: "SharpTV"}} }, ErrNoSteps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAutomation("candidate")
			tt.mutate(a)
			if err := repo.Create(ctx, a); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestListEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	on := testAutomation("on")
	off := testAutomation("off")
	off.State = StateDisabled
	for _, a := range []*Automation{on, off} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("unexpected enabled set: %+v", enabled)
	}
}

func TestSetProgressClearsError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.SetError(ctx, a.ID, "step 1 failed"); err != nil {
		t.Fatalf("SetError failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if !got.HasError || got.ErrorMessage != "step 1 failed" {
		t.Fatalf("error not recorded: %+v", got)
	}

	now := time.Now().UTC()
	if err := repo.SetProgress(ctx, a.ID, 2, now); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	got, _ = repo.GetByID(ctx, a.ID)
	if got.ExecutedCounter != 2 || got.HasError || got.ErrorMessage != "" {
		t.Errorf("progress not applied cleanly: %+v", got)
	}
	if got.LastRunAt == nil {
		t.Error("expected LastRunAt set")
	}
}

func TestResetStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	stuck := testAutomation("stuck")
	fresh := testAutomation("fresh")
	idle := testAutomation("idle")
	for _, a := range []*Automation{stuck, fresh, idle} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// stuck: mid-cycle with an old lastRunAt. fresh: mid-cycle but
	// recent. idle: counter zero, must never be touched.
	if err := repo.SetProgress(ctx, stuck.ID, 1, time.Now().UTC().Add(-5*time.Minute)); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	if err := repo.SetProgress(ctx, fresh.ID, 1, time.Now().UTC()); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	reset, err := repo.ResetStale(ctx, 40*time.Second)
	if err != nil {
		t.Fatalf("ResetStale failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("expected 1 automation reset, got %d", reset)
	}

	got, _ := repo.GetByID(ctx, stuck.ID)
	if got.ExecutedCounter != 0 || !got.HasError {
		t.Errorf("stuck automation not recovered: %+v", got)
	}
	got, _ = repo.GetByID(ctx, fresh.ID)
	if got.ExecutedCounter != 1 || got.HasError {
		t.Errorf("fresh automation must be untouched: %+v", got)
	}
	got, _ = repo.GetByID(ctx, idle.ID)
	if got.HasError {
		t.Errorf("idle automation must be untouched: %+v", got)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testAutomation("routine")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a.Steps = a.Steps[:2]
	a.State = StateDisabled
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if got.TotalSteps != 2 || got.State != StateDisabled {
		t.Errorf("update not applied: %+v", got)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrAutomationNotFound) {
		t.Errorf("expected ErrAutomationNotFound, got %v", err)
	}
}

func TestScheduleMatches(t *testing.T) {
	s := Schedule{Hour: 7, Minute: 30, Days: []time.Weekday{time.Monday}}

	monday := time.Date(2026, 8, 31, 7, 30, 15, 0, time.UTC) // a Monday
	if !s.Matches(monday) {
		t.Error("expected match on scheduled minute")
	}
	if s.Matches(monday.Add(time.Minute)) {
		t.Error("must not match a minute later")
	}
	if s.Matches(monday.AddDate(0, 0, 1)) {
		t.Error("must not match on an unscheduled day")
	}
}
