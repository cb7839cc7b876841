package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for automation persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves an automation by ID.
	// Returns ErrAutomationNotFound if the automation does not exist.
	GetByID(ctx context.Context, id string) (*Automation, error)

	// List retrieves all automations ordered by name.
	List(ctx context.Context) ([]Automation, error)

	// ListEnabled retrieves all enabled automations.
	ListEnabled(ctx context.Context) ([]Automation, error)

	// Create inserts a new automation, assigning an ID if empty.
	// Returns ErrAutomationExists if the ID is already taken.
	Create(ctx context.Context, automation *Automation) error

	// Update modifies an existing automation's definition. TotalSteps
	// is recomputed from the step list.
	// Returns ErrAutomationNotFound if the automation does not exist.
	Update(ctx context.Context, automation *Automation) error

	// Delete removes an automation by ID.
	// Returns ErrAutomationNotFound if the automation does not exist.
	Delete(ctx context.Context, id string) error

	// SetProgress writes the step counter and lastRunAt, clearing any
	// error fields. Used by the engine on every successful advance.
	SetProgress(ctx context.Context, id string, counter int, lastRunAt time.Time) error

	// SetError flags the automation for the operator without touching
	// the counter: the failing step stays visible.
	SetError(ctx context.Context, id, message string) error

	// ResetStale force-resets every automation stuck mid-cycle: counter
	// nonzero and lastRunAt older than maxAge means a step's
	// acknowledgement never arrived. The counter is zeroed and the
	// error flag raised so the operator can see the interrupted run.
	// Returns the number of automations reset.
	ResetStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const automationColumns = `id, name, hour, minute, days, steps, executed_counter,
			total_steps, state, last_run_at, error_message, has_error, created_at, updated_at`

// GetByID retrieves an automation by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = ?`

	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAutomationNotFound
		}
		return nil, fmt.Errorf("querying automation by id: %w", err)
	}
	return automation, nil
}

// List retrieves all automations ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations ORDER BY name`
	return r.queryAutomations(ctx, query)
}

// ListEnabled retrieves all enabled automations.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE state = ? ORDER BY name`
	return r.queryAutomations(ctx, query, string(StateEnabled))
}

// Create inserts a new automation.
func (r *SQLiteRepository) Create(ctx context.Context, automation *Automation) error {
	if automation.ID == "" {
		automation.ID = uuid.New().String()
	}
	if automation.State == "" {
		automation.State = StateEnabled
	}
	automation.TotalSteps = len(automation.Steps)
	if err := Validate(automation); err != nil {
		return err
	}

	days, steps, err := marshalLists(automation)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	automation.CreatedAt = now
	automation.UpdatedAt = now

	query := `
		INSERT INTO automations (` + automationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID, automation.Name,
		automation.Schedule.Hour, automation.Schedule.Minute, days, steps,
		automation.ExecutedCounter, automation.TotalSteps, string(automation.State),
		nullableTime(automation.LastRunAt), automation.ErrorMessage, automation.HasError,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAutomationExists
		}
		return fmt.Errorf("inserting automation: %w", err)
	}
	return nil
}

// Update modifies an existing automation's definition.
func (r *SQLiteRepository) Update(ctx context.Context, automation *Automation) error {
	automation.TotalSteps = len(automation.Steps)
	if err := Validate(automation); err != nil {
		return err
	}

	days, steps, err := marshalLists(automation)
	if err != nil {
		return err
	}

	automation.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automations
		SET name = ?, hour = ?, minute = ?, days = ?, steps = ?,
			executed_counter = ?, total_steps = ?, state = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		automation.Name, automation.Schedule.Hour, automation.Schedule.Minute,
		days, steps, automation.ExecutedCounter, automation.TotalSteps,
		string(automation.State), automation.UpdatedAt.Format(time.RFC3339),
		automation.ID,
	)
	if err != nil {
		return fmt.Errorf("updating automation: %w", err)
	}
	return requireAffected(result, ErrAutomationNotFound)
}

// Delete removes an automation by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting automation: %w", err)
	}
	return requireAffected(result, ErrAutomationNotFound)
}

// SetProgress writes the step counter and lastRunAt, clearing errors.
func (r *SQLiteRepository) SetProgress(ctx context.Context, id string, counter int, lastRunAt time.Time) error {
	query := `
		UPDATE automations
		SET executed_counter = ?, last_run_at = ?, error_message = '',
			has_error = 0, updated_at = ?
		WHERE id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		counter, lastRunAt.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return fmt.Errorf("updating automation progress: %w", err)
	}
	return requireAffected(result, ErrAutomationNotFound)
}

// SetError flags the automation for the operator.
func (r *SQLiteRepository) SetError(ctx context.Context, id, message string) error {
	query := `
		UPDATE automations
		SET error_message = ?, has_error = 1, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		message, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("recording automation error: %w", err)
	}
	return requireAffected(result, ErrAutomationNotFound)
}

// ResetStale force-resets automations stuck mid-cycle.
func (r *SQLiteRepository) ResetStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)

	query := `
		UPDATE automations
		SET executed_counter = 0, has_error = 1,
			error_message = 'run interrupted: step acknowledgement never arrived',
			updated_at = ?
		WHERE executed_counter != 0 AND last_run_at IS NOT NULL AND last_run_at < ?`

	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339), cutoff)
	if err != nil {
		return 0, fmt.Errorf("resetting stale automations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *SQLiteRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying automations: %w", err)
	}
	defer rows.Close()

	var automations []Automation
	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning automation: %w", err)
		}
		automations = append(automations, *automation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automations: %w", err)
	}
	return automations, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(scanner rowScanner) (*Automation, error) {
	var a Automation
	var days, steps, state, createdAt, updatedAt string
	var lastRunAt sql.NullString

	err := scanner.Scan(
		&a.ID, &a.Name, &a.Schedule.Hour, &a.Schedule.Minute, &days, &steps,
		&a.ExecutedCounter, &a.TotalSteps, &state, &lastRunAt,
		&a.ErrorMessage, &a.HasError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.State = State(state)
	if err := json.Unmarshal([]byte(days), &a.Schedule.Days); err != nil {
		return nil, fmt.Errorf("unmarshalling days: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &a.Steps); err != nil {
		return nil, fmt.Errorf("unmarshalling steps: %w", err)
	}
	if lastRunAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, lastRunAt.String); parseErr == nil {
			a.LastRunAt = &t
		}
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		a.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		a.UpdatedAt = t
	}
	return &a, nil
}

func marshalLists(a *Automation) (days, steps string, err error) {
	d, err := json.Marshal(a.Schedule.Days)
	if err != nil {
		return "", "", fmt.Errorf("marshalling days: %w", err)
	}
	s, err := json.Marshal(a.Steps)
	if err != nil {
		return "", "", fmt.Errorf("marshalling steps: %w", err)
	}
	return string(d), string(s), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
