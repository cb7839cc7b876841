package requestpool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for pending-request persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create persists a new PendingRequest for the given origin and
	// command and returns it with a freshly generated request ID.
	Create(ctx context.Context, origin Origin, cmd Command) (*PendingRequest, error)

	// Get retrieves a pending request by ID.
	// Returns ErrRequestNotFound if no such row exists.
	Get(ctx context.Context, requestID string) (*PendingRequest, error)

	// Take atomically retrieves and deletes a pending request. Of two
	// concurrent Take calls for the same ID, exactly one succeeds and
	// the other observes ErrRequestNotFound.
	Take(ctx context.Context, requestID string) (*PendingRequest, error)

	// Delete removes a pending request. Deleting a missing ID is not an
	// error at this layer; callers decide what absence means.
	Delete(ctx context.Context, requestID string) error

	// SweepExpired deletes every row older than maxAge and returns the
	// number reclaimed. Pure garbage collection: callers need not act
	// on the result.
	SweepExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// HasPendingForAutomation reports whether any row carries the given
	// automation origin, that is, whether a dispatched step is still
	// waiting for its acknowledgement.
	HasPendingForAutomation(ctx context.Context, automationID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const pendingColumns = `request_id, created_at, origin_kind, connection_id, automation_id, command`

// Create persists a new PendingRequest.
func (r *SQLiteRepository) Create(ctx context.Context, origin Origin, cmd Command) (*PendingRequest, error) {
	if !origin.Valid() {
		return nil, ErrInvalidOrigin
	}

	req := &PendingRequest{
		RequestID: NewRequestID(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Origin:    origin,
		Command:   cmd,
	}

	cmdJSON, err := json.Marshal(req.Command)
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	query := `
		INSERT INTO pending_requests (` + pendingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		req.RequestID,
		req.CreatedAt.Format(time.RFC3339),
		string(req.Origin.Kind),
		nullableString(req.Origin.ConnectionID),
		nullableString(req.Origin.AutomationID),
		string(cmdJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting pending request: %w", err)
	}
	return req, nil
}

// Get retrieves a pending request by ID.
func (r *SQLiteRepository) Get(ctx context.Context, requestID string) (*PendingRequest, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_requests WHERE request_id = ?`

	req, err := scanPendingRequest(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("querying pending request: %w", err)
	}
	return req, nil
}

// Take atomically retrieves and deletes a pending request.
//
// The read and the conditional delete run in one transaction; the delete's
// affected-row count decides the winner when two acknowledgements race.
func (r *SQLiteRepository) Take(ctx context.Context, requestID string) (*PendingRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	query := `SELECT ` + pendingColumns + ` FROM pending_requests WHERE request_id = ?`
	req, err := scanPendingRequest(tx.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("querying pending request: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM pending_requests WHERE request_id = ?", requestID)
	if err != nil {
		return nil, fmt.Errorf("deleting pending request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrRequestNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing take: %w", err)
	}
	return req, nil
}

// Delete removes a pending request. Missing rows are not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, requestID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_requests WHERE request_id = ?", requestID); err != nil {
		return fmt.Errorf("deleting pending request: %w", err)
	}
	return nil
}

// SweepExpired deletes every row older than maxAge.
//
// Timestamps are stored as RFC3339 UTC text, so a lexical comparison
// against the cutoff is a chronological one.
func (r *SQLiteRepository) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM pending_requests WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(affected), nil
}

// HasPendingForAutomation reports whether a row with this automation
// origin exists.
func (r *SQLiteRepository) HasPendingForAutomation(ctx context.Context, automationID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pending_requests WHERE automation_id = ?)",
		automationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending automation request: %w", err)
	}
	return exists == 1, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingRequest(scanner rowScanner) (*PendingRequest, error) {
	var req PendingRequest
	var createdAt, originKind, cmdJSON string
	var connectionID, automationID sql.NullString

	err := scanner.Scan(
		&req.RequestID,
		&createdAt,
		&originKind,
		&connectionID,
		&automationID,
		&cmdJSON,
	)
	if err != nil {
		return nil, err
	}

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		req.CreatedAt = t
	}

	req.Origin.Kind = OriginKind(originKind)
	if connectionID.Valid {
		req.Origin.ConnectionID = connectionID.String
	}
	if automationID.Valid {
		req.Origin.AutomationID = automationID.String
	}

	if err := json.Unmarshal([]byte(cmdJSON), &req.Command); err != nil {
		return nil, fmt.Errorf("unmarshalling command: %w", err)
	}

	return &req, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
