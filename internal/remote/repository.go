package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for remote persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByName retrieves a remote by its unique name.
	// Returns ErrRemoteNotFound if the remote does not exist.
	GetByName(ctx context.Context, name string) (*Remote, error)

	// List retrieves all remotes ordered by sort order.
	List(ctx context.Context) ([]Remote, error)

	// ListByDevice retrieves all remotes bound to a specific device.
	ListByDevice(ctx context.Context, deviceID string) ([]Remote, error)

	// Create inserts a new remote.
	// Returns ErrRemoteExists if a remote with the same name already exists.
	Create(ctx context.Context, remote *Remote) error

	// Update modifies an existing remote.
	// Returns ErrRemoteNotFound if the remote does not exist.
	Update(ctx context.Context, remote *Remote) error

	// Delete removes a remote by name.
	// Returns ErrRemoteNotFound if the remote does not exist.
	Delete(ctx context.Context, name string) error

	// AppendButton adds a learned button to a remote, enforcing name
	// uniqueness and code width in the same transaction that reads the
	// current button list.
	AppendButton(ctx context.Context, remoteName string, button Button) error

	// RemoveButton deletes a button from a remote.
	// Returns ErrButtonNotFound if the remote has no such button.
	RemoveButton(ctx context.Context, remoteName, buttonName string) error

	// IncrementClickCounter bumps the remote's usage counter by one.
	IncrementClickCounter(ctx context.Context, remoteName string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const remoteColumns = `name, device_id, protocol, command_size, buttons,
			click_counter, sort_order, category, created_at, updated_at`

// GetByName retrieves a remote by its unique name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Remote, error) {
	query := `SELECT ` + remoteColumns + ` FROM remotes WHERE name = ?`

	remote, err := scanRemote(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRemoteNotFound
		}
		return nil, fmt.Errorf("querying remote by name: %w", err)
	}
	return remote, nil
}

// List retrieves all remotes ordered by sort order, then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Remote, error) {
	query := `SELECT ` + remoteColumns + ` FROM remotes ORDER BY sort_order, name`
	return r.queryRemotes(ctx, query)
}

// ListByDevice retrieves all remotes bound to a specific device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Remote, error) {
	query := `SELECT ` + remoteColumns + ` FROM remotes WHERE device_id = ? ORDER BY sort_order, name`
	return r.queryRemotes(ctx, query, deviceID)
}

// Create inserts a new remote.
func (r *SQLiteRepository) Create(ctx context.Context, remote *Remote) error {
	if err := ValidateRemote(remote); err != nil {
		return err
	}
	stampButtonWidths(remote)

	buttons, err := marshalButtons(remote.Buttons)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	remote.CreatedAt = now
	remote.UpdatedAt = now

	query := `
		INSERT INTO remotes (` + remoteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		remote.Name, remote.DeviceID, remote.Protocol, remote.CommandSize,
		buttons, remote.ClickCounter, remote.SortOrder, remote.Category,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRemoteExists
		}
		return fmt.Errorf("inserting remote: %w", err)
	}
	return nil
}

// Update modifies an existing remote.
func (r *SQLiteRepository) Update(ctx context.Context, remote *Remote) error {
	if err := ValidateRemote(remote); err != nil {
		return err
	}
	stampButtonWidths(remote)

	buttons, err := marshalButtons(remote.Buttons)
	if err != nil {
		return err
	}

	remote.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE remotes
		SET device_id = ?, protocol = ?, command_size = ?, buttons = ?,
			click_counter = ?, sort_order = ?, category = ?, updated_at = ?
		WHERE name = ?`

	result, err := r.db.ExecContext(ctx, query,
		remote.DeviceID, remote.Protocol, remote.CommandSize, buttons,
		remote.ClickCounter, remote.SortOrder, remote.Category,
		remote.UpdatedAt.Format(time.RFC3339), remote.Name,
	)
	if err != nil {
		return fmt.Errorf("updating remote: %w", err)
	}
	return requireAffected(result, ErrRemoteNotFound)
}

// Delete removes a remote by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM remotes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting remote: %w", err)
	}
	return requireAffected(result, ErrRemoteNotFound)
}

// AppendButton adds a learned button to a remote.
//
// The current button list is read and rewritten inside one transaction
// so a concurrent append cannot slip a duplicate name past the check.
func (r *SQLiteRepository) AppendButton(ctx context.Context, remoteName string, button Button) error {
	if err := ValidateButtonName(button.Name); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var buttonsJSON string
	var commandSize int
	row := tx.QueryRowContext(ctx,
		"SELECT buttons, command_size FROM remotes WHERE name = ?", remoteName)
	if err := row.Scan(&buttonsJSON, &commandSize); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRemoteNotFound
		}
		return fmt.Errorf("querying remote buttons: %w", err)
	}

	if err := ValidateCode(button.Code, commandSize); err != nil {
		return err
	}
	button.CommandSize = commandSize

	buttons, err := unmarshalButtons(buttonsJSON)
	if err != nil {
		return err
	}
	for _, b := range buttons {
		if b.Name == button.Name {
			return fmt.Errorf("%w: %q", ErrButtonExists, button.Name)
		}
	}
	buttons = append(buttons, button)

	if err := r.writeButtons(ctx, tx, remoteName, buttons); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing button append: %w", err)
	}
	return nil
}

// RemoveButton deletes a button from a remote.
func (r *SQLiteRepository) RemoveButton(ctx context.Context, remoteName, buttonName string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var buttonsJSON string
	row := tx.QueryRowContext(ctx, "SELECT buttons FROM remotes WHERE name = ?", remoteName)
	if err := row.Scan(&buttonsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRemoteNotFound
		}
		return fmt.Errorf("querying remote buttons: %w", err)
	}

	buttons, err := unmarshalButtons(buttonsJSON)
	if err != nil {
		return err
	}
	kept := buttons[:0]
	for _, b := range buttons {
		if b.Name != buttonName {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(buttons) {
		return fmt.Errorf("%w: %q", ErrButtonNotFound, buttonName)
	}

	if err := r.writeButtons(ctx, tx, remoteName, kept); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing button removal: %w", err)
	}
	return nil
}

// IncrementClickCounter bumps the remote's usage counter by one.
// The increment happens in SQL so concurrent clicks never lose updates.
func (r *SQLiteRepository) IncrementClickCounter(ctx context.Context, remoteName string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE remotes SET click_counter = click_counter + 1, updated_at = ? WHERE name = ?",
		time.Now().UTC().Format(time.RFC3339), remoteName)
	if err != nil {
		return fmt.Errorf("incrementing click counter: %w", err)
	}
	return requireAffected(result, ErrRemoteNotFound)
}

func (r *SQLiteRepository) writeButtons(ctx context.Context, tx *sql.Tx, remoteName string, buttons []Button) error {
	data, err := marshalButtons(buttons)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE remotes SET buttons = ?, updated_at = ? WHERE name = ?",
		data, time.Now().UTC().Format(time.RFC3339), remoteName)
	if err != nil {
		return fmt.Errorf("updating remote buttons: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryRemotes(ctx context.Context, query string, args ...any) ([]Remote, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying remotes: %w", err)
	}
	defer rows.Close()

	var remotes []Remote
	for rows.Next() {
		remote, err := scanRemote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning remote: %w", err)
		}
		remotes = append(remotes, *remote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating remotes: %w", err)
	}
	return remotes, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemote(scanner rowScanner) (*Remote, error) {
	var remote Remote
	var buttonsJSON, createdAt, updatedAt string

	err := scanner.Scan(
		&remote.Name, &remote.DeviceID, &remote.Protocol, &remote.CommandSize,
		&buttonsJSON, &remote.ClickCounter, &remote.SortOrder, &remote.Category,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	remote.Buttons, err = unmarshalButtons(buttonsJSON)
	if err != nil {
		return nil, err
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		remote.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		remote.UpdatedAt = t
	}
	return &remote, nil
}

// stampButtonWidths fills the code width on buttons supplied with the
// remote itself. Validation already rejected any conflicting value.
func stampButtonWidths(remote *Remote) {
	for i := range remote.Buttons {
		if remote.Buttons[i].CommandSize == 0 {
			remote.Buttons[i].CommandSize = remote.CommandSize
		}
	}
}

func marshalButtons(buttons []Button) (string, error) {
	if buttons == nil {
		buttons = []Button{}
	}
	data, err := json.Marshal(buttons)
	if err != nil {
		return "", fmt.Errorf("marshalling buttons: %w", err)
	}
	return string(data), nil
}

func unmarshalButtons(data string) ([]Button, error) {
	if data == "" {
		return []Button{}, nil
	}
	var buttons []Button
	if err := json.Unmarshal([]byte(data), &buttons); err != nil {
		return nil, fmt.Errorf("unmarshalling buttons: %w", err)
	}
	return buttons, nil
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

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
