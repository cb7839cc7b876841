package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its MAC address.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByConnection retrieves the device holding a given connection ID.
	// Returns ErrDeviceNotFound if no device holds it.
	GetByConnection(ctx context.Context, connectionID string) (*Device, error)

	// List retrieves all devices ordered by sort order.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the MAC address is already registered.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's display name and sort order.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by MAC address.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// SetConnection records a live connection for a device, replacing
	// any previous one.
	SetConnection(ctx context.Context, id, connectionID string) error

	// ClearConnection removes the device's connection ID if it still
	// matches the given one. A stale disconnect for a superseded
	// connection is a no-op.
	ClearConnection(ctx context.Context, id, connectionID string) error

	// ClearAllConnections wipes every connection ID. Called once at
	// startup: no channel survives a process restart.
	ClearAllConnections(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, display_name, sort_order, connection_id, pairing_hash, created_at, updated_at`

// GetByID retrieves a device by its MAC address.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByConnection retrieves the device holding a given connection ID.
func (r *SQLiteRepository) GetByConnection(ctx context.Context, connectionID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE connection_id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by connection: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by sort order, then ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY sort_order, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	id, err := NormalizeMAC(device.ID)
	if err != nil {
		return err
	}
	device.ID = id

	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, NULL, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID, device.DisplayName, device.SortOrder, device.PairingHash,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device's display name and sort order.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET display_name = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.DisplayName, device.SortOrder,
		device.UpdatedAt.Format(time.RFC3339), device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireAffected(result, ErrDeviceNotFound)
}

// Delete removes a device by MAC address.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(result, ErrDeviceNotFound)
}

// SetConnection records a live connection for a device.
func (r *SQLiteRepository) SetConnection(ctx context.Context, id, connectionID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET connection_id = ?, updated_at = ? WHERE id = ?",
		connectionID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting device connection: %w", err)
	}
	return requireAffected(result, ErrDeviceNotFound)
}

// ClearConnection removes the device's connection ID if it still matches.
//
// The WHERE clause compares the stored connection ID, so a disconnect
// arriving after a reconnect cannot knock out the newer channel.
func (r *SQLiteRepository) ClearConnection(ctx context.Context, id, connectionID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE devices SET connection_id = NULL, updated_at = ? WHERE id = ? AND connection_id = ?",
		time.Now().UTC().Format(time.RFC3339), id, connectionID)
	if err != nil {
		return fmt.Errorf("clearing device connection: %w", err)
	}
	return nil
}

// ClearAllConnections wipes every connection ID.
func (r *SQLiteRepository) ClearAllConnections(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE devices SET connection_id = NULL, updated_at = ? WHERE connection_id IS NOT NULL",
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("clearing device connections: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var device Device
	var connectionID sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&device.ID, &device.DisplayName, &device.SortOrder,
		&connectionID, &device.PairingHash,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if connectionID.Valid {
		device.ConnectionID = &connectionID.String
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		device.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		device.UpdatedAt = t
	}
	return &device, nil
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
