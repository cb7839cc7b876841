package requestpool

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE pending_requests (
			request_id    TEXT PRIMARY KEY,
			created_at    TEXT NOT NULL,
			origin_kind   TEXT NOT NULL,
			connection_id TEXT,
			automation_id TEXT,
			command       TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	cmd := Command{Kind: CommandExecute, RemoteName: "living-room-tv", ButtonName: "power"}
	req, err := repo.Create(ctx, ClientOrigin("conn-1"), cmd)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.RequestID == "" {
		t.Fatal("expected non-empty request ID")
	}

	got, err := repo.Get(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Origin.Kind != OriginClient || got.Origin.ConnectionID != "conn-1" {
		t.Errorf("origin mismatch: got %+v", got.Origin)
	}
	if got.Command != cmd {
		t.Errorf("command mismatch: got %+v, want %+v", got.Command, cmd)
	}
}

func TestCreateRejectsInvalidOrigin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.Create(context.Background(), Origin{}, Command{Kind: CommandRead, RemoteName: "r"})
	if !errors.Is(err, ErrInvalidOrigin) {
		t.Errorf("expected ErrInvalidOrigin, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestTakeRemovesRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	req, err := repo.Create(ctx, AutomationOrigin("auto-1"), Command{Kind: CommandExecute, RemoteName: "fan", ButtonName: "speed"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	taken, err := repo.Take(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if taken.Origin.AutomationID != "auto-1" {
		t.Errorf("expected automation origin, got %+v", taken.Origin)
	}

	// A second take observes the row as gone.
	if _, err := repo.Take(ctx, req.RequestID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound on second take, got %v", err)
	}
	if _, err := repo.Get(ctx, req.RequestID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected row deleted after take, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	req, err := repo.Create(ctx, ClientOrigin("conn-2"), Command{Kind: CommandRead, RemoteName: "soundbar"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.Delete(ctx, req.RequestID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, req.RequestID); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	insert := func(id string, age time.Duration) {
		t.Helper()
		createdAt := time.Now().UTC().Add(-age).Format(time.RFC3339)
		_, err := db.Exec(`
			INSERT INTO pending_requests (request_id, created_at, origin_kind, connection_id, automation_id, command)
			VALUES (?, ?, 'client', 'conn-1', NULL, '{"kind":"execute","remote_name":"tv","button_name":"power"}')`,
			id, createdAt)
		if err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
	}

	insert("old-1", 70*time.Second)
	insert("old-2", 41*time.Second)
	insert("fresh", 10*time.Second)

	removed, err := repo.SweepExpired(ctx, 40*time.Second)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 rows reclaimed, got %d", removed)
	}

	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh row should survive sweep: %v", err)
	}
	if _, err := repo.Get(ctx, "old-1"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("expected old-1 swept, got %v", err)
	}
}

func TestHasPendingForAutomation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if pending, err := repo.HasPendingForAutomation(ctx, "auto-1"); err != nil || pending {
		t.Fatalf("empty pool must report no pending step, got (%v, %v)", pending, err)
	}

	// A client-origin row for some other requester must not count.
	if _, err := repo.Create(ctx, ClientOrigin("conn-1"), Command{Kind: CommandExecute, RemoteName: "tv", ButtonName: "power"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if pending, _ := repo.HasPendingForAutomation(ctx, "auto-1"); pending {
		t.Error("client-origin row must not count as an automation step")
	}

	req, err := repo.Create(ctx, AutomationOrigin("auto-1"), Command{Kind: CommandExecute, RemoteName: "tv", ButtonName: "power"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if pending, _ := repo.HasPendingForAutomation(ctx, "auto-1"); !pending {
		t.Error("expected outstanding step reported")
	}
	if pending, _ := repo.HasPendingForAutomation(ctx, "auto-2"); pending {
		t.Error("other automations must not see auto-1's step")
	}

	// Resolving the request clears the flag.
	if _, err := repo.Take(ctx, req.RequestID); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if pending, _ := repo.HasPendingForAutomation(ctx, "auto-1"); pending {
		t.Error("resolved step must no longer count as outstanding")
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if seen[id] {
			t.Fatalf("duplicate request ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestCommandKindValid(t *testing.T) {
	tests := []struct {
		kind  CommandKind
		valid bool
	}{
		{CommandRead, true},
		{CommandExecute, true},
		{CommandKind("delete"), false},
		{CommandKind(""), false},
	}
	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.valid {
			t.Errorf("CommandKind(%q).Valid() = %v, want %v", tt.kind, got, tt.valid)
		}
	}
}

func TestOriginValid(t *testing.T) {
	tests := []struct {
		name   string
		origin Origin
		valid  bool
	}{
		{"client with connection", ClientOrigin("conn-1"), true},
		{"automation with id", AutomationOrigin("auto-1"), true},
		{"client without connection", Origin{Kind: OriginClient}, false},
		{"automation without id", Origin{Kind: OriginAutomation}, false},
		{"both ids set", Origin{Kind: OriginClient, ConnectionID: "c", AutomationID: "a"}, false},
		{"unknown kind", Origin{Kind: "cron", ConnectionID: "c"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.origin.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
