package mqttbridge

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/dispatch"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/infrastructure/mqtt"
)

// fakeBroker captures publishes and delivers injected messages to
// registered handlers.
type fakeBroker struct {
	mu       sync.Mutex
	messages map[string][]byte
	handlers map[string]mqtt.MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		messages: make(map[string][]byte),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[topic] = payload
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// deliver invokes the handler subscribed to pattern with a message.
func (f *fakeBroker) deliver(t *testing.T, pattern, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[pattern]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no handler for %s", pattern)
	}
	return handler(topic, payload)
}

// fakeRouter records acknowledgements.
type fakeRouter struct {
	mu   sync.Mutex
	acks []dispatch.DeviceAck
	err  error
}

func (r *fakeRouter) HandleAck(_ context.Context, ack dispatch.DeviceAck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.acks = append(r.acks, ack)
	return nil
}

func setupDevices(t *testing.T) device.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id            TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL DEFAULT '',
			sort_order    INTEGER NOT NULL DEFAULT 0,
			connection_id TEXT,
			pairing_hash  TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	repo := device.NewSQLiteRepository(db)
	if err := repo.Create(context.Background(), &device.Device{ID: "AA:BB:CC:DD:EE:FF"}); err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	return repo
}

func setupBridge(t *testing.T) (*Bridge, *fakeBroker, *fakeRouter, device.Repository) {
	t.Helper()
	broker := newFakeBroker()
	router := &fakeRouter{}
	devices := setupDevices(t)
	bridge := New(broker, devices, router, 1, logging.Default())
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return bridge, broker, router, devices
}

func TestPushPublishesToCommandTopic(t *testing.T) {
	bridge, broker, _, _ := setupBridge(t)

	payload := []byte(`{"action":"cmd"}`)
	if err := bridge.Push(context.Background(), "mqtt:AA:BB:CC:DD:EE:FF", payload); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	got := broker.messages["irbridge/command/AA:BB:CC:DD:EE:FF"]
	if string(got) != string(payload) {
		t.Errorf("payload not published, got %q", got)
	}
}

func TestPushRejectsForeignHandle(t *testing.T) {
	bridge, _, _, _ := setupBridge(t)

	err := bridge.Push(context.Background(), "ws:conn-1", nil)
	if !errors.Is(err, dispatch.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestAckRoutedToRouter(t *testing.T) {
	_, broker, router, _ := setupBridge(t)

	err := broker.deliver(t, "irbridge/ack/+", "irbridge/ack/AA:BB:CC:DD:EE:FF",
		[]byte(`{"action":"ack","requestId":"abc_123"}`))
	if err != nil {
		t.Fatalf("ack handler failed: %v", err)
	}

	if len(router.acks) != 1 || router.acks[0].RequestID != "abc_123" {
		t.Errorf("ack not routed: %+v", router.acks)
	}
}

func TestStaleAckSwallowed(t *testing.T) {
	_, broker, router, _ := setupBridge(t)
	router.err = dispatch.ErrStaleRequest

	err := broker.deliver(t, "irbridge/ack/+", "irbridge/ack/AA:BB:CC:DD:EE:FF",
		[]byte(`{"action":"ack","requestId":"expired"}`))
	if err != nil {
		t.Errorf("stale ack must not surface an error, got %v", err)
	}
}

func TestMalformedAckRejected(t *testing.T) {
	_, broker, router, _ := setupBridge(t)

	if err := broker.deliver(t, "irbridge/ack/+", "irbridge/ack/X", []byte(`not json`)); err == nil {
		t.Error("expected error for malformed ack")
	}
	if err := broker.deliver(t, "irbridge/ack/+", "irbridge/ack/X", []byte(`{"action":"ack"}`)); err == nil {
		t.Error("expected error for ack without request id")
	}
	if len(router.acks) != 0 {
		t.Errorf("malformed acks must not reach the router: %+v", router.acks)
	}
}

func TestPresenceUpdatesRegistry(t *testing.T) {
	_, broker, _, devices := setupBridge(t)
	ctx := context.Background()

	err := broker.deliver(t, "irbridge/status/+", "irbridge/status/AA:BB:CC:DD:EE:FF",
		[]byte(`{"status":"online"}`))
	if err != nil {
		t.Fatalf("status handler failed: %v", err)
	}

	d, err := devices.GetByID(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !d.Online() || *d.ConnectionID != "mqtt:AA:BB:CC:DD:EE:FF" {
		t.Errorf("expected mqtt handle recorded, got %+v", d)
	}

	// Bare-word payloads from older firmware still count.
	err = broker.deliver(t, "irbridge/status/+", "irbridge/status/AA:BB:CC:DD:EE:FF",
		[]byte(`offline`))
	if err != nil {
		t.Fatalf("status handler failed: %v", err)
	}
	d, _ = devices.GetByID(ctx, "AA:BB:CC:DD:EE:FF")
	if d.Online() {
		t.Error("expected device offline after LWT-style payload")
	}
}

func TestPresenceFromUnregisteredDevice(t *testing.T) {
	_, broker, _, _ := setupBridge(t)

	err := broker.deliver(t, "irbridge/status/+", "irbridge/status/11:22:33:44:55:66",
		[]byte(`{"status":"online"}`))
	if err != nil {
		t.Errorf("unregistered presence must be ignored, got %v", err)
	}
}
