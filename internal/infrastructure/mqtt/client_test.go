package mqtt

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// The tests below exercise argument validation and state handling
// without a broker. IsConnected short-circuits on the tracked flag, so
// a zero Client never touches the nil paho client.

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
	if err := c.Publish("irbridge/command/x", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("expected ErrInvalidQoS, got %v", err)
	}
	oversize := bytes.Repeat([]byte("a"), maxPayloadSize+1)
	if err := c.Publish("irbridge/command/x", oversize, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("expected ErrPublishFailed for oversize payload, got %v", err)
	}
	if err := c.Publish("irbridge/command/x", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
	if err := c.Subscribe("irbridge/ack/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("expected ErrInvalidQoS, got %v", err)
	}
	if err := c.Subscribe("irbridge/ack/+", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("expected ErrSubscribeFailed for nil handler, got %v", err)
	}
	if err := c.Subscribe("irbridge/ack/+", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscribe must not be tracked")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close on never-connected client: %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestHealthCheckCancelledContext(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	c := &Client{}
	logged := &captureLogger{}
	c.SetLogger(logged)

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})

	// Must not propagate the panic out of the delivery goroutine.
	wrapped(nil, stubMessage{topic: "irbridge/ack/dev1", payload: []byte("{}")})

	if len(logged.errors) != 1 {
		t.Fatalf("expected 1 logged panic, got %d", len(logged.errors))
	}
}

func TestWrapHandlerLogsHandlerError(t *testing.T) {
	c := &Client{}
	logged := &captureLogger{}
	c.SetLogger(logged)

	wrapped := c.wrapHandler(func(string, []byte) error {
		return errors.New("bad frame")
	})

	wrapped(nil, stubMessage{topic: "irbridge/ack/dev1", payload: []byte("not json")})

	if len(logged.warnings) != 1 {
		t.Fatalf("expected 1 logged warning, got %d", len(logged.warnings))
	}
}

type captureLogger struct {
	errors   []string
	warnings []string
}

func (l *captureLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.warnings = append(l.warnings, msg) }

// stubMessage satisfies paho's Message interface for handler tests.
type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 0 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}
