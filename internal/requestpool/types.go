package requestpool

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

// CommandKind is the closed set of commands a requester may issue.
// Unknown values are rejected at the boundary, never passed through.
type CommandKind string

const (
	// CommandRead asks the device to learn a new IR code for a button.
	CommandRead CommandKind = "read"

	// CommandExecute asks the device to emit a stored IR code.
	CommandExecute CommandKind = "execute"
)

// Valid reports whether k is a known command kind.
func (k CommandKind) Valid() bool {
	return k == CommandRead || k == CommandExecute
}

// Command is the durable copy of an inbound request. It is stored with
// the correlation row so the acknowledgement router can reconstruct the
// original context, since the device reply carries only the request ID.
// ButtonState rides along on read commands: the requester declares the
// toggle state the learned button will represent.
type Command struct {
	Kind        CommandKind `json:"kind"`
	RemoteName  string      `json:"remote_name"`
	ButtonName  string      `json:"button_name"`
	ButtonState string      `json:"button_state,omitempty"`
}

// OriginKind distinguishes who is waiting on a pending request.
type OriginKind string

const (
	// OriginClient marks a request issued by a connected human client.
	OriginClient OriginKind = "client"

	// OriginAutomation marks a request issued by an automation step.
	OriginAutomation OriginKind = "automation"
)

// Origin identifies where a command came from and therefore where its
// result must go. It is an explicit tagged union: exactly one of
// ConnectionID or AutomationID is meaningful, selected by Kind.
type Origin struct {
	Kind         OriginKind `json:"kind"`
	ConnectionID string     `json:"connection_id,omitempty"`
	AutomationID string     `json:"automation_id,omitempty"`
}

// ClientOrigin returns an Origin for a connected client.
func ClientOrigin(connectionID string) Origin {
	return Origin{Kind: OriginClient, ConnectionID: connectionID}
}

// AutomationOrigin returns an Origin for an automation step.
func AutomationOrigin(automationID string) Origin {
	return Origin{Kind: OriginAutomation, AutomationID: automationID}
}

// Valid reports whether the origin's tag and payload agree.
func (o Origin) Valid() bool {
	switch o.Kind {
	case OriginClient:
		return o.ConnectionID != "" && o.AutomationID == ""
	case OriginAutomation:
		return o.AutomationID != "" && o.ConnectionID == ""
	default:
		return false
	}
}

// PendingRequest is one in-flight correlation row.
type PendingRequest struct {
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
	Origin    Origin    `json:"origin"`
	Command   Command   `json:"command"`
}

const idPrefixLen = 3

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRequestID generates a fresh correlation ID: a short random prefix
// followed by a nanosecond timestamp. The timestamp makes collisions
// between concurrent creators effectively impossible without any
// coordination; the prefix covers same-nanosecond ties.
func NewRequestID() string {
	buf := make([]byte, idPrefixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a fixed prefix rather than panic in the dispatch path.
		return "req_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return fmt.Sprintf("%s_%d", buf, time.Now().UnixNano())
}
