package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/irbridge/core/internal/requestpool"
)

// Frame actions understood on the wire.
const (
	ActionCmd   = "cmd"
	ActionAck   = "ack"
	ActionError = "error"
)

// DeviceCommand is the payload pushed to a bridge device. CommandSize
// tells the device how many bits to capture (read) or emit (execute);
// Code is present only for execute.
type DeviceCommand struct {
	Action      string                  `json:"action"`
	Cmd         requestpool.CommandKind `json:"cmd"`
	RequestID   string                  `json:"requestId"`
	CommandSize int                     `json:"commandSize"`
	Code        *uint64                 `json:"code,omitempty"`
}

// DeviceAck is the acknowledgement a bridge device sends back. Code is
// present only when acknowledging a read: the freshly captured IR code.
type DeviceAck struct {
	Action    string  `json:"action"`
	RequestID string  `json:"requestId"`
	Code      *uint64 `json:"code,omitempty"`
}

// ClientCommand is an inbound command frame from a human-facing client.
// ButtonState accompanies read commands only: the toggle state the
// learned button will stand for.
type ClientCommand struct {
	Action      string                  `json:"action"`
	Cmd         requestpool.CommandKind `json:"cmd"`
	RemoteName  string                  `json:"remoteName"`
	ButtonName  string                  `json:"buttonName"`
	ButtonState string                  `json:"buttonState,omitempty"`
}

// ClientAck is the success frame pushed back to the original requester.
type ClientAck struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId"`
	Body      string `json:"body"`
}

// ErrorFrame carries a human-readable failure message to a requester.
type ErrorFrame struct {
	Action string `json:"action"`
	Body   string `json:"body"`
}

// EncodeDeviceCommand serializes the device-directed payload.
func EncodeDeviceCommand(cmd DeviceCommand) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding device command: %w", err)
	}
	return data, nil
}

// EncodeClientAck serializes a success frame for the requester.
func EncodeClientAck(requestID string) []byte {
	data, _ := json.Marshal(ClientAck{Action: ActionAck, RequestID: requestID, Body: "success"})
	return data
}

// EncodeErrorFrame serializes an error frame for the requester.
func EncodeErrorFrame(message string) []byte {
	data, _ := json.Marshal(ErrorFrame{Action: ActionError, Body: message})
	return data
}
