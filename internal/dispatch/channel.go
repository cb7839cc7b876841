package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownChannel is returned when no transport owns a handle's prefix
// or the handle is stale.
var ErrUnknownChannel = errors.New("dispatch: unknown channel handle")

// PushChannel delivers a payload to the holder of a channel handle.
// Implementations fail if the handle is stale or unknown; they never
// queue for an absent receiver.
type PushChannel interface {
	Push(ctx context.Context, handle string, payload []byte) error
}

// ChannelMux routes pushes to the transport that owns the handle's
// prefix. Handles are minted by the transports themselves: the
// websocket hub issues "ws:<uuid>" handles, the MQTT bridge
// "mqtt:<device>" handles. Devices and clients can therefore sit on
// different transports without the dispatcher knowing which.
type ChannelMux struct {
	transports map[string]PushChannel
}

// NewChannelMux creates an empty mux. Register transports before use.
func NewChannelMux() *ChannelMux {
	return &ChannelMux{transports: make(map[string]PushChannel)}
}

// Register binds a handle prefix (without the colon) to a transport.
func (m *ChannelMux) Register(prefix string, transport PushChannel) {
	m.transports[prefix] = transport
}

// Push routes the payload to the transport owning the handle's prefix.
func (m *ChannelMux) Push(ctx context.Context, handle string, payload []byte) error {
	prefix, _, ok := strings.Cut(handle, ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, handle)
	}
	transport, found := m.transports[prefix]
	if !found {
		return fmt.Errorf("%w: no transport for prefix %q", ErrUnknownChannel, prefix)
	}
	return transport.Push(ctx, handle, payload)
}
