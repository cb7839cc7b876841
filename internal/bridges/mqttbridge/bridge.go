// Package mqttbridge adapts MQTT-attached bridge devices to the push
// channel and acknowledgement interfaces of the dispatch engine.
//
// A device on MQTT holds no websocket: its "connection" is the broker
// session, represented by a synthetic handle "mqtt:<deviceID>". The
// bridge subscribes to the shared acknowledgement and presence
// wildcards, feeds acks into the router and keeps the device registry's
// connection column in step with retained presence messages.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/dispatch"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/infrastructure/mqtt"
)

// HandlePrefix is the channel-handle prefix owned by this transport.
const HandlePrefix = "mqtt"

// Handle returns the synthetic channel handle for an MQTT device.
func Handle(deviceID string) string {
	return HandlePrefix + ":" + deviceID
}

// Broker is the interface the bridge needs from the MQTT client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// AckHandler is the interface the bridge needs from the ack router.
type AckHandler interface {
	HandleAck(ctx context.Context, ack dispatch.DeviceAck) error
}

// presence is the retained payload a device publishes on its status
// topic, and its LWT the broker publishes when the device drops.
type presence struct {
	Status string `json:"status"`
}

// Bridge wires MQTT devices into the dispatch engine.
type Bridge struct {
	broker  Broker
	devices device.Repository
	router  AckHandler
	qos     byte
	logger  *logging.Logger
}

// New creates a bridge; call Start to begin consuming broker traffic.
func New(broker Broker, devices device.Repository, router AckHandler, qos byte, logger *logging.Logger) *Bridge {
	return &Bridge{
		broker:  broker,
		devices: devices,
		router:  router,
		qos:     qos,
		logger:  logger.With("component", "mqttbridge"),
	}
}

// Start subscribes to the acknowledgement and presence wildcards.
func (b *Bridge) Start(ctx context.Context) error {
	topics := mqtt.Topics{}
	if err := b.broker.Subscribe(topics.AllDeviceAcks(), b.qos, b.handleAck(ctx)); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	if err := b.broker.Subscribe(topics.AllDeviceStatuses(), b.qos, b.handleStatus(ctx)); err != nil {
		return fmt.Errorf("subscribing to statuses: %w", err)
	}
	b.logger.Info("mqtt bridge started")
	return nil
}

// Push implements dispatch.PushChannel for "mqtt:" handles by
// publishing the payload to the device's command topic.
func (b *Bridge) Push(_ context.Context, handle string, payload []byte) error {
	deviceID, ok := strings.CutPrefix(handle, HandlePrefix+":")
	if !ok || deviceID == "" {
		return fmt.Errorf("%w: %q", dispatch.ErrUnknownChannel, handle)
	}
	topic := mqtt.Topics{}.DeviceCommand(deviceID)
	if err := b.broker.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}
	return nil
}

// handleAck feeds device acknowledgements into the router. Stale acks
// are expected noise: the correlation expired or a duplicate arrived.
func (b *Bridge) handleAck(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var ack dispatch.DeviceAck
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("malformed ack on %s: %w", topic, err)
		}
		if ack.RequestID == "" {
			return fmt.Errorf("ack on %s carries no request id", topic)
		}

		if err := b.router.HandleAck(ctx, ack); err != nil {
			if errors.Is(err, dispatch.ErrStaleRequest) {
				b.logger.Debug("stale mqtt ack", "request_id", ack.RequestID)
				return nil
			}
			return err
		}
		return nil
	}
}

// handleStatus mirrors retained presence messages into the device
// registry's connection column.
func (b *Bridge) handleStatus(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		deviceID := mqtt.DeviceFromTopic(topic)
		if deviceID == "" {
			return fmt.Errorf("presence on unrecognised topic %s", topic)
		}

		var p presence
		if err := json.Unmarshal(payload, &p); err != nil {
			// Some firmware publishes the bare word instead of JSON.
			p.Status = strings.TrimSpace(string(payload))
		}

		switch p.Status {
		case "online":
			if err := b.devices.SetConnection(ctx, deviceID, Handle(deviceID)); err != nil {
				if errors.Is(err, device.ErrDeviceNotFound) {
					b.logger.Warn("presence from unregistered device", "device_id", deviceID)
					return nil
				}
				return err
			}
			b.logger.Info("mqtt device online", "device_id", deviceID)
		case "offline":
			if err := b.devices.ClearConnection(ctx, deviceID, Handle(deviceID)); err != nil {
				return err
			}
			b.logger.Info("mqtt device offline", "device_id", deviceID)
		default:
			b.logger.Debug("ignoring presence payload",
				"device_id", deviceID, "status", p.Status)
		}
		return nil
	}
}
