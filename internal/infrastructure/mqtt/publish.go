package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outbound messages at 1MB. Device command frames
// are a few hundred bytes; anything near this bound is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends a payload to a topic, waiting up to the publish
// timeout for the broker to accept it. QoS is capped at 2; retained
// should be true only for state topics (presence, system status),
// never for commands.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
