package mqtt

import (
	"fmt"
	"strings"
)

// Topic scheme: irbridge/{category}/{device_or_scope}.
//
// Bridge devices that speak MQTT instead of websocket subscribe to
// their own command topic and publish acknowledgements and presence on
// shared wildcard topics the server watches.
const (
	// TopicPrefix is the base for all IR Bridge topics.
	TopicPrefix = "irbridge"

	// TopicPrefixSystem is the base for server status topics.
	TopicPrefixSystem = "irbridge/system"
)

// Topics provides builders for IR Bridge MQTT topics. Using these
// helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceCommand returns the topic a device receives commands on.
//
// Example: irbridge/command/AA:BB:CC:DD:EE:FF
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAck returns the topic a device publishes acknowledgements on.
//
// Example: irbridge/ack/AA:BB:CC:DD:EE:FF
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// AllDeviceAcks returns the wildcard pattern covering every device's
// acknowledgement topic.
func (Topics) AllDeviceAcks() string {
	return TopicPrefix + "/ack/+"
}

// DeviceStatus returns the topic carrying a device's retained presence
// message. Devices publish "online" here on connect and set an LWT so
// the broker publishes "offline" when they drop.
//
// Example: irbridge/status/AA:BB:CC:DD:EE:FF
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, deviceID)
}

// AllDeviceStatuses returns the wildcard pattern covering every
// device's presence topic.
func (Topics) AllDeviceStatuses() string {
	return TopicPrefix + "/status/+"
}

// SystemStatus returns the topic carrying the server's own online or
// offline status (retained, with LWT for crash detection).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceFromTopic extracts the device ID from a per-device topic such
// as irbridge/ack/AA:BB:CC:DD:EE:FF. Returns an empty string if the
// topic does not follow the prefix/category/device scheme. The device
// segment may itself contain colons, so only the first two slashes
// delimit.
func DeviceFromTopic(topic string) string {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] == "" {
		return ""
	}
	return parts[2]
}
