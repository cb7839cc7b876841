// Package mqtt provides the MQTT client wrapper for IR Bridge.
//
// Some bridge devices keep their long-lived channel over MQTT instead
// of websocket: the server publishes commands to a per-device topic
// and receives acknowledgements and retained presence messages on
// shared wildcard topics.
//
// The wrapper adds what paho.mqtt.golang leaves to the caller:
//   - subscription tracking with automatic re-subscription on reconnect
//   - Last Will and Testament so peers can detect a server crash
//   - panic recovery around message handlers
//   - consistent topic construction via Topics
//
// All methods are safe for concurrent use.
package mqtt
