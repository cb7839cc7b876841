// Package api provides the HTTP REST API and WebSocket server for the
// IR Bridge core.
//
// The REST surface manages devices, remotes and automations. The
// WebSocket endpoint carries the live command traffic: human-facing
// clients send command frames and receive acknowledgements on the same
// connection, and bridge devices hold a connection that doubles as
// their push channel for dispatched IR commands.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
