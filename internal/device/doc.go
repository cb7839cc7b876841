// Package device manages registered IR bridge devices and their live
// connection state.
//
// A device is identified by its MAC address and proves that identity
// with a pairing secret when it connects. The connection ID column is
// the single source of truth for reachability: a device with a
// connection ID is online and commands can be pushed to it.
package device
