// Package dispatch implements command dispatch and acknowledgement
// routing for IR bridge devices.
//
// A command is inherently asynchronous: the server pushes it to the
// device's live channel and the reply arrives later as an independent
// message carrying only a request ID. The Dispatcher records a durable
// correlation row before pushing; the AckRouter resolves that row
// exactly once when the acknowledgement arrives and forwards the
// result to whoever asked — a connected client or an automation step.
package dispatch
