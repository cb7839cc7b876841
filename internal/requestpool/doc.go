// Package requestpool maintains the durable table of in-flight command
// correlations.
//
// Every command pushed to a bridge device is asynchronous: the requester
// and the device never share an execution context, so the link between
// "who asked" and "who answered" must outlive both. A PendingRequest row
// is that link. Its existence is the sole evidence that a command is
// outstanding; deleting it is the sole way to mark the command resolved.
//
// Rows are created by the command dispatcher and consumed exactly once by
// the acknowledgement router via Take, a conditional read-and-delete that
// guarantees at-most-one resolution under duplicate device replies.
// Rows that never resolve are reclaimed by SweepExpired, which callers
// run opportunistically before creating new entries — there is no
// background reaper.
package requestpool
