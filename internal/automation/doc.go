// Package automation implements the scheduled, multi-step execution
// state machine.
//
// An automation is a cyclic sequence of remote/button steps driven one
// step per scheduler tick. Progress lives entirely in the database:
// Trigger dispatches the current step and Advance, called when the
// step's acknowledgement resolves, moves the counter forward. A step
// whose acknowledgement never arrives is recovered by the stale sweep
// on a later trigger, not by any in-process timer.
package automation
