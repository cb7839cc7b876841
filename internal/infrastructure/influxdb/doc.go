// Package influxdb provides optional usage telemetry for IR Bridge.
//
// Dispatch outcomes, acknowledgement resolutions and remote click
// counts are written as time-series points so usage can be charted
// without touching the operational SQLite database. All writes are
// non-blocking and batched; losing telemetry never fails a command.
//
// The integration is disabled by default and activated via config.
package influxdb
