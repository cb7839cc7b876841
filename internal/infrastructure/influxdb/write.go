package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/irbridge/core/internal/requestpool"
)

// RecordDispatch writes one point per dispatched command.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) RecordDispatch(kind requestpool.CommandKind, remoteName string, ok bool) {
	c.writeOutcome("dispatch", kind, remoteName, ok)
}

// RecordResolution writes one point per resolved acknowledgement.
func (c *Client) RecordResolution(kind requestpool.CommandKind, remoteName string, ok bool) {
	c.writeOutcome("resolution", kind, remoteName, ok)
}

func (c *Client) writeOutcome(stage string, kind requestpool.CommandKind, remoteName string, ok bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_"+stage,
		map[string]string{
			"kind":    string(kind),
			"remote":  remoteName,
			"success": strconv.FormatBool(ok),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// RecordClickCounter snapshots a remote's cumulative usage counter.
func (c *Client) RecordClickCounter(remoteName string, counter int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"remote_usage",
		map[string]string{
			"remote": remoteName,
		},
		map[string]interface{}{
			"click_counter": counter,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
