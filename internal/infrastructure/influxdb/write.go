package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteGuideError writes one autoguider correction sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - session: Guiding session identifier (tag, low cardinality per run)
//   - dx, dy: Centroid error in pixels on each axis
//   - r: Radial error magnitude in pixels
//   - locked: Whether the guider considered the target locked
//
// Example:
//
//	client.WriteGuideError(sessionID, 3.2, -1.1, 3.38, true)
func (c *Client) WriteGuideError(session string, dx, dy, r float64, locked bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"guide_error",
		map[string]string{
			"session": session,
		},
		map[string]interface{}{
			"dx":     dx,
			"dy":     dy,
			"r":      r,
			"locked": locked,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMountCoordinates writes the mount's current pointing position.
//
// Parameters:
//   - device: Mount device name (e.g., "Mount Agent")
//   - raHours: Right ascension in decimal hours
//   - decDeg: Declination in decimal degrees
func (c *Client) WriteMountCoordinates(device string, raHours, decDeg float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"mount_coordinates",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"ra_hours": raHours,
			"dec_deg":  decDeg,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActuatorState writes the dome and etalon positions reported by
// the actuator board.
//
// Parameters:
//   - domeRaw: Raw dome servo angle in degrees (0-180)
//   - etalon1, etalon2: Etalon tuning servo angles in degrees
func (c *Client) WriteActuatorState(domeRaw, etalon1, etalon2 int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"actuator_state",
		nil,
		map[string]interface{}{
			"dome_raw": domeRaw,
			"etalon1":  etalon1,
			"etalon2":  etalon2,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePulse writes one guide pulse issued to the mount.
//
// Parameters:
//   - session: Guiding session identifier
//   - direction: Cardinal direction of the pulse ("east", "west", ...)
//   - durationMs: Pulse duration in milliseconds after clamping
func (c *Client) WritePulse(session, direction string, durationMs int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"guide_pulse",
		map[string]string{
			"session":   session,
			"direction": direction,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "obs-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
