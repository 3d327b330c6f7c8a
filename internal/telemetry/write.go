package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSceneRun writes one completed (or failed) scene run as a point.
//
// Called by the show runner after a scene reaches END or is stopped.
// The write is non-blocking; points are batched and flushed async.
func (c *Client) WriteSceneRun(roomID, sceneID, status string, durationSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scene_runs",
		map[string]string{
			"room_id":  roomID,
			"scene_id": sceneID,
			"status":   status,
		},
		map[string]interface{}{
			"duration_seconds": durationSeconds,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteDeviceTransition writes a device online/offline transition.
func (c *Client) WriteDeviceTransition(roomID, deviceID, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_presence",
		map[string]string{
			"room_id":   roomID,
			"device_id": deviceID,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteFeedbackOutcome records a feedback resolution (ok/timeout/error) for a
// published command topic, useful for tracking actuator reliability over time.
func (c *Client) WriteFeedbackOutcome(roomID, topic, outcome string, elapsedSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"feedback_outcomes",
		map[string]string{
			"room_id": roomID,
			"topic":   topic,
			"outcome": outcome,
		},
		map[string]interface{}{
			"elapsed_seconds": elapsedSeconds,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
