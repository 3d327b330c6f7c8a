// Package telemetry provides optional InfluxDB time-series export for a
// room controller.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing, and health monitoring.
//
// # Purpose
//
// The package can write scene runs, device presence transitions, and
// feedback outcomes so a long-horizon dashboard can chart history beyond
// the controller's own in-process log buffer. The controller itself calls
// only WriteSceneRun, from the scene runner. None of this is read back by
// the controller itself; it is a write-only export.
//
// # Usage
//
//	client, err := telemetry.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSceneRun("room1", "intro", "completed", 18.4)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
package telemetry
