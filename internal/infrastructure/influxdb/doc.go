// Package influxdb provides an optional time-series sink for action
// lifecycle telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring. When
// the sink is disabled in config the service runs without it; telemetry
// fan-out to HTTP consumers is unaffected.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the sink
//	}
//	defer client.Close()
//
//	client.WriteLifecycleEvent(actionID, "action_completed", "mock_home", "low")
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
