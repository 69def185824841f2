package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLifecycleEvent records a single action lifecycle transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - actionID: Unique identifier for the action
//   - eventType: Lifecycle stage (e.g., "action_started", "action_completed")
//   - driver: Name of the driver handling the action
//   - riskLevel: Declared risk level of the action
//
// Example:
//
//	client.WriteLifecycleEvent("a1b2c3", "action_completed", "mock_home", "low")
func (c *Client) WriteLifecycleEvent(actionID, eventType, driver, riskLevel string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"action_lifecycle",
		map[string]string{
			"event_type": eventType,
			"driver":     driver,
			"risk_level": riskLevel,
		},
		map[string]interface{}{
			"action_id": actionID,
			"count":     1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActionDuration records how long a driver took to execute an action.
//
// Parameters:
//   - driver: Name of the executing driver
//   - outcome: Final status ("completed", "failed", "rejected")
//   - durationMs: Wall-clock execution time in milliseconds
func (c *Client) WriteActionDuration(driver, outcome string, durationMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"action_duration",
		map[string]string{
			"driver":  driver,
			"outcome": outcome,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteProxyAttempt records a single delegation attempt to the desktop
// automation service, including retries.
//
// Parameters:
//   - taskType: The task category ("browse", "form_submit", "download")
//   - attempt: 1-based attempt number
//   - status: Attempt outcome ("ok", "retryable", "fatal", "timeout")
//   - elapsedMs: Time spent on this attempt in milliseconds
func (c *Client) WriteProxyAttempt(taskType string, attempt int, status string, elapsedMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"proxy_attempts",
		map[string]string{
			"task_type": taskType,
			"status":    status,
		},
		map[string]interface{}{
			"attempt":    attempt,
			"elapsed_ms": elapsedMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
