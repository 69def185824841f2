package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// Publisher is the broker surface the MQTT relay driver needs.
// Satisfied by *mqtt.Client from the infrastructure layer.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MqttDriver relays actuation payloads to smart home hubs or devices
// over an MQTT broker.
//
// Execution is capped at medium risk: a broker relay has no way to
// verify the physical outcome, so high-risk actions must go through a
// driver with a feedback channel. Without a connected broker the driver
// degrades to logging the action. Publish idempotency depends on the
// subscribing device; repeated publishes of the same payload are safe
// for idempotent command topics.
type MqttDriver struct {
	publisher Publisher
	qos       byte
	logger    Logger
}

// NewMqttDriver constructs an MQTT relay driver. The publisher may be
// nil when no broker is configured; the driver then records actions
// without publishing.
func NewMqttDriver(publisher Publisher, qos byte, logger Logger) *MqttDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MqttDriver{publisher: publisher, qos: qos, logger: logger}
}

func (d *MqttDriver) Name() string { return "mqtt" }

func (d *MqttDriver) Capabilities() []Capability {
	return []Capability{
		{Name: "device.publish", DeviceClasses: []string{"mqtt"}},
	}
}

// MaxRiskLevel caps the relay at medium risk.
func (d *MqttDriver) MaxRiskLevel() envelope.RiskLevel { return envelope.RiskMedium }

func (d *MqttDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	topic, _ := env.Intent.Parameters["topic"].(string)
	if topic == "" {
		return nil, newError(d.Name(), "mqtt topic parameter required", nil)
	}

	payload, err := encodePayload(env.Intent.Parameters["payload"])
	if err != nil {
		return nil, newError(d.Name(), "unencodable mqtt payload", err)
	}

	started := time.Now().UTC()

	if d.publisher == nil || !d.publisher.IsConnected() {
		d.logger.Warn("mqtt broker unavailable, action logged only",
			"action_id", env.ActionID,
			"topic", topic)
		return &envelope.ActionResult{
			ActionID:  env.ActionID,
			Status:    envelope.StatusLogged,
			Message:   "mqtt broker unavailable; action logged only",
			Driver:    d.Name(),
			Telemetry: map[string]any{"topic": topic},
			StartedAt: started,
			EndedAt:   time.Now().UTC(),
		}, nil
	}

	if err := d.publisher.Publish(topic, payload, d.qos, false); err != nil {
		return nil, newError(d.Name(), fmt.Sprintf("mqtt publish to %q failed", topic), err)
	}

	d.logger.Info("mqtt publish sent",
		"action_id", env.ActionID,
		"topic", topic,
		"bytes", len(payload))

	return &envelope.ActionResult{
		ActionID:  env.ActionID,
		Status:    envelope.StatusCompleted,
		Message:   "mqtt publish sent",
		Driver:    d.Name(),
		Telemetry: map[string]any{"topic": topic},
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}, nil
}

// encodePayload converts an arbitrary payload parameter to bytes.
// Strings pass through unchanged; everything else is JSON-encoded.
func encodePayload(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(val)
	}
}
