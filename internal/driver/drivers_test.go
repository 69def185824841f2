package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

func TestLoggingDriver_Execute(t *testing.T) {
	d := NewLoggingDriver(nil)

	res, err := d.Execute(context.Background(), testEnvelope("anything", "any-class"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusLogged {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusLogged)
	}
	if res.Driver != "logging" {
		t.Errorf("driver = %q, want logging", res.Driver)
	}
	if res.Telemetry["logged"] != true {
		t.Error("telemetry should record logged=true")
	}
}

func TestMockHomeDriver_Execute(t *testing.T) {
	d := NewMockHomeDriver(nil)

	res, err := d.Execute(context.Background(), testEnvelope("turn_on", "light"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusCompleted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusCompleted)
	}

	_, err = d.Execute(context.Background(), testEnvelope("defrost", "light"))
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("unsupported intent error = %T, want *Error", err)
	}
}

func TestMockRobotDriver_StopReportsHalted(t *testing.T) {
	d := NewMockRobotDriver(nil)

	res, err := d.Execute(context.Background(), testEnvelope("robot.stop", "robot"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusHalted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusHalted)
	}

	res, err = d.Execute(context.Background(), testEnvelope("robot.move", "robot"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusCompleted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusCompleted)
	}
}

func TestDesktopDriver_Execute(t *testing.T) {
	d := NewDesktopAutomationDriver(nil)

	res, err := d.Execute(context.Background(), testEnvelope("desktop.command", "desktop"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusAccepted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusAccepted)
	}
}

// fakePublisher records publishes for MQTT driver tests.
type fakePublisher struct {
	connected bool
	topic     string
	payload   []byte
	err       error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.topic = topic
	f.payload = payload
	return f.err
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func TestMqttDriver_Execute(t *testing.T) {
	pub := &fakePublisher{connected: true}
	d := NewMqttDriver(pub, 1, nil)

	env := testEnvelope("device.publish", "mqtt")
	env.Intent.Parameters = map[string]any{
		"topic":   "unison/home/lamp/set",
		"payload": map[string]any{"state": "on"},
	}

	res, err := d.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusCompleted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusCompleted)
	}
	if pub.topic != "unison/home/lamp/set" {
		t.Errorf("published topic = %q", pub.topic)
	}
	if string(pub.payload) != `{"state":"on"}` {
		t.Errorf("published payload = %s", pub.payload)
	}
}

func TestMqttDriver_MissingTopic(t *testing.T) {
	d := NewMqttDriver(&fakePublisher{connected: true}, 1, nil)

	env := testEnvelope("device.publish", "mqtt")
	env.Intent.Parameters = map[string]any{"payload": "on"}

	if _, err := d.Execute(context.Background(), env); err == nil {
		t.Error("expected error for missing topic parameter")
	}
}

func TestMqttDriver_DegradesToLoggingWithoutBroker(t *testing.T) {
	tests := []struct {
		name string
		pub  Publisher
	}{
		{"nil publisher", nil},
		{"disconnected publisher", &fakePublisher{connected: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewMqttDriver(tt.pub, 1, nil)

			env := testEnvelope("device.publish", "mqtt")
			env.Intent.Parameters = map[string]any{"topic": "unison/home/lamp/set", "payload": "on"}

			res, err := d.Execute(context.Background(), env)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if res.Status != envelope.StatusLogged {
				t.Errorf("status = %q, want %q", res.Status, envelope.StatusLogged)
			}
		})
	}
}

func TestMqttDriver_PublishFailure(t *testing.T) {
	pub := &fakePublisher{connected: true, err: errors.New("broker rejected")}
	d := NewMqttDriver(pub, 1, nil)

	env := testEnvelope("device.publish", "mqtt")
	env.Intent.Parameters = map[string]any{"topic": "t", "payload": "on"}

	_, err := d.Execute(context.Background(), env)
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("error = %T, want *Error", err)
	}
}

func TestMqttDriver_RiskCap(t *testing.T) {
	d := NewMqttDriver(nil, 1, nil)
	if d.MaxRiskLevel() != envelope.RiskMedium {
		t.Errorf("MaxRiskLevel() = %q, want %q", d.MaxRiskLevel(), envelope.RiskMedium)
	}
}
