package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// MockHomeDriver simulates a smart home hub. Real deployments would
// speak MQTT or REST to the hub; the mock applies intents instantly and
// reports success, which keeps it deterministic and idempotent.
type MockHomeDriver struct {
	logger Logger
}

// NewMockHomeDriver constructs a mock home driver.
func NewMockHomeDriver(logger Logger) *MockHomeDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MockHomeDriver{logger: logger}
}

func (d *MockHomeDriver) Name() string { return "mock-home" }

func (d *MockHomeDriver) Capabilities() []Capability {
	return []Capability{
		{Name: "turn_on", DeviceClasses: []string{"light", "switch"}},
		{Name: "turn_off", DeviceClasses: []string{"light", "switch"}},
		{Name: "set_brightness", DeviceClasses: []string{"light"}},
	}
}

func (d *MockHomeDriver) MaxRiskLevel() envelope.RiskLevel { return envelope.RiskHigh }

func (d *MockHomeDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	intent := env.Intent.Name
	switch intent {
	case "turn_on", "turn_off", "set_brightness":
	default:
		return nil, newError(d.Name(), fmt.Sprintf("unsupported home intent %q", intent), nil)
	}

	now := time.Now().UTC()
	d.logger.Info("mock home action applied",
		"action_id", env.ActionID,
		"intent", intent,
		"device_id", env.Target.DeviceID)

	return &envelope.ActionResult{
		ActionID: env.ActionID,
		Status:   envelope.StatusCompleted,
		Message:  fmt.Sprintf("mock home action %s applied", intent),
		Driver:   d.Name(),
		Telemetry: map[string]any{
			"device_id": env.Target.DeviceID,
			"intent":    intent,
		},
		StartedAt: now,
		EndedAt:   now,
	}, nil
}
