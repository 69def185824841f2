package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// MockRobotDriver simulates a robotics stack (ROS2, OPC UA, CAN). Stop
// intents report a distinct halted status so supervisors can tell an
// emergency stop apart from a routine completion.
type MockRobotDriver struct {
	logger Logger
}

// NewMockRobotDriver constructs a mock robot driver.
func NewMockRobotDriver(logger Logger) *MockRobotDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MockRobotDriver{logger: logger}
}

func (d *MockRobotDriver) Name() string { return "mock-robot" }

func (d *MockRobotDriver) Capabilities() []Capability {
	return []Capability{
		{Name: "robot.move", DeviceClasses: []string{"robot"}},
		{Name: "robot.dock", DeviceClasses: []string{"robot"}},
		{Name: "robot.stop", DeviceClasses: []string{"robot"}},
	}
}

func (d *MockRobotDriver) MaxRiskLevel() envelope.RiskLevel { return envelope.RiskHigh }

func (d *MockRobotDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	intent := env.Intent.Name
	switch intent {
	case "robot.move", "robot.dock", "robot.stop":
	default:
		return nil, newError(d.Name(), fmt.Sprintf("unsupported robot intent %q", intent), nil)
	}

	status := envelope.StatusCompleted
	if intent == "robot.stop" {
		status = envelope.StatusHalted
	}

	now := time.Now().UTC()
	d.logger.Info("mock robot intent executed",
		"action_id", env.ActionID,
		"intent", intent,
		"device_id", env.Target.DeviceID)

	return &envelope.ActionResult{
		ActionID: env.ActionID,
		Status:   status,
		Message:  fmt.Sprintf("mock robot intent %s executed", intent),
		Driver:   d.Name(),
		Telemetry: map[string]any{
			"intent": intent,
			"pose":   env.Intent.Parameters,
		},
		StartedAt: now,
		EndedAt:   now,
	}, nil
}
