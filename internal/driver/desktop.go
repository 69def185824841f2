package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// DesktopAutomationDriver is a stub for desktop/system automation.
// It is intended to wrap computer-use agent flows; here it validates
// the intent and returns a deterministic accepted response. Long-running
// desktop work goes through the VDI proxy path instead.
type DesktopAutomationDriver struct {
	logger Logger
}

// NewDesktopAutomationDriver constructs a desktop automation driver.
func NewDesktopAutomationDriver(logger Logger) *DesktopAutomationDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DesktopAutomationDriver{logger: logger}
}

func (d *DesktopAutomationDriver) Name() string { return "desktop-automation" }

func (d *DesktopAutomationDriver) Capabilities() []Capability {
	return []Capability{
		{Name: "desktop.command", DeviceClasses: []string{"desktop", "browser"}},
		{Name: "desktop.navigate", DeviceClasses: []string{"desktop", "browser"}},
	}
}

func (d *DesktopAutomationDriver) MaxRiskLevel() envelope.RiskLevel { return envelope.RiskHigh }

func (d *DesktopAutomationDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	intent := env.Intent.Name
	switch intent {
	case "desktop.command", "desktop.navigate":
	default:
		return nil, newError(d.Name(), fmt.Sprintf("unsupported desktop intent %q", intent), nil)
	}

	now := time.Now().UTC()
	d.logger.Info("desktop automation stub executed",
		"action_id", env.ActionID,
		"intent", intent,
		"device_id", env.Target.DeviceID)

	return &envelope.ActionResult{
		ActionID:  env.ActionID,
		Status:    envelope.StatusAccepted,
		Message:   "desktop automation stub executed",
		Driver:    d.Name(),
		Telemetry: map[string]any{"parameters": env.Intent.Parameters},
		StartedAt: now,
		EndedAt:   now,
	}, nil
}
