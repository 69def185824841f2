package driver

import (
	"context"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// LoggingDriver records actions without performing them. It accepts
// every intent and device class, making it both the development default
// and the target of logging-only mode. Idempotent by construction.
type LoggingDriver struct {
	logger Logger
}

// NewLoggingDriver constructs a logging driver. A nil logger is
// replaced with a no-op.
func NewLoggingDriver(logger Logger) *LoggingDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LoggingDriver{logger: logger}
}

func (d *LoggingDriver) Name() string { return "logging" }

func (d *LoggingDriver) Capabilities() []Capability {
	return []Capability{{Name: "*"}}
}

func (d *LoggingDriver) MaxRiskLevel() envelope.RiskLevel { return envelope.RiskHigh }

// Execute records the action and returns a logged result.
func (d *LoggingDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	now := time.Now().UTC()

	d.logger.Info("logging-only execution",
		"action_id", env.ActionID,
		"intent", env.Intent.Name,
		"device_class", env.Target.DeviceClass,
		"device_id", env.Target.DeviceID)

	return &envelope.ActionResult{
		ActionID:  env.ActionID,
		Status:    envelope.StatusLogged,
		Message:   "action recorded only (logging mode)",
		Driver:    d.Name(),
		Telemetry: map[string]any{"logged": true},
		StartedAt: now,
		EndedAt:   now,
	}, nil
}
