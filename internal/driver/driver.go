package driver

import (
	"context"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// Capability declares one intent a driver can serve, optionally
// restricted to specific device classes.
type Capability struct {
	// Name is the intent name this capability serves. The wildcard "*"
	// matches every intent (used by the logging driver only).
	Name string

	// DeviceClasses restricts the capability to these target classes.
	// Empty means any class.
	DeviceClasses []string
}

// Matches reports whether the capability serves the envelope's
// (intent.name, target.device_class) pair.
func (c Capability) Matches(env *envelope.ActionEnvelope) bool {
	if c.Name != "*" && c.Name != env.Intent.Name {
		return false
	}
	if len(c.DeviceClasses) == 0 {
		return true
	}
	for _, class := range c.DeviceClasses {
		if class == env.Target.DeviceClass {
			return true
		}
	}
	return false
}

// Driver performs (or logs) the actual actuation effect for a matched
// envelope.
//
// Implementations must be deterministic, and idempotent with respect to
// repeated calls carrying the same action_id wherever the underlying
// effect allows. The logging and mock drivers are idempotent by
// construction; drivers with real side effects document their own
// guarantees.
type Driver interface {
	// Name identifies the driver in results, telemetry, and audit
	// entries.
	Name() string

	// Capabilities returns the ordered capability declarations used by
	// registry routing.
	Capabilities() []Capability

	// MaxRiskLevel caps the risk level this driver will accept. The
	// engine rejects envelopes above the cap before calling Execute.
	MaxRiskLevel() envelope.RiskLevel

	// Execute performs the action and returns its result. A returned
	// error is a deterministic execution failure (*Error); the engine
	// surfaces it to the client without retrying.
	Execute(ctx context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error)
}

// Logger is the minimal logging interface drivers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
