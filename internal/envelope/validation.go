package envelope

import (
	"fmt"
	"strings"
	"time"
)

// Validation constants.
const (
	maxActionIDLength = 128
	maxParameterKeys  = 64
	maxQuietWindows   = 16
	maxScopes         = 32
)

// ValidationError describes why an envelope failed validation. Field is
// a dotted path into the envelope (e.g. "target.device_class").
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("envelope: invalid field %q: %s", e.Field, e.Reason)
}

// invalid is shorthand for constructing a ValidationError.
func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate performs structural and semantic validation on a normalized
// envelope. It returns the first *ValidationError found, or nil. It has
// no side effects; call Normalize first to fill server defaults.
func Validate(e *ActionEnvelope) error {
	if e == nil {
		return invalid("", "envelope is required")
	}

	if e.SchemaVersion != SchemaVersion {
		return invalid("schema_version", fmt.Sprintf("unsupported version %q (supported: %q)", e.SchemaVersion, SchemaVersion))
	}

	if e.ActionID == "" {
		return invalid("action_id", "is required")
	}
	if len(e.ActionID) > maxActionIDLength {
		return invalid("action_id", fmt.Sprintf("exceeds %d characters", maxActionIDLength))
	}

	if e.PersonID == "" {
		return invalid("person_id", "is required")
	}

	if e.Target.DeviceID == "" {
		return invalid("target.device_id", "is required")
	}
	if e.Target.DeviceClass == "" {
		return invalid("target.device_class", "is required")
	}

	if e.Intent.Name == "" {
		return invalid("intent.name", "is required")
	}
	if len(e.Intent.Parameters) > maxParameterKeys {
		return invalid("intent.parameters", fmt.Sprintf("exceeds %d keys", maxParameterKeys))
	}

	if !e.RiskLevel.IsValid() {
		return invalid("risk_level", fmt.Sprintf("unrecognised level %q (expected low, medium, or high)", e.RiskLevel))
	}

	if e.Constraints != nil {
		if err := validateConstraints(e.Constraints); err != nil {
			return err
		}
	}

	if e.PolicyContext != nil {
		if len(e.PolicyContext.Scopes) > maxScopes {
			return invalid("policy_context.scopes", fmt.Sprintf("exceeds %d entries", maxScopes))
		}
		if e.PolicyContext.RiskLevel != "" && !e.PolicyContext.RiskLevel.IsValid() {
			return invalid("policy_context.risk_level", fmt.Sprintf("unrecognised level %q", e.PolicyContext.RiskLevel))
		}
	}

	if e.TelemetryChannel != nil {
		if e.TelemetryChannel.Topic == "" {
			return invalid("telemetry_channel.topic", "is required when telemetry_channel is set")
		}
		switch e.TelemetryChannel.Delivery {
		case DeliveryStream, DeliveryBatch:
		default:
			return invalid("telemetry_channel.delivery", fmt.Sprintf("must be %q or %q", DeliveryStream, DeliveryBatch))
		}
	}

	if e.Provenance != nil && e.Provenance.SourceIntent == "" {
		return invalid("provenance.source_intent", "is required when provenance is set")
	}

	return nil
}

func validateConstraints(c *Constraints) error {
	if c.MaxDurationMs != nil && *c.MaxDurationMs < 0 {
		return invalid("constraints.max_duration_ms", "must be non-negative")
	}
	if c.RequiredConfirmations != nil && *c.RequiredConfirmations < 0 {
		return invalid("constraints.required_confirmations", "must be non-negative")
	}
	if len(c.QuietHours) > maxQuietWindows {
		return invalid("constraints.quiet_hours", fmt.Sprintf("exceeds %d windows", maxQuietWindows))
	}
	for i, w := range c.QuietHours {
		if _, err := ParseTimeWindow(w); err != nil {
			return invalid(fmt.Sprintf("constraints.quiet_hours[%d]", i), err.Error())
		}
	}
	for i, lvl := range c.AllowedRiskLevels {
		if !lvl.IsValid() {
			return invalid(fmt.Sprintf("constraints.allowed_risk_levels[%d]", i), fmt.Sprintf("unrecognised level %q", lvl))
		}
	}
	return nil
}

// TimeWindow is a daily time interval in the form "HH:MM-HH:MM".
// Windows where End precedes Start wrap past midnight (22:00-06:00).
type TimeWindow struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// ParseTimeWindow parses a "HH:MM-HH:MM" string into a TimeWindow.
func ParseTimeWindow(s string) (TimeWindow, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return TimeWindow{}, fmt.Errorf("window %q must be in HH:MM-HH:MM form", s)
	}

	startOff, err := parseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	endOff, err := parseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}

	return TimeWindow{Start: startOff, End: endOff}, nil
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (expected HH:MM)", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether the wall-clock time of t falls inside the
// window. Wrapping windows (Start > End) span midnight.
func (w TimeWindow) Contains(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute

	if w.Start <= w.End {
		return offset >= w.Start && offset < w.End
	}
	// Wraps past midnight
	return offset >= w.Start || offset < w.End
}
