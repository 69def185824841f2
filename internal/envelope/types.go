package envelope

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the only wire schema version this service accepts.
const SchemaVersion = "1.0"

// RiskLevel is the coarse classification gating which actions may
// execute automatically.
type RiskLevel string

// Valid risk levels, ordered from least to most restricted.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AllRiskLevels returns the valid risk levels in ascending order.
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh}
}

// Rank returns the ordinal position of a risk level (low=0, medium=1,
// high=2). Unknown levels rank above high so comparisons against driver
// caps fail closed.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// IsValid reports whether the risk level is one of the three known values.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// ActionEnvelope is the structured, versioned request describing an
// intended actuation. It is immutable once validated: any component
// that needs to alter it (policy rewrite) works on a DeepCopy.
type ActionEnvelope struct {
	SchemaVersion string    `json:"schema_version"`
	ActionID      string    `json:"action_id"`
	PersonID      string    `json:"person_id"`
	Target        Target    `json:"target"`
	Intent        Intent    `json:"intent"`
	RiskLevel     RiskLevel `json:"risk_level"`

	Constraints      *Constraints      `json:"constraints,omitempty"`
	PolicyContext    *PolicyContext    `json:"policy_context,omitempty"`
	TelemetryChannel *TelemetryChannel `json:"telemetry_channel,omitempty"`
	Provenance       *Provenance       `json:"provenance,omitempty"`

	CreatedAt     *time.Time `json:"created_at,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// Target identifies the actuator the envelope acts on.
type Target struct {
	DeviceID    string `json:"device_id"`
	DeviceClass string `json:"device_class"`
	Location    string `json:"location,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// Intent describes what the caller wants the actuator to do.
type Intent struct {
	Name          string         `json:"name"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	HumanReadable string         `json:"human_readable,omitempty"`
}

// Constraints carries envelope-local execution limits. All fields are
// optional; absent fields impose no constraint.
type Constraints struct {
	MaxDurationMs         *int64      `json:"max_duration_ms,omitempty"`
	RequiredConfirmations *int        `json:"required_confirmations,omitempty"`
	QuietHours            []string    `json:"quiet_hours,omitempty"`
	AllowedRiskLevels     []RiskLevel `json:"allowed_risk_levels,omitempty"`
}

// PolicyContext carries the caller's authorization material for the
// external policy evaluation.
type PolicyContext struct {
	Scopes           []string  `json:"scopes,omitempty"`
	ConsentReference string    `json:"consent_reference,omitempty"`
	Justification    string    `json:"justification,omitempty"`
	RiskLevel        RiskLevel `json:"risk_level,omitempty"`
}

// TelemetryChannel describes where lifecycle events for this action
// should be routed.
type TelemetryChannel struct {
	Topic             string `json:"topic"`
	Delivery          string `json:"delivery"`
	IncludeParameters bool   `json:"include_parameters,omitempty"`
}

// Telemetry delivery modes.
const (
	DeliveryStream = "stream"
	DeliveryBatch  = "batch"
)

// Provenance records where the envelope came from.
type Provenance struct {
	SourceIntent       string     `json:"source_intent"`
	OrchestratorTaskID string     `json:"orchestrator_task_id,omitempty"`
	ModelVersion       string     `json:"model_version,omitempty"`
	GeneratedAt        *time.Time `json:"generated_at,omitempty"`
}

// Normalize fills in server-generated defaults on a freshly decoded
// envelope: missing schema_version defaults to the supported version,
// a missing action_id is generated, and created_at is stamped.
//
// Call before Validate; validation itself has no side effects.
func (e *ActionEnvelope) Normalize() {
	if e.SchemaVersion == "" {
		e.SchemaVersion = SchemaVersion
	}
	if e.ActionID == "" {
		e.ActionID = uuid.New().String()
	}
	if e.CreatedAt == nil {
		now := time.Now().UTC()
		e.CreatedAt = &now
	}
}

// DeepCopy creates a complete independent copy of the envelope.
// All map, slice, and pointer fields are cloned so a policy rewrite
// never mutates the caller's original.
func (e *ActionEnvelope) DeepCopy() *ActionEnvelope {
	if e == nil {
		return nil
	}

	cpy := *e // Shallow copy of value fields

	cpy.Intent.Parameters = deepCopyMap(e.Intent.Parameters)

	if e.Constraints != nil {
		c := *e.Constraints
		if e.Constraints.MaxDurationMs != nil {
			v := *e.Constraints.MaxDurationMs
			c.MaxDurationMs = &v
		}
		if e.Constraints.RequiredConfirmations != nil {
			v := *e.Constraints.RequiredConfirmations
			c.RequiredConfirmations = &v
		}
		if e.Constraints.QuietHours != nil {
			c.QuietHours = make([]string, len(e.Constraints.QuietHours))
			copy(c.QuietHours, e.Constraints.QuietHours)
		}
		if e.Constraints.AllowedRiskLevels != nil {
			c.AllowedRiskLevels = make([]RiskLevel, len(e.Constraints.AllowedRiskLevels))
			copy(c.AllowedRiskLevels, e.Constraints.AllowedRiskLevels)
		}
		cpy.Constraints = &c
	}

	if e.PolicyContext != nil {
		p := *e.PolicyContext
		if e.PolicyContext.Scopes != nil {
			p.Scopes = make([]string, len(e.PolicyContext.Scopes))
			copy(p.Scopes, e.PolicyContext.Scopes)
		}
		cpy.PolicyContext = &p
	}

	if e.TelemetryChannel != nil {
		t := *e.TelemetryChannel
		cpy.TelemetryChannel = &t
	}

	if e.Provenance != nil {
		p := *e.Provenance
		if e.Provenance.GeneratedAt != nil {
			v := *e.Provenance.GeneratedAt
			p.GeneratedAt = &v
		}
		cpy.Provenance = &p
	}

	if e.CreatedAt != nil {
		v := *e.CreatedAt
		cpy.CreatedAt = &v
	}

	return &cpy
}

// deepCopyMap clones a map[string]any one level deep. Nested maps and
// slices are cloned recursively; other values are copied as-is.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			cpy[k] = deepCopyMap(val)
		case []any:
			s := make([]any, len(val))
			copy(s, val)
			cpy[k] = s
		default:
			cpy[k] = v
		}
	}
	return cpy
}
