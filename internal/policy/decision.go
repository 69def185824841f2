package policy

import (
	"github.com/unison-systems/actuation-core/internal/envelope"
)

// DecisionKind enumerates the normalized policy verdicts.
type DecisionKind string

const (
	// DecisionPermit allows the action to proceed unchanged.
	DecisionPermit DecisionKind = "permit"

	// DecisionReject blocks the action with a reason.
	DecisionReject DecisionKind = "reject"

	// DecisionRewrite allows the action with a modified intent and/or
	// risk level applied to a copy of the envelope.
	DecisionRewrite DecisionKind = "rewrite"

	// DecisionRequireConfirmation holds the action until an external
	// confirmation arrives or expiry elapses.
	DecisionRequireConfirmation DecisionKind = "require_confirmation"
)

// ReasonPolicyUnavailable is the fail-closed reason used when the
// policy service cannot be reached or returns garbage.
const ReasonPolicyUnavailable = "policy_unavailable"

// ReasonConsentRequired is the fail-closed reason used when a high-risk
// envelope carries no consent reference.
const ReasonConsentRequired = "consent_required"

// Decision is the normalized result of one policy evaluation.
// Exactly one Kind is set; the remaining fields are populated according
// to the kind.
type Decision struct {
	Kind DecisionKind

	// Reason explains a reject. Empty for other kinds.
	Reason string

	// RewrittenIntent replaces the envelope intent for rewrite
	// decisions. Nil when the rewrite only changes risk level.
	RewrittenIntent *envelope.Intent

	// RewrittenRiskLevel replaces the envelope risk level for rewrite
	// decisions. Empty when unchanged.
	RewrittenRiskLevel envelope.RiskLevel

	// ConfirmationID identifies the pending confirmation for
	// require_confirmation decisions.
	ConfirmationID string

	// MinConfirmations is how many distinct confirmations must arrive
	// before the action proceeds. At least 1 for require_confirmation.
	MinConfirmations int
}

// Permitted reports whether the decision lets the action continue down
// the pipeline (possibly via a confirmation hold).
func (d Decision) Permitted() bool {
	return d.Kind != DecisionReject
}

// Apply produces the envelope the driver will actually execute. For
// rewrite decisions this is a deep copy with the intent and/or risk
// level replaced; for every other kind the original is returned as-is.
func (d Decision) Apply(env *envelope.ActionEnvelope) *envelope.ActionEnvelope {
	if d.Kind != DecisionRewrite {
		return env
	}

	rewritten := env.DeepCopy()
	if d.RewrittenIntent != nil {
		rewritten.Intent = *d.RewrittenIntent
	}
	if d.RewrittenRiskLevel != "" {
		rewritten.RiskLevel = d.RewrittenRiskLevel
	}
	return rewritten
}
