package gate

import (
	"fmt"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// RiskBlocked is returned when an envelope fails a risk or constraint
// gate. It is deterministic and never retried: the same envelope against
// the same configuration always produces the same verdict.
type RiskBlocked struct {
	Level  envelope.RiskLevel
	Reason string
}

func (e *RiskBlocked) Error() string {
	return fmt.Sprintf("gate: risk level %s blocked: %s", e.Level, e.Reason)
}

// Limits carries driver-declared execution limits known at gate time.
// Zero values mean "no declared limit".
type Limits struct {
	// MaxDuration is the longest execution the selected driver supports.
	MaxDuration time.Duration
}

// Gate enforces the configured set of allowed risk levels plus any
// envelope-local constraints (tighter allowed set, quiet hours, max
// duration). It produces a pass/blocked decision before any policy
// call is made.
//
// Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	allowed map[envelope.RiskLevel]struct{}

	// now is injectable for quiet-hours tests.
	now func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source used for quiet-hours checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New constructs a Gate from the process-wide allowed risk levels.
// Unknown level strings in the list are ignored; an empty effective set
// blocks everything.
func New(allowedLevels []envelope.RiskLevel, opts ...Option) *Gate {
	g := &Gate{
		allowed: make(map[envelope.RiskLevel]struct{}, len(allowedLevels)),
		now:     time.Now,
	}
	for _, lvl := range allowedLevels {
		if lvl.IsValid() {
			g.allowed[lvl] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check decides whether the envelope may proceed to policy evaluation.
//
// The effective allowed set is the intersection of the process-wide
// configuration and the envelope's own constraints.allowed_risk_levels
// when present: the more restrictive always wins. Quiet-hours windows
// are evaluated against the current wall-clock time, and the declared
// max_duration_ms is checked against the driver limit when known.
//
// Returns nil on pass, or *RiskBlocked describing the first gate that
// refused the envelope.
func (g *Gate) Check(env *envelope.ActionEnvelope, limits Limits) error {
	if _, ok := g.allowed[env.RiskLevel]; !ok {
		return &RiskBlocked{
			Level:  env.RiskLevel,
			Reason: fmt.Sprintf("risk level %q is not in the allowed set %v", env.RiskLevel, g.allowedList()),
		}
	}

	if env.Constraints == nil {
		return nil
	}

	if len(env.Constraints.AllowedRiskLevels) > 0 {
		permitted := false
		for _, lvl := range env.Constraints.AllowedRiskLevels {
			if lvl == env.RiskLevel {
				permitted = true
				break
			}
		}
		if !permitted {
			return &RiskBlocked{
				Level:  env.RiskLevel,
				Reason: fmt.Sprintf("risk level %q excluded by envelope constraints %v", env.RiskLevel, env.Constraints.AllowedRiskLevels),
			}
		}
	}

	if err := g.checkQuietHours(env); err != nil {
		return err
	}

	if env.Constraints.MaxDurationMs != nil && limits.MaxDuration > 0 {
		requested := time.Duration(*env.Constraints.MaxDurationMs) * time.Millisecond
		if requested > limits.MaxDuration {
			return &RiskBlocked{
				Level:  env.RiskLevel,
				Reason: fmt.Sprintf("requested duration %v exceeds driver limit %v", requested, limits.MaxDuration),
			}
		}
	}

	return nil
}

// checkQuietHours blocks the envelope when the current time falls
// inside any declared quiet window. Windows arrive pre-validated, so a
// parse failure here is treated as blocking (fail closed).
func (g *Gate) checkQuietHours(env *envelope.ActionEnvelope) error {
	if len(env.Constraints.QuietHours) == 0 {
		return nil
	}

	now := g.now()
	for _, raw := range env.Constraints.QuietHours {
		window, err := envelope.ParseTimeWindow(raw)
		if err != nil {
			return &RiskBlocked{
				Level:  env.RiskLevel,
				Reason: fmt.Sprintf("unparseable quiet-hours window %q", raw),
			}
		}
		if window.Contains(now) {
			return &RiskBlocked{
				Level:  env.RiskLevel,
				Reason: fmt.Sprintf("current time falls within quiet hours %s", raw),
			}
		}
	}
	return nil
}

// allowedList returns the configured levels in ascending risk order for
// stable error messages.
func (g *Gate) allowedList() []envelope.RiskLevel {
	out := make([]envelope.RiskLevel, 0, len(g.allowed))
	for _, lvl := range envelope.AllRiskLevels() {
		if _, ok := g.allowed[lvl]; ok {
			out = append(out, lvl)
		}
	}
	return out
}
