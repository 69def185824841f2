package gate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

func testEnvelope(level envelope.RiskLevel) *envelope.ActionEnvelope {
	return &envelope.ActionEnvelope{
		SchemaVersion: envelope.SchemaVersion,
		ActionID:      "act-1",
		PersonID:      "person-1",
		Target:        envelope.Target{DeviceID: "lamp", DeviceClass: "mock_home"},
		Intent:        envelope.Intent{Name: "turn_on"},
		RiskLevel:     level,
	}
}

func TestCheck_AllowedLevels(t *testing.T) {
	g := New([]envelope.RiskLevel{envelope.RiskLow, envelope.RiskMedium})

	tests := []struct {
		level   envelope.RiskLevel
		blocked bool
	}{
		{envelope.RiskLow, false},
		{envelope.RiskMedium, false},
		{envelope.RiskHigh, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			err := g.Check(testEnvelope(tt.level), Limits{})
			if tt.blocked {
				var rb *RiskBlocked
				if !errors.As(err, &rb) {
					t.Fatalf("Check() = %v, want *RiskBlocked", err)
				}
				if !strings.Contains(rb.Reason, "risk") {
					t.Errorf("reason %q should mention risk", rb.Reason)
				}
			} else if err != nil {
				t.Errorf("Check() = %v, want nil", err)
			}
		})
	}
}

func TestCheck_EnvelopeConstraintIntersection(t *testing.T) {
	// Process config allows medium, but the envelope restricts itself
	// to low only. The more restrictive set wins.
	g := New([]envelope.RiskLevel{envelope.RiskLow, envelope.RiskMedium})

	env := testEnvelope(envelope.RiskMedium)
	env.Constraints = &envelope.Constraints{
		AllowedRiskLevels: []envelope.RiskLevel{envelope.RiskLow},
	}

	var rb *RiskBlocked
	if err := g.Check(env, Limits{}); !errors.As(err, &rb) {
		t.Fatalf("Check() = %v, want *RiskBlocked", err)
	}
}

func TestCheck_EmptyAllowedSetBlocksAll(t *testing.T) {
	g := New(nil)
	if err := g.Check(testEnvelope(envelope.RiskLow), Limits{}); err == nil {
		t.Error("empty allowed set should block low-risk envelopes")
	}
}

func TestCheck_QuietHours(t *testing.T) {
	midnight := func() time.Time {
		return time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)
	}
	noon := func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	env := testEnvelope(envelope.RiskLow)
	env.Constraints = &envelope.Constraints{QuietHours: []string{"22:00-06:00"}}

	inside := New([]envelope.RiskLevel{envelope.RiskLow}, WithClock(midnight))
	var rb *RiskBlocked
	if err := inside.Check(env, Limits{}); !errors.As(err, &rb) {
		t.Fatalf("Check() inside quiet hours = %v, want *RiskBlocked", err)
	}
	if !strings.Contains(rb.Reason, "quiet hours") {
		t.Errorf("reason %q should mention quiet hours", rb.Reason)
	}

	outside := New([]envelope.RiskLevel{envelope.RiskLow}, WithClock(noon))
	if err := outside.Check(env, Limits{}); err != nil {
		t.Errorf("Check() outside quiet hours = %v, want nil", err)
	}
}

func TestCheck_MaxDuration(t *testing.T) {
	g := New([]envelope.RiskLevel{envelope.RiskLow})

	over := int64(10_000)
	env := testEnvelope(envelope.RiskLow)
	env.Constraints = &envelope.Constraints{MaxDurationMs: &over}

	if err := g.Check(env, Limits{MaxDuration: 5 * time.Second}); err == nil {
		t.Error("duration above driver limit should be blocked")
	}

	// Unknown driver limit: duration is not checked.
	if err := g.Check(env, Limits{}); err != nil {
		t.Errorf("Check() with no driver limit = %v, want nil", err)
	}

	under := int64(1_000)
	env.Constraints.MaxDurationMs = &under
	if err := g.Check(env, Limits{MaxDuration: 5 * time.Second}); err != nil {
		t.Errorf("Check() under limit = %v, want nil", err)
	}
}

func TestCheck_Deterministic(t *testing.T) {
	g := New([]envelope.RiskLevel{envelope.RiskLow})
	env := testEnvelope(envelope.RiskHigh)

	first := g.Check(env, Limits{})
	for i := 0; i < 5; i++ {
		if got := g.Check(env, Limits{}); (got == nil) != (first == nil) {
			t.Fatal("gate verdict changed between identical checks")
		}
	}
}
