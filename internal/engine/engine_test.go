package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unison-systems/actuation-core/internal/audit"
	"github.com/unison-systems/actuation-core/internal/confirm"
	"github.com/unison-systems/actuation-core/internal/driver"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/policy"
	"github.com/unison-systems/actuation-core/internal/telemetry"
)

type fakePolicy struct {
	decision policy.Decision
}

func (f fakePolicy) Evaluate(_ context.Context, _ *envelope.ActionEnvelope) policy.Decision {
	return f.decision
}

func permitAll() fakePolicy {
	return fakePolicy{decision: policy.Decision{Kind: policy.DecisionPermit}}
}

// spyDriver counts Execute calls so tests can assert a gate rejection
// never reached the driver.
type spyDriver struct {
	mu      sync.Mutex
	calls   int
	maxRisk envelope.RiskLevel
	execErr error
}

func (d *spyDriver) Name() string { return "spy" }

func (d *spyDriver) Capabilities() []driver.Capability {
	return []driver.Capability{{Name: "*"}}
}

func (d *spyDriver) MaxRiskLevel() envelope.RiskLevel {
	if d.maxRisk == "" {
		return envelope.RiskHigh
	}
	return d.maxRisk
}

func (d *spyDriver) Execute(_ context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.execErr != nil {
		return nil, d.execErr
	}
	now := time.Now().UTC()
	return &envelope.ActionResult{
		ActionID:  env.ActionID,
		Status:    envelope.StatusCompleted,
		Driver:    d.Name(),
		Telemetry: map[string]any{"intent": env.Intent.Name},
		StartedAt: now,
		EndedAt:   now,
	}, nil
}

func (d *spyDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*audit.Entry
	fail    bool
}

func (r *fakeAuditRepo) Create(_ context.Context, entry *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("audit store unavailable")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, _ audit.Filter) (*audit.ListResult, error) {
	return &audit.ListResult{}, nil
}

func testEnvelope(id string, risk envelope.RiskLevel) *envelope.ActionEnvelope {
	return &envelope.ActionEnvelope{
		ActionID:  id,
		PersonID:  "person-1",
		RiskLevel: risk,
		Target:    envelope.Target{DeviceID: "lamp-1", DeviceClass: "light"},
		Intent:    envelope.Intent{Name: "turn_on"},
	}
}

type engineFixture struct {
	engine      *Engine
	drv         *spyDriver
	repo        *fakeAuditRepo
	coordinator *confirm.Coordinator
}

func newFixture(t *testing.T, mutate func(*Deps)) *engineFixture {
	t.Helper()

	drv := &spyDriver{}
	registry := driver.NewRegistry()
	registry.Register(drv)

	repo := &fakeAuditRepo{}
	coordinator := confirm.NewCoordinator(time.Minute)
	t.Cleanup(coordinator.Close)

	deps := Deps{
		Gate:        gate.New(envelope.AllRiskLevels()),
		Policy:      permitAll(),
		Registry:    registry,
		Coordinator: coordinator,
		Recorder:    audit.NewRecorder(repo, nil),
	}
	if mutate != nil {
		mutate(&deps)
	}

	e := New(deps)
	t.Cleanup(e.Close)

	return &engineFixture{engine: e, drv: drv, repo: repo, coordinator: coordinator}
}

func TestExecuteCompletesThroughDriver(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-1", envelope.RiskLow))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusCompleted {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusCompleted)
	}
	if res.Driver != "spy" {
		t.Errorf("driver = %q, want spy", res.Driver)
	}
	if got := f.drv.callCount(); got != 1 {
		t.Errorf("driver invoked %d times, want 1", got)
	}
}

func TestExecuteRiskBlockedNeverReachesDriver(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Gate = gate.New([]envelope.RiskLevel{envelope.RiskLow})
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-2", envelope.RiskMedium))

	var blocked *gate.RiskBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("Execute() error = %v, want *gate.RiskBlocked", err)
	}
	if res.Status != envelope.StatusRejected {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusRejected)
	}
	if !strings.Contains(strings.ToLower(res.Message), "risk") {
		t.Errorf("rejection message %q does not mention risk", res.Message)
	}
	if got := f.drv.callCount(); got != 0 {
		t.Errorf("driver invoked %d times, want 0", got)
	}
}

func TestExecuteLoggingOnlyModeForcesLoggingDriver(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		registry := driver.NewRegistry(driver.WithLoggingOnly(true))
		registry.Register(&spyDriver{})
		d.Registry = registry
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-3", envelope.RiskLow))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Driver != "logging" {
		t.Errorf("driver = %q, want logging", res.Driver)
	}
	if res.Status != envelope.StatusLogged {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusLogged)
	}
}

func TestExecuteDuplicateActionIDIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	env := testEnvelope("act-dup", envelope.RiskLow)

	first, err := f.engine.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}

	second, err := f.engine.Execute(context.Background(), testEnvelope("act-dup", envelope.RiskLow))
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if second != first {
		t.Error("duplicate submission did not return the prior result")
	}
	if got := f.drv.callCount(); got != 1 {
		t.Errorf("driver invoked %d times, want 1", got)
	}
}

func TestExecutePolicyRejectIsTerminal(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Policy = fakePolicy{decision: policy.Decision{
			Kind:   policy.DecisionReject,
			Reason: "quiet hours in effect",
		}}
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-4", envelope.RiskLow))

	var rejected *PolicyRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Execute() error = %v, want *PolicyRejectedError", err)
	}
	if rejected.Reason != "quiet hours in effect" {
		t.Errorf("reason = %q", rejected.Reason)
	}
	if res.Error == nil || res.Error.Kind != "policy_rejected" {
		t.Errorf("result error = %+v, want kind policy_rejected", res.Error)
	}
	if got := f.drv.callCount(); got != 0 {
		t.Errorf("driver invoked %d times, want 0", got)
	}
}

func TestExecuteHoldsForConfirmationThenRuns(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Policy = fakePolicy{decision: policy.Decision{
			Kind:             policy.DecisionRequireConfirmation,
			ConfirmationID:   "conf-1",
			MinConfirmations: 1,
		}}
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-5", envelope.RiskMedium))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != envelope.StatusAwaitingConfirmation {
		t.Fatalf("status = %q, want %q", res.Status, envelope.StatusAwaitingConfirmation)
	}
	if got := f.drv.callCount(); got != 0 {
		t.Fatalf("driver invoked before confirmation")
	}

	if _, err := f.coordinator.Confirm("act-5", "approver-1"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	f.engine.Close()

	final, err := f.engine.Result("act-5")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if final.Status != envelope.StatusCompleted {
		t.Errorf("status after confirmation = %q, want %q", final.Status, envelope.StatusCompleted)
	}
	if got := f.drv.callCount(); got != 1 {
		t.Errorf("driver invoked %d times, want 1", got)
	}
}

func TestExecuteDeniedConfirmationRejects(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Policy = fakePolicy{decision: policy.Decision{
			Kind:             policy.DecisionRequireConfirmation,
			ConfirmationID:   "conf-2",
			MinConfirmations: 1,
		}}
	})

	if _, err := f.engine.Execute(context.Background(), testEnvelope("act-6", envelope.RiskMedium)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := f.coordinator.Deny("act-6"); err != nil {
		t.Fatalf("Deny() error = %v", err)
	}

	final, err := f.engine.Result("act-6")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if final.Status != envelope.StatusRejected {
		t.Errorf("status = %q, want %q", final.Status, envelope.StatusRejected)
	}
	if final.Error == nil || final.Error.Kind != "confirmation_denied" {
		t.Errorf("result error = %+v, want kind confirmation_denied", final.Error)
	}
	if got := f.drv.callCount(); got != 0 {
		t.Errorf("driver invoked %d times, want 0", got)
	}
}

func TestExecuteDriverRiskCap(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		registry := driver.NewRegistry()
		registry.Register(&spyDriver{maxRisk: envelope.RiskMedium})
		d.Registry = registry
	})

	env := testEnvelope("act-7", envelope.RiskHigh)
	res, err := f.engine.Execute(context.Background(), env)

	var blocked *gate.RiskBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("Execute() error = %v, want *gate.RiskBlocked", err)
	}
	if !strings.Contains(res.Message, "allowance") {
		t.Errorf("message = %q, want driver allowance mention", res.Message)
	}
}

func TestExecuteScopeEnforcement(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"no policy context", nil, true},
		{"unrelated scope", []string{"calendar.read"}, true},
		{"exact required scope", []string{"devices.control"}, false},
		{"actuation prefix", []string{"actuation.basic"}, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *Deps) {
				d.RequiredScopes = []string{"devices.control"}
			})

			env := testEnvelope("act-scope-"+string(rune('a'+i)), envelope.RiskLow)
			if tt.scopes != nil {
				env.PolicyContext = &envelope.PolicyContext{Scopes: tt.scopes}
			}

			_, err := f.engine.Execute(context.Background(), env)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingScope) {
					t.Errorf("Execute() error = %v, want ErrMissingScope", err)
				}
			} else if err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		})
	}
}

func TestExecuteHighRiskAuditFailureIsFatal(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Recorder = audit.NewRecorder(&fakeAuditRepo{fail: true}, nil)
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-8", envelope.RiskHigh))
	if !errors.Is(err, ErrAuditUnavailable) {
		t.Fatalf("Execute() error = %v, want ErrAuditUnavailable", err)
	}
	if res.Status != envelope.StatusFailed {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusFailed)
	}
}

func TestExecuteDriverFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.drv.execErr = errors.New("actuator offline")

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-9", envelope.RiskLow))
	if err == nil {
		t.Fatal("Execute() error = nil, want driver failure")
	}
	if res.Status != envelope.StatusFailed {
		t.Errorf("status = %q, want %q", res.Status, envelope.StatusFailed)
	}
	if res.Driver != "spy" {
		t.Errorf("driver = %q, want spy", res.Driver)
	}
}

func TestExecuteValidationErrorBeforePipeline(t *testing.T) {
	f := newFixture(t, nil)

	env := testEnvelope("act-10", envelope.RiskLow)
	env.Target.DeviceID = ""

	_, err := f.engine.Execute(context.Background(), env)

	var verr *envelope.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Execute() error = %v, want *envelope.ValidationError", err)
	}
	if verr.Field != "target.device_id" {
		t.Errorf("field = %q, want target.device_id", verr.Field)
	}
	if got := f.drv.callCount(); got != 0 {
		t.Errorf("driver invoked %d times, want 0", got)
	}
}

func TestSubmitRunsAsynchronously(t *testing.T) {
	f := newFixture(t, nil)

	ack, err := f.engine.Submit(testEnvelope("act-async", envelope.RiskLow))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if ack.Status != envelope.StatusSubmitted {
		t.Errorf("ack status = %q, want %q", ack.Status, envelope.StatusSubmitted)
	}

	f.engine.Close()

	final, err := f.engine.Result("act-async")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if final.Status != envelope.StatusCompleted {
		t.Errorf("final status = %q, want %q", final.Status, envelope.StatusCompleted)
	}
}

func TestResultUnknownAction(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.engine.Result("never-seen"); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Result() error = %v, want ErrActionNotFound", err)
	}
}

func TestExecuteAppliesPolicyRewrite(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Policy = fakePolicy{decision: policy.Decision{
			Kind: policy.DecisionRewrite,
			RewrittenIntent: &envelope.Intent{
				Name:       "set_brightness",
				Parameters: map[string]any{"brightness": 20},
			},
		}}
	})

	res, err := f.engine.Execute(context.Background(), testEnvelope("act-rw", envelope.RiskLow))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := res.Telemetry["intent"]; got != "set_brightness" {
		t.Errorf("executed intent = %v, want set_brightness", got)
	}
}

func TestLifecycleTelemetryOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []string
	)
	sink := telemetry.SinkFunc(func(event telemetry.Event) {
		mu.Lock()
		stages = append(stages, event.Lifecycle)
		mu.Unlock()
	})
	emitter := telemetry.NewEmitter("", "", "", telemetry.WithSink(sink))

	f := newFixture(t, func(d *Deps) {
		d.Emitter = emitter
	})

	if _, err := f.engine.Execute(context.Background(), testEnvelope("act-tel", envelope.RiskLow)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	emitter.Close()

	want := []string{
		telemetry.LifecycleSubmitted,
		telemetry.LifecyclePermitted,
		telemetry.LifecycleExecuting,
		telemetry.LifecycleCompleted,
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stages) != len(want) {
		t.Fatalf("got %d lifecycle events (%v), want %d", len(stages), stages, len(want))
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, stages[i], want[i])
		}
	}
}

func TestAuditTrailRecordsStages(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.engine.Execute(context.Background(), testEnvelope("act-audit", envelope.RiskHigh)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	f.engine.Close()

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()

	seen := make(map[string]bool)
	for _, entry := range f.repo.entries {
		seen[entry.Stage] = true
	}
	for _, stage := range []string{audit.StageRiskGate, audit.StagePolicy, audit.StageRouting, audit.StageExecution} {
		if !seen[stage] {
			t.Errorf("audit trail missing stage %q", stage)
		}
	}
}
