package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unison-systems/actuation-core/internal/audit"
	"github.com/unison-systems/actuation-core/internal/confirm"
	"github.com/unison-systems/actuation-core/internal/driver"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/policy"
	"github.com/unison-systems/actuation-core/internal/telemetry"
)

// Logger is the minimal logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators the engine orchestrates.
type Deps struct {
	Gate        *gate.Gate
	Policy      policy.Evaluator
	Registry    *driver.Registry
	Coordinator *confirm.Coordinator
	Emitter     *telemetry.Emitter
	Recorder    *audit.Recorder

	// RequiredScopes, when non-empty, must be satisfied by the
	// envelope's policy context before any driver executes. A scope
	// satisfies the check if it appears in this set or carries the
	// "actuation." prefix.
	RequiredScopes []string

	Logger Logger
}

// Engine drives an envelope through the pipeline:
//
//	submitted → validated → risk_checked → policy_evaluated →
//	(confirmation_pending?) → routed → executing → completed|failed|rejected
//
// Every transition emits a telemetry event and an audit entry.
// Rejections at any gate short-circuit to rejected without reaching a
// driver. The same transition logic serves the synchronous call path
// (Execute) and the asynchronous one (Submit plus Result polling).
type Engine struct {
	gate        *gate.Gate
	policy      policy.Evaluator
	registry    *driver.Registry
	coordinator *confirm.Coordinator
	emitter     *telemetry.Emitter
	recorder    *audit.Recorder

	requiredScopes []string
	logger         Logger

	store *resultStore
	wg    sync.WaitGroup
}

// New constructs an engine and wires itself into the coordinator's
// resolution callback.
func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	e := &Engine{
		gate:           deps.Gate,
		policy:         deps.Policy,
		registry:       deps.Registry,
		coordinator:    deps.Coordinator,
		emitter:        deps.Emitter,
		recorder:       deps.Recorder,
		requiredScopes: deps.RequiredScopes,
		logger:         deps.Logger,
		store:          newResultStore(),
	}

	if e.coordinator != nil {
		e.coordinator.SetOnResolved(e.onConfirmationResolved)
	}

	return e
}

// Execute runs an envelope through the pipeline synchronously. The
// caller blocks until a terminal state, except for confirmation holds
// which return an awaiting_confirmation acknowledgment.
//
// A re-submitted action_id returns the prior (or in-flight) result
// without re-executing. Returned errors are typed for the transport
// layer: *envelope.ValidationError, *gate.RiskBlocked,
// *PolicyRejectedError, driver.ErrNotFound, *driver.Error,
// ErrMissingScope, ErrAuditUnavailable.
func (e *Engine) Execute(ctx context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	env.Normalize()
	if err := envelope.Validate(env); err != nil {
		e.auditEntry(ctx, env, audit.StageValidation, "rejected", "", map[string]any{"error": err.Error()})
		return nil, err
	}

	if prior, fresh := e.store.claim(env.ActionID, inflightResult(env, envelope.StatusSubmitted)); !fresh {
		e.logger.Info("duplicate action_id, returning prior result",
			"action_id", env.ActionID,
			"status", prior.Status)
		return prior, nil
	}

	e.emit(env, telemetry.LifecycleSubmitted, envelope.StatusSubmitted, nil, "")
	return e.process(ctx, env)
}

// Submit runs the same pipeline asynchronously: the caller receives a
// submitted acknowledgment immediately and polls Result (or streams
// telemetry) for the terminal state.
func (e *Engine) Submit(env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	env.Normalize()
	if err := envelope.Validate(env); err != nil {
		e.auditEntry(context.Background(), env, audit.StageValidation, "rejected", "", map[string]any{"error": err.Error()})
		return nil, err
	}

	ack := inflightResult(env, envelope.StatusSubmitted)
	if prior, fresh := e.store.claim(env.ActionID, ack); !fresh {
		return prior, nil
	}

	e.emit(env, telemetry.LifecycleSubmitted, envelope.StatusSubmitted, nil, "")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.process(context.Background(), env); err != nil {
			e.logger.Debug("async action ended with error",
				"action_id", env.ActionID,
				"error", err)
		}
	}()

	return ack, nil
}

// Result returns the current result (in-flight or terminal) for an
// action the engine has seen.
func (e *Engine) Result(actionID string) (*envelope.ActionResult, error) {
	if res, ok := e.store.get(actionID); ok {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
}

// Close waits for in-flight asynchronous executions and background
// audit writes to settle.
func (e *Engine) Close() {
	e.wg.Wait()
	if e.recorder != nil {
		e.recorder.Flush()
	}
}

// process drives a validated, claimed envelope through the gates and,
// unless held for confirmation, on to execution.
func (e *Engine) process(ctx context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	if err := e.gate.Check(env, gate.Limits{}); err != nil {
		return e.finishRejected(ctx, env, audit.StageRiskGate, "", err), err
	}
	e.auditEntry(ctx, env, audit.StageRiskGate, "passed", "", nil)

	decision := e.policy.Evaluate(ctx, env)
	if decision.Kind == policy.DecisionReject {
		err := &PolicyRejectedError{Reason: decision.Reason}
		return e.finishRejected(ctx, env, audit.StagePolicy, "", err), err
	}
	e.auditEntry(ctx, env, audit.StagePolicy, string(decision.Kind), "", nil)
	e.emit(env, telemetry.LifecyclePermitted, envelope.StatusSubmitted, nil, "")

	if decision.Kind == policy.DecisionRequireConfirmation {
		return e.hold(ctx, env, decision)
	}

	return e.execute(ctx, decision.Apply(env))
}

// hold parks the envelope with the confirmation coordinator and
// returns the awaiting acknowledgment.
func (e *Engine) hold(ctx context.Context, env *envelope.ActionEnvelope, decision policy.Decision) (*envelope.ActionResult, error) {
	e.coordinator.Hold(env, decision.ConfirmationID, decision.MinConfirmations)

	res := &envelope.ActionResult{
		ActionID: env.ActionID,
		Status:   envelope.StatusAwaitingConfirmation,
		Message: fmt.Sprintf("action requires %d confirmation(s) before execution",
			decision.MinConfirmations),
		Telemetry: map[string]any{"confirmation_id": decision.ConfirmationID},
		StartedAt: time.Now().UTC(),
	}
	e.store.put(res)

	e.emit(env, telemetry.LifecyclePending, envelope.StatusAwaitingConfirmation, nil, "")
	e.auditEntry(ctx, env, audit.StageConfirmation, "pending", "", map[string]any{
		"confirmation_id":   decision.ConfirmationID,
		"min_confirmations": decision.MinConfirmations,
	})

	return res, nil
}

// onConfirmationResolved continues or terminates a held action when
// its confirmation reaches a terminal state.
func (e *Engine) onConfirmationResolved(p *confirm.Pending, outcome confirm.State) {
	env := p.Envelope
	ctx := context.Background()

	switch outcome {
	case confirm.StateConfirmed:
		e.auditEntry(ctx, env, audit.StageConfirmation, "confirmed", "", nil)
		e.store.put(inflightResult(env, envelope.StatusExecuting))
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if _, err := e.execute(ctx, env); err != nil {
				e.logger.Debug("confirmed action ended with error",
					"action_id", env.ActionID,
					"error", err)
			}
		}()

	case confirm.StateDenied, confirm.StateExpired:
		err := &ConfirmationRefusedError{Outcome: string(outcome)}
		e.finishRejected(ctx, env, audit.StageConfirmation, "", err)

	default:
		e.logger.Error("unexpected confirmation outcome",
			"action_id", env.ActionID,
			"outcome", string(outcome))
	}
}

// execute routes the envelope to a driver and runs it.
func (e *Engine) execute(ctx context.Context, env *envelope.ActionEnvelope) (*envelope.ActionResult, error) {
	drv, err := e.registry.Route(env)
	if err != nil {
		return e.finishRejected(ctx, env, audit.StageRouting, "", err), err
	}

	if env.RiskLevel.Rank() > drv.MaxRiskLevel().Rank() {
		blocked := &gate.RiskBlocked{
			Level: env.RiskLevel,
			Reason: fmt.Sprintf("risk level %q exceeds driver %q allowance %q",
				env.RiskLevel, drv.Name(), drv.MaxRiskLevel()),
		}
		return e.finishRejected(ctx, env, audit.StageRouting, drv.Name(), blocked), blocked
	}

	// Drivers that declare a duration ceiling get the envelope's
	// constraints re-checked against it.
	if dl, ok := drv.(interface{ MaxDuration() time.Duration }); ok {
		if err := e.gate.Check(env, gate.Limits{MaxDuration: dl.MaxDuration()}); err != nil {
			return e.finishRejected(ctx, env, audit.StageRouting, drv.Name(), err), err
		}
	}

	if err := e.checkScopes(env); err != nil {
		return e.finishRejected(ctx, env, audit.StageRouting, drv.Name(), err), err
	}

	e.auditEntry(ctx, env, audit.StageRouting, "routed", drv.Name(), nil)
	e.emitDriver(env, telemetry.LifecycleExecuting, envelope.StatusExecuting, drv.Name(), nil, "")
	e.store.put(inflightResult(env, envelope.StatusExecuting))

	result, err := drv.Execute(ctx, env)
	if err != nil {
		return e.finishFailed(ctx, env, drv.Name(), err), err
	}

	result.ActionID = env.ActionID
	if result.Driver == "" {
		result.Driver = drv.Name()
	}

	// A completed high-risk action that cannot be audited must not be
	// reported as completed.
	if auditErr := e.auditEntry(ctx, env, audit.StageExecution, result.Status, drv.Name(),
		map[string]any{"intent": env.Intent.Name}); auditErr != nil {
		err := fmt.Errorf("%w: %w", ErrAuditUnavailable, auditErr)
		return e.finishFailed(ctx, env, drv.Name(), err), err
	}

	e.store.put(result)
	e.emitDriver(env, telemetry.LifecycleCompleted, result.Status, result.Driver, completedTelemetry(result), "")

	e.logger.Info("action completed",
		"action_id", env.ActionID,
		"driver", drv.Name(),
		"status", result.Status)

	return result, nil
}

// checkScopes enforces the configured required actuation scopes
// against the envelope's policy context. A scope passes if it appears
// in the required set or carries the "actuation." prefix.
func (e *Engine) checkScopes(env *envelope.ActionEnvelope) error {
	if len(e.requiredScopes) == 0 {
		return nil
	}

	var scopes []string
	if env.PolicyContext != nil {
		scopes = env.PolicyContext.Scopes
	}
	for _, scope := range scopes {
		if strings.HasPrefix(scope, "actuation.") {
			return nil
		}
		for _, required := range e.requiredScopes {
			if scope == required {
				return nil
			}
		}
	}

	return ErrMissingScope
}

// finishRejected records a rejected terminal result for an envelope
// that never reached a driver.
func (e *Engine) finishRejected(ctx context.Context, env *envelope.ActionEnvelope, stage, driverName string, cause error) *envelope.ActionResult {
	now := time.Now().UTC()
	res := &envelope.ActionResult{
		ActionID: env.ActionID,
		Status:   envelope.StatusRejected,
		Message:  cause.Error(),
		Driver:   driverName,
		Error: &envelope.ResultError{
			Kind:    errorKind(cause),
			Message: cause.Error(),
		},
		StartedAt: now,
		EndedAt:   now,
	}
	e.store.put(res)

	e.emitDriver(env, telemetry.LifecycleRejected, envelope.StatusRejected, driverName, nil, cause.Error())
	if err := e.auditEntry(ctx, env, stage, "rejected", driverName, map[string]any{"error": cause.Error()}); err != nil {
		e.logger.Error("audit write failed for rejection",
			"action_id", env.ActionID,
			"stage", stage,
			"error", err)
	}

	e.logger.Info("action rejected",
		"action_id", env.ActionID,
		"stage", stage,
		"reason", cause.Error())

	return res
}

// finishFailed records a failed terminal result for a driver-stage
// failure.
func (e *Engine) finishFailed(ctx context.Context, env *envelope.ActionEnvelope, driverName string, cause error) *envelope.ActionResult {
	now := time.Now().UTC()
	res := &envelope.ActionResult{
		ActionID: env.ActionID,
		Status:   envelope.StatusFailed,
		Message:  cause.Error(),
		Driver:   driverName,
		Error: &envelope.ResultError{
			Kind:    errorKind(cause),
			Message: cause.Error(),
		},
		StartedAt: now,
		EndedAt:   now,
	}
	e.store.put(res)

	e.emitDriver(env, telemetry.LifecycleFailed, envelope.StatusFailed, driverName, nil, cause.Error())
	if err := e.auditEntry(ctx, env, audit.StageExecution, "failed", driverName, map[string]any{"error": cause.Error()}); err != nil {
		e.logger.Error("audit write failed for failure",
			"action_id", env.ActionID,
			"error", err)
	}

	return res
}

// emit fans a lifecycle event out through the telemetry emitter.
func (e *Engine) emit(env *envelope.ActionEnvelope, lifecycle, status string, tel map[string]any, detail string) {
	e.emitDriver(env, lifecycle, status, "", tel, detail)
}

func (e *Engine) emitDriver(env *envelope.ActionEnvelope, lifecycle, status, driverName string, tel map[string]any, detail string) {
	if e.emitter == nil {
		return
	}
	if tel == nil && env.TelemetryChannel != nil && env.TelemetryChannel.IncludeParameters {
		tel = map[string]any{"parameters": env.Intent.Parameters}
	}
	e.emitter.Emit(telemetry.Event{
		ActionID:    env.ActionID,
		Status:      status,
		Lifecycle:   lifecycle,
		DeviceID:    env.Target.DeviceID,
		DeviceClass: env.Target.DeviceClass,
		Intent:      env.Intent.Name,
		Driver:      driverName,
		RiskLevel:   string(env.RiskLevel),
		Telemetry:   tel,
		Detail:      detail,
	})
}

// completedTelemetry copies the driver-reported telemetry and stamps the
// measured wall-clock duration so downstream sinks can record it without
// re-deriving timestamps.
func completedTelemetry(result *envelope.ActionResult) map[string]any {
	tel := make(map[string]any, len(result.Telemetry)+1)
	for k, v := range result.Telemetry {
		tel[k] = v
	}
	if !result.StartedAt.IsZero() && !result.EndedAt.IsZero() {
		tel["duration_ms"] = result.EndedAt.Sub(result.StartedAt).Milliseconds()
	}
	return tel
}

// auditEntry records one pipeline stage according to the risk-based
// durability policy.
func (e *Engine) auditEntry(ctx context.Context, env *envelope.ActionEnvelope, stage, outcome, driverName string, detail map[string]any) error {
	if e.recorder == nil {
		return nil
	}
	return e.recorder.Record(ctx, env.RiskLevel, &audit.Entry{
		ActionID:  env.ActionID,
		PersonID:  env.PersonID,
		Stage:     stage,
		Outcome:   outcome,
		RiskLevel: string(env.RiskLevel),
		Driver:    driverName,
		Detail:    detail,
	})
}

// inflightResult builds a non-terminal placeholder result.
func inflightResult(env *envelope.ActionEnvelope, status string) *envelope.ActionResult {
	return &envelope.ActionResult{
		ActionID:  env.ActionID,
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
}
