package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unison-systems/actuation-core/internal/engine"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/policy"
	"github.com/unison-systems/actuation-core/internal/telemetry"
	"github.com/unison-systems/actuation-core/internal/vdi"
)

// handleVDIBrowse proxies a browse task to the upstream VDI agent.
func (s *Server) handleVDIBrowse(w http.ResponseWriter, r *http.Request) {
	var req vdi.BrowseRequest
	if !s.decodeVDIRequest(w, r, &req) {
		return
	}
	s.forwardVDITask(w, r, vdi.KindBrowse, &req.BaseRequest, &req)
}

// handleVDIFormSubmit proxies a form-submit task to the upstream VDI agent.
func (s *Server) handleVDIFormSubmit(w http.ResponseWriter, r *http.Request) {
	var req vdi.FormSubmitRequest
	if !s.decodeVDIRequest(w, r, &req) {
		return
	}
	s.forwardVDITask(w, r, vdi.KindFormSubmit, &req.BaseRequest, &req)
}

// handleVDIDownload proxies a download task to the upstream VDI agent.
func (s *Server) handleVDIDownload(w http.ResponseWriter, r *http.Request) {
	var req vdi.DownloadRequest
	if !s.decodeVDIRequest(w, r, &req) {
		return
	}
	s.forwardVDITask(w, r, vdi.KindDownload, &req.BaseRequest, &req)
}

// decodeVDIRequest parses a task request body into dst.
func (s *Server) decodeVDIRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if s.vdiProxy == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "vdi proxy not configured")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// forwardVDITask runs a task request through the risk gate and policy
// evaluation, then forwards it upstream with retries and a progress
// heartbeat. Telemetry mirrors the action lifecycle: pending, started,
// in_progress per heartbeat, then succeeded or failed.
func (s *Server) forwardVDITask(w http.ResponseWriter, r *http.Request, kind vdi.TaskKind, base *vdi.BaseRequest, req any) {
	if id := identityFrom(r.Context()); id != nil && base.PersonID == "" {
		base.PersonID = id.PersonID
	}
	if err := base.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if base.ActionID == "" {
		base.ActionID = "vdi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	actionID := base.ActionID

	env := s.vdiEnvelope(kind, base)
	if s.gate != nil {
		if err := s.gate.Check(env, gate.Limits{}); err != nil {
			s.emitVDI(actionID, kind, "rejected", telemetry.LifecycleRejected, nil, err.Error())
			writePipelineError(w, err)
			return
		}
	}
	if s.policy != nil {
		if decision := s.policy.Evaluate(r.Context(), env); decision.Kind == policy.DecisionReject {
			s.emitVDI(actionID, kind, "rejected", telemetry.LifecycleRejected, nil, decision.Reason)
			writePipelineError(w, &engine.PolicyRejectedError{Reason: decision.Reason})
			return
		}
	}

	payload, err := vdi.UpstreamPayload(req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.emitVDI(actionID, kind, vdi.TaskPending, telemetry.LifecycleSubmitted, nil, "")
	s.emitVDI(actionID, kind, vdi.TaskInProgress, telemetry.LifecycleStarted, nil, "")

	onProgress := func(elapsed time.Duration) {
		s.emitVDI(actionID, kind, vdi.TaskInProgress, telemetry.LifecycleInProgress,
			map[string]any{"elapsed_ms": elapsed.Milliseconds()}, "")
	}

	task, err := s.vdiProxy.Forward(r.Context(), kind, payload, onProgress)
	if err != nil {
		detail := map[string]any{}
		if task != nil {
			detail["attempts"] = task.Attempts
		}
		s.emitVDI(actionID, kind, vdi.TaskFailed, telemetry.LifecycleFailed, detail, err.Error())
		writePipelineError(w, err)
		return
	}

	s.emitVDI(actionID, kind, task.Status, telemetry.LifecycleCompleted, task.Result, "")

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": actionID,
		"task_id":   task.TaskID,
		"status":    task.Status,
		"attempts":  task.Attempts,
		"result":    task.Result,
	})
}

// vdiEnvelope builds the synthetic envelope the gate and policy layers
// evaluate for a proxied task.
func (s *Server) vdiEnvelope(kind vdi.TaskKind, base *vdi.BaseRequest) *envelope.ActionEnvelope {
	env := &envelope.ActionEnvelope{
		ActionID:  base.ActionID,
		PersonID:  base.PersonID,
		RiskLevel: base.Risk(),
		Target: envelope.Target{
			DeviceID:    "vdi-agent",
			DeviceClass: "vdi",
		},
		Intent: envelope.Intent{
			Name:       kind.Intent(),
			Parameters: map[string]any{"url": base.URL},
		},
		TelemetryChannel: base.TelemetryChannel,
	}
	env.Normalize()
	return env
}

// emitVDI sends one task lifecycle telemetry event.
func (s *Server) emitVDI(actionID string, kind vdi.TaskKind, status, lifecycle string, tel map[string]any, detail string) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(telemetry.Event{
		ActionID:    actionID,
		Status:      status,
		Lifecycle:   lifecycle,
		DeviceID:    "vdi-agent",
		DeviceClass: "vdi",
		Intent:      kind.Intent(),
		Telemetry:   tel,
		Detail:      detail,
	})
}
