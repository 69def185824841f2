package vdi

import (
	"encoding/json"
	"fmt"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// TaskKind identifies the upstream automation task category.
type TaskKind string

const (
	KindBrowse     TaskKind = "browse"
	KindFormSubmit TaskKind = "form_submit"
	KindDownload   TaskKind = "download"
)

// Intent returns the lifecycle intent name for the kind, as carried in
// telemetry and audit entries.
func (k TaskKind) Intent() string {
	return "vdi." + string(k)
}

// Path returns the upstream service path for the kind.
func (k TaskKind) Path() string {
	switch k {
	case KindBrowse:
		return "/tasks/browse"
	case KindFormSubmit:
		return "/tasks/form-submit"
	case KindDownload:
		return "/tasks/download"
	default:
		return "/tasks/" + string(k)
	}
}

// Task status values over its lifecycle.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
)

// Task records one proxied task's lifecycle. Forward creates it when
// the proxy call begins, advances Status and Attempts on every upstream
// attempt, and leaves it terminal (succeeded or failed) when the call
// returns. Result holds the upstream response body on success.
type Task struct {
	TaskID   string         `json:"task_id"`
	Kind     TaskKind       `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	Status   string         `json:"status"`
	Attempts int            `json:"attempts"`
	Result   map[string]any `json:"result,omitempty"`
}

// BaseRequest carries the fields shared by all proxied task requests.
type BaseRequest struct {
	ActionID         string                     `json:"action_id,omitempty"`
	TraceID          string                     `json:"trace_id,omitempty"`
	PersonID         string                     `json:"person_id"`
	URL              string                     `json:"url"`
	SessionID        string                     `json:"session_id,omitempty"`
	WaitFor          string                     `json:"wait_for,omitempty"`
	Headers          map[string]string          `json:"headers,omitempty"`
	RiskLevel        envelope.RiskLevel         `json:"risk_level,omitempty"`
	TelemetryChannel *envelope.TelemetryChannel `json:"telemetry_channel,omitempty"`
}

// Validate checks the fields every task request must carry.
func (r *BaseRequest) Validate() error {
	if r.PersonID == "" {
		return fmt.Errorf("vdi: person_id is required")
	}
	if r.URL == "" {
		return fmt.Errorf("vdi: url is required")
	}
	if r.RiskLevel != "" && !r.RiskLevel.IsValid() {
		return fmt.Errorf("vdi: unrecognised risk level %q", r.RiskLevel)
	}
	return nil
}

// Risk returns the declared risk level, defaulting to low.
func (r *BaseRequest) Risk() envelope.RiskLevel {
	if r.RiskLevel == "" {
		return envelope.RiskLow
	}
	return r.RiskLevel
}

// BrowseAction is one step in a browse task.
type BrowseAction struct {
	ClickSelector string `json:"click_selector,omitempty"`
	WaitFor       string `json:"wait_for,omitempty"`
}

// BrowseRequest asks the upstream agent to navigate and interact with
// a page.
type BrowseRequest struct {
	BaseRequest
	Actions []BrowseAction `json:"actions,omitempty"`
}

// FormField is one field in a form-submit task.
type FormField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
}

// FormSubmitRequest asks the upstream agent to fill and submit a form.
type FormSubmitRequest struct {
	BaseRequest
	Form           []FormField `json:"form,omitempty"`
	SubmitSelector string      `json:"submit_selector,omitempty"`
}

// DownloadRequest asks the upstream agent to fetch a file.
type DownloadRequest struct {
	BaseRequest
	TargetPath string `json:"target_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// UpstreamPayload converts a request into the JSON object forwarded to
// the upstream service. Proxy-local fields (telemetry channel, action
// and trace IDs) and null values are stripped.
func UpstreamPayload(req any) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("vdi: encode task payload: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("vdi: decode task payload: %w", err)
	}

	delete(payload, "telemetry_channel")
	delete(payload, "action_id")
	delete(payload, "trace_id")
	for k, v := range payload {
		if v == nil {
			delete(payload, k)
		}
	}

	return payload, nil
}
