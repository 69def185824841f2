package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Buffer and fan-out sizing.
const (
	// bufferCap bounds the in-memory buffer of recent events. Oldest
	// entries are evicted FIFO once the cap is reached.
	bufferCap = 100

	// queueCap bounds the outbound fan-out queue. A full queue drops
	// the event rather than delaying the pipeline.
	queueCap = 256

	// postTimeout bounds one delivery attempt to a downstream sink.
	postTimeout = 3 * time.Second
)

// Event is one lifecycle record for an action.
type Event struct {
	ActionID    string         `json:"action_id"`
	Status      string         `json:"status"`
	Lifecycle   string         `json:"lifecycle"`
	DeviceID    string         `json:"device_id"`
	DeviceClass string         `json:"device_class"`
	Intent      string         `json:"intent"`
	Driver      string         `json:"driver,omitempty"`
	RiskLevel   string         `json:"risk_level,omitempty"`
	Telemetry   map[string]any `json:"telemetry,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Lifecycle stage names emitted by the pipeline, in order.
const (
	LifecycleSubmitted  = "submitted"
	LifecyclePermitted  = "permitted"
	LifecycleRejected   = "rejected"
	LifecyclePending    = "pending_confirmation"
	LifecycleExecuting  = "executing"
	LifecycleInProgress = "in_progress"
	LifecycleCompleted  = "completed"
	LifecycleFailed     = "failed"
	LifecycleStarted    = "started"
)

// Sink receives every emitted event in emission order. Implementations
// must not block: a slow sink delays delivery to the others but never
// the pipeline itself (delivery runs on the emitter's worker).
type Sink interface {
	Consume(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

func (f SinkFunc) Consume(event Event) { f(event) }

// Logger is the minimal logging interface the emitter needs.
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

// target is one downstream HTTP consumer of lifecycle events.
type target struct {
	name string
	url  string
}

// Emitter fans lifecycle events out to downstream HTTP consumers and
// in-process sinks, and keeps a bounded in-memory buffer of recent
// events for the telemetry endpoint.
//
// Emit is best-effort and non-blocking: delivery failures are logged
// and swallowed, a full queue drops the event, and nothing the emitter
// does can fail or delay the action pipeline. Events for a single
// action are delivered in emission order because all fan-out flows
// through one worker goroutine.
type Emitter struct {
	mu     sync.Mutex
	buffer []Event

	targets    []target
	sinks      []Sink
	httpClient *http.Client
	logger     Logger

	queue chan Event
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger attaches a logger for delivery failures.
func WithLogger(l Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSink registers an in-process consumer (InfluxDB sink, websocket
// hub). Sinks receive events in emission order.
func WithSink(s Sink) Option {
	return func(e *Emitter) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// AddSink registers an in-process consumer after construction, for
// components whose lifecycle starts later than the emitter's (the
// WebSocket hub). Safe to call while the emitter is delivering.
func (e *Emitter) AddSink(s Sink) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// WithHTTPClient overrides the delivery HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Emitter) { e.httpClient = hc }
}

// NewEmitter constructs a running emitter. The three downstream URLs
// may each be empty; empty targets are skipped. The context-graph
// consumer receives events on /telemetry/actuation, the others on
// /telemetry.
func NewEmitter(contextURL, contextGraphURL, rendererURL string, opts ...Option) *Emitter {
	e := &Emitter{
		buffer:     make([]Event, 0, bufferCap),
		httpClient: &http.Client{Timeout: postTimeout},
		logger:     noopLogger{},
		queue:      make(chan Event, queueCap),
		done:       make(chan struct{}),
	}

	if contextURL != "" {
		e.targets = append(e.targets, target{name: "context", url: strings.TrimRight(contextURL, "/") + "/telemetry"})
	}
	if contextGraphURL != "" {
		e.targets = append(e.targets, target{name: "context-graph", url: strings.TrimRight(contextGraphURL, "/") + "/telemetry/actuation"})
	}
	if rendererURL != "" {
		e.targets = append(e.targets, target{name: "renderer", url: strings.TrimRight(rendererURL, "/") + "/telemetry"})
	}

	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(1)
	go e.deliverLoop()

	return e
}

// Emit records the event in the recent buffer and queues it for
// fan-out. Never blocks; a full queue drops the event with a log line.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	if len(e.buffer) >= bufferCap {
		// FIFO eviction of the oldest entry.
		copy(e.buffer, e.buffer[1:])
		e.buffer = e.buffer[:bufferCap-1]
	}
	e.buffer = append(e.buffer, event)
	e.mu.Unlock()

	select {
	case e.queue <- event:
	default:
		e.logger.Warn("telemetry queue full, event dropped",
			"action_id", event.ActionID,
			"lifecycle", event.Lifecycle)
	}
}

// Recent returns a copy of the buffered events, oldest first.
func (e *Emitter) Recent() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// Close stops the delivery worker after draining queued events.
// Events emitted after Close are buffered but not delivered.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

// deliverLoop is the single fan-out worker. One worker keeps per-action
// event ordering intact across all consumers.
func (e *Emitter) deliverLoop() {
	defer e.wg.Done()
	for {
		select {
		case event := <-e.queue:
			e.deliver(event)
		case <-e.done:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case event := <-e.queue:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver pushes one event to every sink and HTTP target. Failures are
// logged and swallowed.
func (e *Emitter) deliver(event Event) {
	e.mu.Lock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	for _, s := range sinks {
		s.Consume(event)
	}

	if len(e.targets) == 0 {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("telemetry event not encodable", "action_id", event.ActionID, "error", err)
		return
	}

	for _, t := range e.targets {
		e.post(t, body, event.ActionID)
	}
}

func (e *Emitter) post(t target, body []byte, actionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("telemetry delivery skipped", "target", t.name, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("telemetry delivery failed",
			"target", t.name,
			"action_id", actionID,
			"error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		e.logger.Warn("telemetry delivery refused",
			"target", t.name,
			"action_id", actionID,
			"status", resp.StatusCode)
	}
}
