package vdi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpstreamError is a classified failure from the upstream automation
// service. Retryable errors (HTTP 429, any 5xx, network-level failures)
// were retried until attempts ran out; fatal errors (other 4xx) were
// surfaced on first sight.
type UpstreamError struct {
	StatusCode int
	Detail     string
	Retryable  bool
	Attempts   int
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("vdi: upstream unreachable after %d attempt(s): %s", e.Attempts, e.Detail)
	}
	return fmt.Sprintf("vdi: upstream returned HTTP %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Detail)
}

// ErrDeadlineExceeded is returned when the overall retry-loop deadline
// elapses before a definitive upstream answer.
var ErrDeadlineExceeded = errors.New("vdi: overall deadline exceeded")

// Logger is the minimal logging interface the proxy needs.
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

// ProgressFunc receives a heartbeat while an upstream call is
// outstanding, with the elapsed wall-clock time since the call began.
type ProgressFunc func(elapsed time.Duration)

// Config tunes the proxy's resilience behaviour.
type Config struct {
	// BaseURL is the upstream automation service.
	BaseURL string

	// Token, when set, is sent as a bearer token on every attempt.
	Token string

	// RetryAttempts is how many retries follow the initial attempt on
	// a retryable failure.
	RetryAttempts int

	// BackoffBase seeds the exponential inter-attempt delay.
	BackoffBase time.Duration

	// BackoffMax caps the inter-attempt delay.
	BackoffMax time.Duration

	// RequestTimeout bounds one attempt.
	RequestTimeout time.Duration

	// ProgressInterval is the heartbeat period while a call is
	// outstanding. Zero disables heartbeats.
	ProgressInterval time.Duration

	// OverallDeadline caps the whole retry loop (attempts plus
	// backoff delays). Zero means no ceiling beyond the caller's
	// context.
	OverallDeadline time.Duration

	// OnAttempt, when set, observes every upstream attempt with its
	// outcome ("ok", "retryable", "fatal") and duration. Used to feed
	// the time-series sink.
	OnAttempt AttemptFunc
}

// AttemptFunc observes one upstream attempt.
type AttemptFunc func(kind TaskKind, attempt int, status string, elapsed time.Duration)

// Proxy forwards long-running task requests to the upstream automation
// service with bounded retries, exponential backoff with jitter,
// per-attempt timeouts, an overall deadline, and periodic progress
// heartbeats.
//
// Thread Safety: safe for concurrent use.
type Proxy struct {
	cfg        Config
	httpClient *http.Client
	logger     Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Proxy) { p.httpClient = hc }
}

// NewProxy constructs a proxy for the given upstream.
func NewProxy(cfg Config, opts ...Option) *Proxy {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 40 * time.Second
	}

	p := &Proxy{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Forward sends one task to the upstream service and returns the Task
// record tracking the call, with the upstream JSON response in its
// Result on success.
//
// Attempt classification:
//   - 2xx: success, body returned.
//   - 429 or any 5xx, or a network-level error: retryable; the proxy
//     backs off (exponential with jitter, capped) and tries again up
//     to RetryAttempts further times.
//   - any other status: fatal, returned immediately without retry.
//
// While any attempt (or backoff) is outstanding longer than the
// progress interval, onProgress fires once per interval with the
// elapsed time. The whole loop observes OverallDeadline and the
// caller's context; exceeding either yields ErrDeadlineExceeded wrapped
// with the last upstream detail.
//
// The returned Task is non-nil on every path except a payload that
// cannot be encoded, so callers can report attempts and status even for
// failed calls.
func (p *Proxy) Forward(ctx context.Context, kind TaskKind, payload map[string]any, onProgress ProgressFunc) (*Task, error) {
	if p.cfg.OverallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.OverallDeadline)
		defer cancel()
	}

	stopHeartbeat := p.startHeartbeat(ctx, onProgress)
	defer stopHeartbeat()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("vdi: encode payload: %w", err)
	}

	task := &Task{
		TaskID:  uuid.NewString(),
		Kind:    kind,
		Payload: payload,
		Status:  TaskPending,
	}

	maxAttempts := p.cfg.RetryAttempts + 1
	lastErr := &UpstreamError{Detail: "unknown_error", Retryable: true}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task.Status = TaskInProgress
		task.Attempts = attempt

		attemptStart := time.Now()
		result, attemptErr := p.attempt(ctx, kind.Path(), body)
		if attemptErr == nil {
			p.observeAttempt(kind, attempt, "ok", time.Since(attemptStart))
			task.Status = TaskSucceeded
			task.Result = result
			return task, nil
		}

		var upstream *UpstreamError
		if !errors.As(attemptErr, &upstream) {
			// Context cancellation or deadline during the attempt.
			p.observeAttempt(kind, attempt, "timeout", time.Since(attemptStart))
			task.Status = TaskFailed
			return task, p.deadlineError(ctx, lastErr)
		}
		if upstream.Retryable {
			p.observeAttempt(kind, attempt, "retryable", time.Since(attemptStart))
		} else {
			p.observeAttempt(kind, attempt, "fatal", time.Since(attemptStart))
		}
		upstream.Attempts = attempt
		lastErr = upstream

		if !upstream.Retryable {
			p.logger.Warn("vdi upstream fatal response",
				"kind", string(kind),
				"status", upstream.StatusCode,
				"attempt", attempt)
			task.Status = TaskFailed
			return task, upstream
		}

		p.logger.Info("vdi upstream attempt failed",
			"kind", string(kind),
			"status", upstream.StatusCode,
			"attempt", attempt,
			"remaining", maxAttempts-attempt)

		if attempt == maxAttempts {
			break
		}

		if err := p.backoff(ctx, attempt); err != nil {
			task.Status = TaskFailed
			return task, p.deadlineError(ctx, lastErr)
		}
	}

	task.Status = TaskFailed
	return task, lastErr
}

// observeAttempt reports one attempt to the configured observer.
func (p *Proxy) observeAttempt(kind TaskKind, attempt int, status string, elapsed time.Duration) {
	if p.cfg.OnAttempt != nil {
		p.cfg.OnAttempt(kind, attempt, status, elapsed)
	}
}

// attempt performs one upstream call under the per-attempt timeout.
func (p *Proxy) attempt(ctx context.Context, path string, body []byte) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Detail: err.Error(), Retryable: true}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Distinguish the caller's deadline from a network failure on
		// this attempt: the former ends the loop, the latter retries.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamError{Detail: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Detail: err.Error(), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Detail:     upstreamDetail(raw),
			Retryable:  true,
		}
	case resp.StatusCode >= 400:
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Detail:     upstreamDetail(raw),
			Retryable:  false,
		}
	}

	var result map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, &UpstreamError{
				StatusCode: resp.StatusCode,
				Detail:     "undecodable upstream response",
				Retryable:  false,
			}
		}
	}
	return result, nil
}

// backoff sleeps the exponential delay for the given attempt number,
// with jitter, respecting the context.
func (p *Proxy) backoff(ctx context.Context, attempt int) error {
	delay := p.cfg.BackoffBase << (attempt - 1)
	if p.cfg.BackoffMax > 0 && delay > p.cfg.BackoffMax {
		delay = p.cfg.BackoffMax
	}
	delay = p.jitter(delay)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter spreads a delay over [delay/2, delay] to avoid synchronized
// retry bursts across concurrent callers.
func (p *Proxy) jitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	half := delay / 2
	offset := time.Duration(rand.Int63n(int64(half) + 1))
	return half + offset
}

// startHeartbeat fires onProgress once per progress interval until the
// returned stop function is called. A nil callback or zero interval
// yields a no-op.
func (p *Proxy) startHeartbeat(ctx context.Context, onProgress ProgressFunc) func() {
	if onProgress == nil || p.cfg.ProgressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	start := time.Now()

	go func() {
		ticker := time.NewTicker(p.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				onProgress(time.Since(start))
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// deadlineError wraps the last upstream detail in a deadline failure
// when the loop was cut short by context expiry.
func (p *Proxy) deadlineError(ctx context.Context, last *UpstreamError) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: last upstream error: %s", ErrDeadlineExceeded, last.Detail)
}

// upstreamDetail extracts a human-readable detail from an upstream
// error body.
func upstreamDetail(raw []byte) string {
	if len(raw) == 0 {
		return "empty upstream response"
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if d, ok := decoded["detail"].(string); ok && d != "" {
			return d
		}
		if e, ok := decoded["error"].(string); ok && e != "" {
			return e
		}
	}
	s := string(raw)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
