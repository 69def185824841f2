package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// asyncWriteTimeout bounds one background audit write.
const asyncWriteTimeout = 5 * time.Second

// Logger is the minimal logging interface the recorder needs.
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

// Recorder applies the durability policy to audit writes.
//
// High-risk actions are recorded synchronously: the write completes
// before the pipeline reports a terminal result, and a write failure
// is returned to the caller (the action must not be reported as
// completed if it cannot be audited). Low and medium risk entries are
// written on a background goroutine, with failures degraded to a log
// line.
type Recorder struct {
	repo   Repository
	logger Logger
	wg     sync.WaitGroup
}

// NewRecorder constructs a recorder over the given repository.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record writes one entry according to the risk level's durability
// policy. The returned error is non-nil only for failed synchronous
// (high-risk) writes.
func (r *Recorder) Record(ctx context.Context, level envelope.RiskLevel, entry *Entry) error {
	if r.repo == nil {
		return nil
	}

	if level == envelope.RiskHigh {
		if err := r.repo.Create(ctx, entry); err != nil {
			return fmt.Errorf("audit: high-risk entry not recorded: %w", err)
		}
		return nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		if err := r.repo.Create(writeCtx, entry); err != nil {
			r.logger.Warn("audit entry write failed",
				"action_id", entry.ActionID,
				"stage", entry.Stage,
				"error", err)
		}
	}()

	return nil
}

// Flush waits for all background writes to finish. Call during
// shutdown so no audit entries are lost to process exit.
func (r *Recorder) Flush() {
	r.wg.Wait()
}
