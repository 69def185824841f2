package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// fakeRepo records Create calls and optionally fails them.
type fakeRepo struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
}

func (f *fakeRepo) Create(_ context.Context, entry *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestRecord_HighRiskSynchronous(t *testing.T) {
	repo := &fakeRepo{}
	r := NewRecorder(repo, nil)

	err := r.Record(context.Background(), envelope.RiskHigh, &Entry{
		ActionID: "act-1",
		Stage:    StageExecution,
		Outcome:  "completed",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// The write must be visible immediately, no Flush needed.
	if repo.count() != 1 {
		t.Errorf("entries = %d, want 1 (synchronous write)", repo.count())
	}
}

func TestRecord_HighRiskFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk full")}
	r := NewRecorder(repo, nil)

	err := r.Record(context.Background(), envelope.RiskHigh, &Entry{ActionID: "act-1", Stage: StageExecution})
	if err == nil {
		t.Fatal("high-risk audit write failure must propagate")
	}
}

func TestRecord_LowRiskAsynchronous(t *testing.T) {
	repo := &fakeRepo{}
	r := NewRecorder(repo, nil)

	if err := r.Record(context.Background(), envelope.RiskLow, &Entry{ActionID: "act-1", Stage: StageRiskGate}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	r.Flush()
	if repo.count() != 1 {
		t.Errorf("entries after Flush = %d, want 1", repo.count())
	}
}

func TestRecord_LowRiskFailureSwallowed(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk full")}
	r := NewRecorder(repo, nil)

	if err := r.Record(context.Background(), envelope.RiskMedium, &Entry{ActionID: "act-1", Stage: StagePolicy}); err != nil {
		t.Errorf("medium-risk write failure should not propagate, got %v", err)
	}
	r.Flush()
}

func TestRecord_NilRepository(t *testing.T) {
	r := NewRecorder(nil, nil)
	if err := r.Record(context.Background(), envelope.RiskHigh, &Entry{ActionID: "act-1"}); err != nil {
		t.Errorf("Record() with nil repo = %v, want nil", err)
	}
}
