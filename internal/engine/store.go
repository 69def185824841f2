package engine

import (
	"sync"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// storeCap bounds the in-memory result store. Oldest actions are
// evicted FIFO; an evicted action_id loses its duplicate-detection
// guarantee, which is acceptable for a bounded service lifetime.
const storeCap = 1000

// resultStore tracks every action seen by the engine, in-flight and
// terminal, keyed by action_id. It backs duplicate detection (repeat
// submissions re-fetch the prior result instead of re-executing) and
// the action status endpoint.
//
// Single mutex, bounded size, FIFO eviction.
type resultStore struct {
	mu      sync.Mutex
	results map[string]*envelope.ActionResult
	order   []string
}

func newResultStore() *resultStore {
	return &resultStore{
		results: make(map[string]*envelope.ActionResult, storeCap),
	}
}

// claim registers an action_id if unseen and returns (nil, true).
// If the id exists, the prior result is returned with ok=false and the
// store is unchanged.
func (s *resultStore) claim(actionID string, placeholder *envelope.ActionResult) (*envelope.ActionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, exists := s.results[actionID]; exists {
		return prior, false
	}

	if len(s.order) >= storeCap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}

	s.results[actionID] = placeholder
	s.order = append(s.order, actionID)
	return nil, true
}

// put replaces the stored result for an already-claimed action.
func (s *resultStore) put(result *envelope.ActionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.ActionID]; exists {
		s.results[result.ActionID] = result
	}
}

// get returns the result for an action, if tracked.
func (s *resultStore) get(actionID string) (*envelope.ActionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[actionID]
	return r, ok
}

// size returns the number of tracked actions.
func (s *resultStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
