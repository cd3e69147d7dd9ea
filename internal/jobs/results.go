package jobs

import (
	"sync"

	"github.com/reelforge/reelforge/internal/models"
)

// ResultStore is the process-lifetime table of terminal job outcomes.
// Writers are the detached collect tasks (one owning writer per job id);
// readers are status requests. Delivery is at-most-once: a take removes the
// result, and a later read for the same id falls through to live progress.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]models.JobResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]models.JobResult)}
}

// Put records a terminal result for a job id.
func (s *ResultStore) Put(jobID string, result models.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = result
}

// TakeIfPresent returns and evicts the result for jobID. The second return
// is false when no terminal result is (or is no longer) held.
func (s *ResultStore) TakeIfPresent(jobID string) (models.JobResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[jobID]
	if ok {
		delete(s.results, jobID)
	}
	return result, ok
}
