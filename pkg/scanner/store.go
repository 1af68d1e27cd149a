package scanner

import (
	"sort"
	"sync"
)

// Result is an admitted candidate with its measured latency
type Result struct {
	Address   string `json:"address"`
	LatencyMs int64  `json:"latency_ms"`
}

// Store keeps admitted results sorted ascending by latency.
// It never evicts: the engine stops feeding it once MaxIPCount is reached.
type Store struct {
	mu      sync.RWMutex
	results []Result
}

// NewStore creates an empty result store
func NewStore() *Store {
	return &Store{}
}

// Insert appends a result and re-sorts the store
func (s *Store) Insert(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, r)
	sort.SliceStable(s.results, func(i, j int) bool {
		return s.results[i].LatencyMs < s.results[j].LatencyMs
	})
}

// Results returns a copy of the ranked results
func (s *Store) Results() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Result{}, s.results...)
}

// Len returns the number of stored results
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results)
}

// Reset drops all results
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = nil
}
