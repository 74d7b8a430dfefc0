// Package dedupe provides a bounded recency set for suppressing repeat
// observations of the same key within a time window.
package dedupe

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RecencySet tracks the last time each key was seen. When the set reaches
// its capacity the oldest half is evicted, so memory stays bounded under
// a stream of unique keys.
type RecencySet struct {
	mu     sync.Mutex
	window time.Duration
	cap    int
	seen   *orderedmap.OrderedMap[string, time.Time]
	now    func() time.Time
}

// NewRecencySet creates a set with the given suppression window and
// capacity. A capacity below 2 is raised to 2 so eviction always makes
// progress.
func NewRecencySet(window time.Duration, capacity int) *RecencySet {
	if capacity < 2 {
		capacity = 2
	}

	return &RecencySet{
		window: window,
		cap:    capacity,
		seen:   orderedmap.New[string, time.Time](),
		now:    time.Now,
	}
}

// Observe records key and reports whether it should be suppressed: true
// when the key was already seen within the window.
func (s *RecencySet) Observe(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if last, ok := s.seen.Get(key); ok {
		s.seen.Delete(key)
		s.seen.Set(key, now)

		return now.Sub(last) < s.window
	}

	if s.seen.Len() >= s.cap {
		s.evictOldestHalf()
	}

	s.seen.Set(key, now)

	return false
}

// Len returns the number of tracked keys.
func (s *RecencySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.seen.Len()
}

// evictOldestHalf drops the least recently observed half of the set.
// Insertion order doubles as recency order because Observe re-inserts
// keys it refreshes.
func (s *RecencySet) evictOldestHalf() {
	drop := s.seen.Len() / 2

	for range drop {
		oldest := s.seen.Oldest()
		if oldest == nil {
			return
		}

		s.seen.Delete(oldest.Key)
	}
}
