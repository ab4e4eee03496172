// Package dedup provides bounded identifier sets used to suppress repeated work.
//
// A Set never evicts individual entries. Once it holds capacity identifiers the
// next insertion clears it entirely, so an identifier older than the last reset
// may be admitted again.
package dedup

import "sync"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 2000

// Set is a concurrency-safe bounded set of string identifiers.
type Set struct {
	mu       sync.Mutex
	capacity int
	items    map[string]struct{}
	resets   int
}

// NewSet creates a set that resets once it holds capacity entries.
func NewSet(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		capacity: capacity,
		items:    make(map[string]struct{}, capacity),
	}
}

// Admit records id and reports whether it was unseen.
// Empty identifiers are always admitted and never recorded.
func (s *Set) Admit(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return false
	}
	s.insertLocked(id)
	return true
}

// Add records id without reporting prior membership.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return
	}
	s.insertLocked(id)
}

// Contains reports whether id is currently recorded.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of recorded identifiers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Resets returns how many times the set has been cleared.
func (s *Set) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Set) insertLocked(id string) {
	if len(s.items) >= s.capacity {
		s.items = make(map[string]struct{}, s.capacity)
		s.resets++
	}
	s.items[id] = struct{}{}
}
