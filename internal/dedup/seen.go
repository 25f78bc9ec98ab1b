// Package dedup suppresses reprocessing of already-seen records.
package dedup

import (
	"container/list"
	"sync"

	"token-radar/internal/domain"
)

// DefaultCapacityFactor sizes a seen-set relative to the ring buffer it
// protects. Keys older than several buffer generations can never matter
// again, so membership is bounded instead of growing for the process
// lifetime.
const DefaultCapacityFactor = 8

// SeenSet is a bounded, LRU-evicting membership set of dedup keys, one
// partition per category. Safe for concurrent use.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	parts    map[domain.Category]*partition
}

type partition struct {
	order *list.List // front = oldest
	keys  map[string]*list.Element
}

// NewSeenSet creates a seen-set holding at most capacity keys per category.
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 200 * DefaultCapacityFactor
	}
	return &SeenSet{
		capacity: capacity,
		parts:    make(map[domain.Category]*partition),
	}
}

// IsNew reports whether key has not been marked seen for the category.
func (s *SeenSet) IsNew(cat domain.Category, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.parts[cat]
	if !ok {
		return true
	}
	_, seen := p.keys[key]
	return !seen
}

// MarkSeen records key for the category, evicting the oldest-marked key when
// the partition is full. Re-marking an existing key refreshes its position.
func (s *SeenSet) MarkSeen(cat domain.Category, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.parts[cat]
	if !ok {
		p = &partition{order: list.New(), keys: make(map[string]*list.Element)}
		s.parts[cat] = p
	}

	if el, exists := p.keys[key]; exists {
		p.order.MoveToBack(el)
		return
	}

	p.keys[key] = p.order.PushBack(key)
	for len(p.keys) > s.capacity {
		oldest := p.order.Front()
		p.order.Remove(oldest)
		delete(p.keys, oldest.Value.(string))
	}
}

// Len returns the number of keys tracked for the category.
func (s *SeenSet) Len(cat domain.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.parts[cat]
	if !ok {
		return 0
	}
	return len(p.keys)
}
