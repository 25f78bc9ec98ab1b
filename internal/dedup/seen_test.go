package dedup

import (
	"fmt"
	"testing"

	"token-radar/internal/domain"
)

func TestSeenSet_Basic(t *testing.T) {
	s := NewSeenSet(10)

	if !s.IsNew(domain.CategoryPairs, "k1") {
		t.Error("unseen key should be new")
	}
	s.MarkSeen(domain.CategoryPairs, "k1")
	if s.IsNew(domain.CategoryPairs, "k1") {
		t.Error("marked key should not be new")
	}
}

func TestSeenSet_CategoriesArePartitioned(t *testing.T) {
	s := NewSeenSet(10)
	s.MarkSeen(domain.CategoryPairs, "k1")
	if !s.IsNew(domain.CategoryTrades, "k1") {
		t.Error("key seen for pairs should still be new for trades")
	}
}

func TestSeenSet_BoundedEviction(t *testing.T) {
	s := NewSeenSet(3)
	for i := 0; i < 5; i++ {
		s.MarkSeen(domain.CategoryTrades, fmt.Sprintf("k%d", i))
	}

	if got := s.Len(domain.CategoryTrades); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	// k0 and k1 are the oldest; they must have been evicted.
	if !s.IsNew(domain.CategoryTrades, "k0") {
		t.Error("oldest key should have been evicted")
	}
	if !s.IsNew(domain.CategoryTrades, "k1") {
		t.Error("second oldest key should have been evicted")
	}
	if s.IsNew(domain.CategoryTrades, "k4") {
		t.Error("newest key should still be tracked")
	}
}

func TestSeenSet_RemarkRefreshesPosition(t *testing.T) {
	s := NewSeenSet(3)
	s.MarkSeen(domain.CategoryPairs, "a")
	s.MarkSeen(domain.CategoryPairs, "b")
	s.MarkSeen(domain.CategoryPairs, "c")

	// Refresh "a" so "b" becomes the oldest.
	s.MarkSeen(domain.CategoryPairs, "a")
	s.MarkSeen(domain.CategoryPairs, "d")

	if s.IsNew(domain.CategoryPairs, "a") {
		t.Error("refreshed key should survive the next eviction")
	}
	if !s.IsNew(domain.CategoryPairs, "b") {
		t.Error("oldest unrefreshed key should have been evicted")
	}
}

func TestSeenSet_DefaultCapacity(t *testing.T) {
	s := NewSeenSet(0)
	for i := 0; i < 200*DefaultCapacityFactor+10; i++ {
		s.MarkSeen(domain.CategoryPairs, fmt.Sprintf("k%d", i))
	}
	if got := s.Len(domain.CategoryPairs); got != 200*DefaultCapacityFactor {
		t.Errorf("Len = %d, want %d", got, 200*DefaultCapacityFactor)
	}
}
