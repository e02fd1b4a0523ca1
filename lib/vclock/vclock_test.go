package vclock

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Clock
		expected Ordering
	}{
		{"both empty", New(), New(), Equal},
		{"identical", Clock{"n1": 1, "n2": 2}, Clock{"n1": 1, "n2": 2}, Equal},
		{"simple before", Clock{"n1": 1}, Clock{"n1": 2}, Before},
		{"simple after", Clock{"n1": 3}, Clock{"n1": 2}, After},
		{"empty vs non-empty", New(), Clock{"n1": 1}, Before},
		{"non-empty vs empty", Clock{"n1": 1}, New(), After},
		{"dominates with extra node", Clock{"n1": 1, "n2": 1}, Clock{"n1": 1}, After},
		{"dominated with missing node", Clock{"n1": 1}, Clock{"n1": 1, "n2": 1}, Before},
		{"concurrent disjoint", Clock{"n1": 1}, Clock{"n2": 1}, Concurrent},
		{"concurrent mixed", Clock{"n1": 2, "n2": 1}, Clock{"n1": 1, "n2": 2}, Concurrent},
		{"unseen id counts as zero", Clock{"n1": 1, "n2": 0}, Clock{"n1": 1}, Equal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.expected {
				t.Errorf("Compare(%s, %s) = %s, expected %s", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCompareSymmetry(t *testing.T) {
	inverse := map[Ordering]Ordering{
		Before:     After,
		After:      Before,
		Concurrent: Concurrent,
		Equal:      Equal,
	}

	a := Clock{"n1": 2, "n2": 1}
	b := Clock{"n1": 1, "n2": 2}
	c := Clock{"n1": 2, "n2": 2}

	pairs := [][2]Clock{{a, b}, {a, c}, {b, c}, {a, a}}
	for _, p := range pairs {
		forward := p[0].Compare(p[1])
		backward := p[1].Compare(p[0])
		if backward != inverse[forward] {
			t.Errorf("Compare(%s, %s) = %s but reverse = %s", p[0], p[1], forward, backward)
		}
	}
}

func TestIncrement(t *testing.T) {
	c := New()
	c.Increment("n1")
	c.Increment("n1")
	c.Increment("n2")

	if c.Get("n1") != 2 {
		t.Errorf("Expected n1 counter 2, got %d", c.Get("n1"))
	}
	if c.Get("n2") != 1 {
		t.Errorf("Expected n2 counter 1, got %d", c.Get("n2"))
	}
	if c.Get("unseen") != 0 {
		t.Errorf("Unseen node should default to 0, got %d", c.Get("unseen"))
	}
}

func TestNilClockIsEmptyVector(t *testing.T) {
	var c Clock

	c = c.Increment("n1")
	if c.Get("n1") != 1 {
		t.Errorf("Increment on nil clock: expected n1 counter 1, got %d", c.Get("n1"))
	}

	var m Clock
	m = m.Merge(Clock{"n2": 3})
	if m.Get("n2") != 3 {
		t.Errorf("Merge into nil clock: expected n2 counter 3, got %d", m.Get("n2"))
	}

	// comparisons and accessors must treat nil as the empty vector too
	var z Clock
	if got := z.Compare(New()); got != Equal {
		t.Errorf("nil vs empty = %s, expected equal", got)
	}
	if got := z.Compare(Clock{"n1": 1}); got != Before {
		t.Errorf("nil vs non-empty = %s, expected before", got)
	}
	if z.Get("n1") != 0 {
		t.Errorf("Get on nil clock should be 0, got %d", z.Get("n1"))
	}
}

func TestIncrementDominatesPrevious(t *testing.T) {
	c := Clock{"n1": 1, "n2": 4}
	prev := c.Copy()
	c.Increment("n1")

	if !c.Dominates(prev) {
		t.Errorf("Incremented clock %s should dominate its predecessor %s", c, prev)
	}
}

func TestMergeProperties(t *testing.T) {
	// randomized check: merge is commutative, associative and idempotent
	rnd := rand.New(rand.NewSource(42))

	randomClock := func() Clock {
		c := New()
		for i := 0; i < rnd.Intn(5); i++ {
			c[fmt.Sprintf("n%d", rnd.Intn(4))] = uint64(rnd.Intn(10))
		}
		return c
	}

	for i := 0; i < 200; i++ {
		a, b, c := randomClock(), randomClock(), randomClock()

		// commutative: a+b == b+a
		ab := a.Copy().Merge(b)
		ba := b.Copy().Merge(a)
		if !ab.Equal(ba) {
			t.Fatalf("Merge not commutative: %s vs %s", ab, ba)
		}

		// associative: (a+b)+c == a+(b+c)
		left := a.Copy().Merge(b).Merge(c)
		right := a.Copy().Merge(b.Copy().Merge(c))
		if !left.Equal(right) {
			t.Fatalf("Merge not associative: %s vs %s", left, right)
		}

		// idempotent: a+a == a
		aa := a.Copy().Merge(a)
		if !aa.Equal(a) {
			t.Fatalf("Merge not idempotent: %s vs %s", aa, a)
		}

		// merged clock dominates or equals both inputs
		if ab.Compare(a) == Before || ab.Compare(a) == Concurrent {
			t.Fatalf("Merge result %s does not cover input %s", ab, a)
		}
		if ab.Compare(b) == Before || ab.Compare(b) == Concurrent {
			t.Fatalf("Merge result %s does not cover input %s", ab, b)
		}
	}
}

func TestCopyIsIndependent(t *testing.T) {
	orig := Clock{"n1": 1}
	cp := orig.Copy()
	cp.Increment("n1")

	if orig.Get("n1") != 1 {
		t.Errorf("Mutating a copy changed the original: %s", orig)
	}

	var nilClock Clock
	if cp := nilClock.Copy(); cp == nil {
		t.Error("Copy of nil clock should be non-nil")
	}
}

func TestString(t *testing.T) {
	if s := New().String(); s != "{}" {
		t.Errorf("Empty clock string = %q, expected {}", s)
	}
	c := Clock{"b": 2, "a": 1}
	if s := c.String(); s != "{a:1, b:2}" {
		t.Errorf("Clock string = %q, expected deterministic sorted output", s)
	}
}
