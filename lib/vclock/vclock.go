package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Clock Type
// --------------------------------------------------------------------------

// Clock is a version vector: a mapping from node ID to a monotonically
// increasing counter. A nil Clock is treated as the empty vector; node IDs
// that are not present default to counter 0.
//
// Thread-safety: a Clock is a plain map. Callers that share one across
// goroutines must synchronize; the store copies clocks at its boundaries.
type Clock map[string]uint64

// New creates a new empty clock.
func New() Clock {
	return make(Clock)
}

// Increment bumps the counter for the given node ID and returns the
// resulting clock. Incrementing a nil clock allocates, so always use the
// return value. Counters only ever grow; there is no decrement.
func (c Clock) Increment(nodeID string) Clock {
	if c == nil {
		c = New()
	}
	c[nodeID]++
	return c
}

// Get returns the counter for the given node ID, or 0 if not present.
func (c Clock) Get(nodeID string) uint64 {
	return c[nodeID]
}

// Merge folds another clock into this one, taking the component-wise
// maximum, and returns the resulting clock. Merging into a nil clock
// allocates, so always use the return value. Merging is commutative,
// associative and idempotent.
func (c Clock) Merge(other Clock) Clock {
	if c == nil && len(other) > 0 {
		c = New()
	}
	for nodeID, counter := range other {
		if c[nodeID] < counter {
			c[nodeID] = counter
		}
	}
	return c
}

// Copy creates a deep copy of the clock. Copying a nil clock yields an
// empty, non-nil clock.
func (c Clock) Copy() Clock {
	cp := New()
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// --------------------------------------------------------------------------
// Comparison
// --------------------------------------------------------------------------

// Ordering is the result of comparing two clocks.
type Ordering int

const (
	// Before indicates this clock happened before the other.
	Before Ordering = iota
	// After indicates this clock happened after the other.
	After
	// Concurrent indicates neither clock dominates the other.
	Concurrent
	// Equal indicates the clocks are identical.
	Equal
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	default:
		return "unknown"
	}
}

// Compare compares two clocks and returns their causal relationship:
//
//   - Equal: all counters are equal
//   - Before: every counter <= the other's, at least one strictly less
//   - After: every counter >= the other's, at least one strictly greater
//   - Concurrent: some counters greater, some less (no causal order)
func (c Clock) Compare(other Clock) Ordering {
	var less, greater bool

	for nodeID, counter := range c {
		otherCounter := other[nodeID]
		if counter < otherCounter {
			less = true
		} else if counter > otherCounter {
			greater = true
		}
	}

	// entries only present in other
	for nodeID, otherCounter := range other {
		if _, ok := c[nodeID]; !ok && otherCounter > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Equal reports whether both clocks carry identical counters.
func (c Clock) Equal(other Clock) bool {
	return c.Compare(other) == Equal
}

// Dominates reports whether this clock happened strictly after the other.
func (c Clock) Dominates(other Clock) bool {
	return c.Compare(other) == After
}

// DominatesOrEqual reports whether this clock happened after the other or
// carries the exact same counters. Used by the idempotent merge path, where
// re-applying an already-stored version must be a no-op, not a conflict.
func (c Clock) DominatesOrEqual(other Clock) bool {
	o := c.Compare(other)
	return o == After || o == Equal
}

// ConcurrentWith reports whether neither clock dominates the other.
func (c Clock) ConcurrentWith(other Clock) bool {
	return c.Compare(other) == Concurrent
}

// String returns a deterministic representation like {n1:3, n2:1}.
func (c Clock) String() string {
	if len(c) == 0 {
		return "{}"
	}

	// Sort for deterministic output
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, c[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
