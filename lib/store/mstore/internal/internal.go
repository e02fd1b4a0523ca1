package internal

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/util"
)

// --------------------------------------------------------------------------
// Event Types are used to signal changes in the shard state
// --------------------------------------------------------------------------

type EventType int

const (
	// EventTWrite: a key now holds at least one live (non-tombstone) sibling
	EventTWrite EventType = iota
	// EventTTombstone: a key holds only tombstone siblings and is eligible
	// for reaping once the retention window lapses
	EventTTombstone
)

func (e EventType) String() string {
	switch e {
	case EventTWrite:
		return "Write"
	case EventTTombstone:
		return "Tombstone"
	default:
		return "Unknown"
	}
}

type Event struct {
	Type EventType
	Key  string
	At   int64 // unix nanoseconds of the state change
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Key: %s}", e.Type, e.Key)
}

// --------------------------------------------------------------------------
// Record Type (sibling set for one key)
// --------------------------------------------------------------------------

// Record holds the current sibling set for a key. Records are stored by
// value; the slice is replaced wholesale inside the map's per-key atomic
// compute, never mutated in place.
type Record struct {
	Siblings []store.VersionedValue
}

// AllTombstones reports whether every sibling is a deletion marker.
func (r Record) AllTombstones() bool {
	for _, s := range r.Siblings {
		if !s.Tombstone {
			return false
		}
	}
	return len(r.Siblings) > 0
}

// --------------------------------------------------------------------------
// Shard Type (partition of the store)
// --------------------------------------------------------------------------

// Shard represents a partition of the store. Each shard has its own
// concurrent map, its own tombstone deadline heap and its own event queue,
// so garbage collection never contends across shards.
//
// The event queue decouples the write fast path from heap maintenance:
// writers push events, a single per-shard GC goroutine consumes them and is
// the only owner of the heap (no locking required).
type Shard struct {
	Data       *xsync.MapOf[string, Record]
	Tombstones *util.ExpiryHeap
	Events     *util.LockFreeMPSC[Event]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data:       xsync.NewMapOf[string, Record](),
		Tombstones: util.NewExpiryHeap(),
		Events:     util.NewLockFreeMPSC[Event](),
	}
}
