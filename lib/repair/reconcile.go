package repair

import (
	"bytes"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

// Response is the sibling set one replica returned for a key. Found is
// false when the replica does not know the key at all.
type Response struct {
	ReplicaID string
	Found     bool
	Siblings  []store.VersionedValue
}

// Result is the outcome of reconciling the responses of a quorum read.
type Result struct {
	// Winners is the maximal set of non-dominated versions. One entry means
	// the read resolved cleanly, more than one means concurrent siblings
	// the client has to resolve.
	Winners []store.VersionedValue

	// Stale contains the IDs of all replicas whose local state does not
	// cover the winner set and which therefore need read repair. A replica
	// that did not know the key at all is stale as soon as winners exist.
	Stale map[string]bool
}

// HasConflict reports whether the read surfaced concurrent siblings.
func (r *Result) HasConflict() bool {
	return len(r.Winners) > 1
}

// NotFound reports whether the key is absent or fully deleted: no winners
// at all, or only tombstones.
func (r *Result) NotFound() bool {
	for _, w := range r.Winners {
		if !w.Tombstone {
			return false
		}
	}
	return true
}

// LiveWinners returns the winners that are not deletion markers.
func (r *Result) LiveWinners() []store.VersionedValue {
	live := make([]store.VersionedValue, 0, len(r.Winners))
	for _, w := range r.Winners {
		if !w.Tombstone {
			live = append(live, w)
		}
	}
	return live
}

// Reconcile computes the winner set over all siblings the replicas
// returned. A version is a winner if no other returned version dominates
// it; versions with equal vectors and equal payloads are deduplicated.
//
// A replica is marked stale if it misses at least one winner. Pushing the
// full winner set to a stale replica is idempotent, so over-reporting a
// replica as stale is harmless while under-reporting would leave it
// diverged.
func Reconcile(responses []Response) Result {
	result := Result{Stale: make(map[string]bool)}

	var all []store.VersionedValue
	for _, resp := range responses {
		if resp.Found {
			all = append(all, resp.Siblings...)
		}
	}
	if len(all) == 0 {
		return result
	}

	for i, candidate := range all {
		dominated := false
		for j, other := range all {
			if i == j {
				continue
			}
			if candidate.Clock.Compare(other.Clock) == vclock.Before {
				dominated = true
				break
			}
		}
		if !dominated && !containsVersion(result.Winners, candidate) {
			result.Winners = append(result.Winners, candidate)
		}
	}

	for _, resp := range responses {
		if !covers(resp, result.Winners) {
			result.Stale[resp.ReplicaID] = true
		}
	}
	return result
}

// covers reports whether the replica's sibling set contains every winner.
func covers(resp Response, winners []store.VersionedValue) bool {
	if !resp.Found {
		return len(winners) == 0
	}
	for _, winner := range winners {
		if !containsVersion(resp.Siblings, winner) {
			return false
		}
	}
	return true
}

func containsVersion(set []store.VersionedValue, v store.VersionedValue) bool {
	for _, s := range set {
		if s.Tombstone == v.Tombstone && s.Clock.Equal(v.Clock) && bytes.Equal(s.Value, v.Value) {
			return true
		}
	}
	return false
}
