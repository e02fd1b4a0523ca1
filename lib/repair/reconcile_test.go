package repair

import (
	"testing"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

func vv(value string, clock vclock.Clock) store.VersionedValue {
	return store.VersionedValue{Value: []byte(value), Clock: clock}
}

func found(id string, siblings ...store.VersionedValue) Response {
	return Response{ReplicaID: id, Found: true, Siblings: siblings}
}

func notFound(id string) Response {
	return Response{ReplicaID: id}
}

func TestReconcileEmpty(t *testing.T) {
	result := Reconcile([]Response{notFound("n1"), notFound("n2")})

	if len(result.Winners) != 0 {
		t.Errorf("expected no winners, got %v", result.Winners)
	}
	if len(result.Stale) != 0 {
		t.Errorf("nothing to repair when no replica has data, got %v", result.Stale)
	}
	if !result.NotFound() {
		t.Error("empty result must report NotFound")
	}
}

func TestReconcileAgreement(t *testing.T) {
	v := vv("value", vclock.Clock{"n1": 2})
	result := Reconcile([]Response{found("n1", v), found("n2", v), found("n3", v)})

	if len(result.Winners) != 1 {
		t.Fatalf("expected 1 winner, got %d", len(result.Winners))
	}
	if len(result.Stale) != 0 {
		t.Errorf("agreeing replicas must not be repaired: %v", result.Stale)
	}
	if result.HasConflict() {
		t.Error("single winner reported as conflict")
	}
}

func TestReconcileDominatedReplicaIsStale(t *testing.T) {
	old := vv("old", vclock.Clock{"n1": 1})
	new_ := vv("new", vclock.Clock{"n1": 2})
	result := Reconcile([]Response{found("r1", new_), found("r2", old)})

	if len(result.Winners) != 1 || string(result.Winners[0].Value) != "new" {
		t.Fatalf("expected single winner 'new', got %v", result.Winners)
	}
	if !result.Stale["r2"] {
		t.Error("replica holding the dominated version must be stale")
	}
	if result.Stale["r1"] {
		t.Error("replica holding the winner must not be stale")
	}
}

func TestReconcileNotFoundReplicaIsStale(t *testing.T) {
	v := vv("value", vclock.Clock{"n1": 1})
	result := Reconcile([]Response{found("r1", v), notFound("r2")})

	if !result.Stale["r2"] {
		t.Error("a replica missing the key entirely must be stale")
	}
}

func TestReconcileConcurrentSiblings(t *testing.T) {
	a := vv("a", vclock.Clock{"n1": 1})
	b := vv("b", vclock.Clock{"n2": 1})
	result := Reconcile([]Response{found("r1", a), found("r2", b)})

	if len(result.Winners) != 2 {
		t.Fatalf("expected 2 concurrent winners, got %d", len(result.Winners))
	}
	if !result.HasConflict() {
		t.Error("concurrent winners must report a conflict")
	}
	// both replicas miss the other's sibling
	if !result.Stale["r1"] || !result.Stale["r2"] {
		t.Errorf("both replicas miss a winner and must be stale: %v", result.Stale)
	}

	// a replica already holding both siblings is not stale
	result = Reconcile([]Response{found("r1", a, b), found("r2", b)})
	if result.Stale["r1"] {
		t.Error("replica covering the full winner set marked stale")
	}
	if !result.Stale["r2"] {
		t.Error("replica covering half the winner set not marked stale")
	}
}

func TestReconcileDeduplicatesWinners(t *testing.T) {
	v := vv("same", vclock.Clock{"n1": 3})
	result := Reconcile([]Response{found("r1", v), found("r2", v.Copy())})

	if len(result.Winners) != 1 {
		t.Errorf("identical versions must collapse to one winner, got %d", len(result.Winners))
	}
}

func TestReconcileTombstoneWins(t *testing.T) {
	live := vv("value", vclock.Clock{"n1": 1})
	dead := store.VersionedValue{Clock: vclock.Clock{"n1": 2}, Tombstone: true}
	result := Reconcile([]Response{found("r1", dead), found("r2", live)})

	if len(result.Winners) != 1 || !result.Winners[0].Tombstone {
		t.Fatalf("expected the tombstone to win, got %v", result.Winners)
	}
	if !result.NotFound() {
		t.Error("tombstone-only winners must report NotFound")
	}
	if len(result.LiveWinners()) != 0 {
		t.Error("LiveWinners must exclude tombstones")
	}
	if !result.Stale["r2"] {
		t.Error("replica still holding the overwritten value must be stale")
	}
}

func TestReconcileTransitiveDominance(t *testing.T) {
	v1 := vv("v1", vclock.Clock{"n1": 1})
	v2 := vv("v2", vclock.Clock{"n1": 2})
	v3 := vv("v3", vclock.Clock{"n1": 3})
	result := Reconcile([]Response{found("r1", v1), found("r2", v2), found("r3", v3)})

	if len(result.Winners) != 1 || string(result.Winners[0].Value) != "v3" {
		t.Fatalf("expected v3 as sole winner, got %v", result.Winners)
	}
	if !result.Stale["r1"] || !result.Stale["r2"] {
		t.Error("all dominated replicas must be stale")
	}
}
