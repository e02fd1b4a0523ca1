package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

// RunReplicaStoreTests runs a comprehensive test suite for an IReplicaStore
// implementation. The factory must return a fresh, empty store per call.
func RunReplicaStoreTests(t *testing.T, name string, factory store.StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Dominance", func(t *testing.T) {
			testDominance(t, factory())
		})

		t.Run("StaleIgnored", func(t *testing.T) {
			testStaleIgnored(t, factory())
		})

		t.Run("EqualVectors", func(t *testing.T) {
			testEqualVectors(t, factory())
		})

		t.Run("ConcurrentSiblings", func(t *testing.T) {
			testConcurrentSiblings(t, factory())
		})

		t.Run("Tombstones", func(t *testing.T) {
			testTombstones(t, factory())
		})

		t.Run("PutMerged", func(t *testing.T) {
			testPutMerged(t, factory())
		})

		t.Run("ForEach", func(t *testing.T) {
			testForEach(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// vv builds a versioned value from alternating node id / counter pairs
func vv(value string, clock vclock.Clock) store.VersionedValue {
	return store.VersionedValue{Value: []byte(value), Clock: clock}
}

func tomb(clock vclock.Clock) store.VersionedValue {
	return store.VersionedValue{Clock: clock, Tombstone: true}
}

func mustPut(t testing.TB, s store.IReplicaStore, key string, value store.VersionedValue, want store.ApplyResult) {
	t.Helper()
	result, err := s.Put(key, value)
	if err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
	if result != want {
		t.Fatalf("Put(%q) = %v, want %v", key, result, want)
	}
}

func mustGet(t testing.TB, s store.IReplicaStore, key string) []store.VersionedValue {
	t.Helper()
	siblings, _, loaded, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	if !loaded {
		t.Fatalf("Get(%q): key not found", key)
	}
	return siblings
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	// missing key
	_, _, loaded, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get on empty store failed: %v", err)
	}
	if loaded {
		t.Error("Get on empty store reported loaded=true")
	}

	mustPut(t, s, "k1", vv("hello", vclock.Clock{"n1": 1}), store.Applied)

	siblings := mustGet(t, s, "k1")
	if len(siblings) != 1 {
		t.Fatalf("expected 1 sibling, got %d", len(siblings))
	}
	if !bytes.Equal(siblings[0].Value, []byte("hello")) {
		t.Errorf("value mismatch: got %q", siblings[0].Value)
	}
	if !siblings[0].Clock.Equal(vclock.Clock{"n1": 1}) {
		t.Errorf("clock mismatch: got %v", siblings[0].Clock)
	}

	// returned siblings must be copies, mutating them must not leak back
	siblings[0].Value[0] = 'X'
	siblings[0].Clock["n9"] = 99
	again := mustGet(t, s, "k1")
	if !bytes.Equal(again[0].Value, []byte("hello")) {
		t.Error("Get returned a value aliasing internal storage")
	}
	if again[0].Clock.Get("n9") != 0 {
		t.Error("Get returned a clock aliasing internal storage")
	}
}

func testDominance(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	mustPut(t, s, "k", vv("v1", vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, s, "k", vv("v2", vclock.Clock{"n1": 2}), store.Applied)

	siblings := mustGet(t, s, "k")
	if len(siblings) != 1 {
		t.Fatalf("dominating write must replace, got %d siblings", len(siblings))
	}
	if !bytes.Equal(siblings[0].Value, []byte("v2")) {
		t.Errorf("expected v2, got %q", siblings[0].Value)
	}

	// a write dominating the merged clock of two siblings replaces both
	mustPut(t, s, "k", vv("other", vclock.Clock{"n2": 1}), store.AppliedSibling)
	mustPut(t, s, "k", vv("resolved", vclock.Clock{"n1": 3, "n2": 1}), store.Applied)

	siblings = mustGet(t, s, "k")
	if len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("resolved")) {
		t.Errorf("expected single resolved sibling, got %v", siblings)
	}
}

func testStaleIgnored(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	mustPut(t, s, "k", vv("new", vclock.Clock{"n1": 5}), store.Applied)
	mustPut(t, s, "k", vv("old", vclock.Clock{"n1": 3}), store.StaleIgnored)

	siblings := mustGet(t, s, "k")
	if len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("new")) {
		t.Errorf("stale write must leave the store unchanged, got %v", siblings)
	}

	// stale against only one of two concurrent siblings is still stale
	mustPut(t, s, "k", vv("side", vclock.Clock{"n2": 1}), store.AppliedSibling)
	mustPut(t, s, "k", vv("old", vclock.Clock{"n1": 4}), store.StaleIgnored)

	if got := len(mustGet(t, s, "k")); got != 2 {
		t.Errorf("expected 2 siblings after stale write, got %d", got)
	}
}

func testEqualVectors(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	// re-applying the identical write is a no-op
	mustPut(t, s, "k", vv("v", vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, s, "k", vv("v", vclock.Clock{"n1": 1}), store.StaleIgnored)

	if got := len(mustGet(t, s, "k")); got != 1 {
		t.Fatalf("identical re-apply must not create siblings, got %d", got)
	}

	// equal vector with a diverging payload is kept side by side
	mustPut(t, s, "k", vv("other", vclock.Clock{"n1": 1}), store.AppliedSibling)
	if got := len(mustGet(t, s, "k")); got != 2 {
		t.Errorf("diverging payload with equal vector must be retained, got %d siblings", got)
	}
}

func testConcurrentSiblings(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	mustPut(t, s, "k", vv("a", vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, s, "k", vv("b", vclock.Clock{"n2": 1}), store.AppliedSibling)
	mustPut(t, s, "k", vv("c", vclock.Clock{"n3": 1}), store.AppliedSibling)

	siblings, merged, loaded, err := s.Get("k")
	if err != nil || !loaded {
		t.Fatalf("Get failed: %v (loaded=%v)", err, loaded)
	}
	if len(siblings) != 3 {
		t.Fatalf("expected 3 concurrent siblings, got %d", len(siblings))
	}
	if !merged.Equal(vclock.Clock{"n1": 1, "n2": 1, "n3": 1}) {
		t.Errorf("merged clock mismatch: got %v", merged)
	}

	// a write descending from the merged clock collapses all siblings
	resolved := vv("winner", merged.Copy().Increment("n1"))
	mustPut(t, s, "k", resolved, store.Applied)

	siblings = mustGet(t, s, "k")
	if len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("winner")) {
		t.Errorf("dominating write must collapse siblings, got %v", siblings)
	}
}

func testTombstones(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	mustPut(t, s, "k", vv("v", vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, s, "k", tomb(vclock.Clock{"n1": 2}), store.Applied)

	// a tombstoned key is still loaded so readers can observe the delete
	siblings := mustGet(t, s, "k")
	if len(siblings) != 1 || !siblings[0].Tombstone {
		t.Fatalf("expected single tombstone sibling, got %v", siblings)
	}

	// a write concurrent with the tombstone survives next to it
	mustPut(t, s, "k", vv("revived", vclock.Clock{"n2": 1}), store.AppliedSibling)
	siblings = mustGet(t, s, "k")
	if len(siblings) != 2 {
		t.Fatalf("expected tombstone and concurrent write, got %d siblings", len(siblings))
	}

	// a stale write does not resurrect a dominating tombstone
	mustPut(t, s, "k2", tomb(vclock.Clock{"n1": 4}), store.Applied)
	mustPut(t, s, "k2", vv("zombie", vclock.Clock{"n1": 3}), store.StaleIgnored)
	siblings = mustGet(t, s, "k2")
	if len(siblings) != 1 || !siblings[0].Tombstone {
		t.Errorf("stale write resurrected a deleted key: %v", siblings)
	}
}

func testPutMerged(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	set := []store.VersionedValue{
		vv("a", vclock.Clock{"n1": 2}),
		vv("b", vclock.Clock{"n2": 1}),
	}
	if err := s.PutMerged("k", set); err != nil {
		t.Fatalf("PutMerged failed: %v", err)
	}
	if got := len(mustGet(t, s, "k")); got != 2 {
		t.Fatalf("expected 2 siblings, got %d", got)
	}

	// applying the same set again must be idempotent
	if err := s.PutMerged("k", set); err != nil {
		t.Fatalf("PutMerged (repeat) failed: %v", err)
	}
	if got := len(mustGet(t, s, "k")); got != 2 {
		t.Errorf("PutMerged is not idempotent, got %d siblings", got)
	}

	// a merged set containing a dominating version collapses the rest
	if err := s.PutMerged("k", []store.VersionedValue{vv("c", vclock.Clock{"n1": 3, "n2": 2})}); err != nil {
		t.Fatalf("PutMerged failed: %v", err)
	}
	siblings := mustGet(t, s, "k")
	if len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("c")) {
		t.Errorf("expected collapsed set, got %v", siblings)
	}
}

func testForEach(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-%d", i)
		mustPut(t, s, key, vv(key, vclock.Clock{"n1": 1}), store.Applied)
	}

	seen := make(map[string]int)
	err := s.ForEach(func(key string, siblings []store.VersionedValue) bool {
		seen[key] = len(siblings)
		return true
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 keys, saw %d", len(seen))
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("key %q has %d siblings, want 1", key, n)
		}
	}

	// early abort
	count := 0
	if err := s.ForEach(func(string, []store.VersionedValue) bool {
		count++
		return false
	}); err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ForEach ignored abort, visited %d keys", count)
	}
}

func testSaveLoad(t *testing.T, factory store.StoreFactory) {
	src := factory()
	defer src.Close()

	mustPut(t, src, "plain", vv("value", vclock.Clock{"n1": 3}), store.Applied)
	mustPut(t, src, "forked", vv("a", vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, src, "forked", vv("b", vclock.Clock{"n2": 1}), store.AppliedSibling)
	mustPut(t, src, "deleted", tomb(vclock.Clock{"n1": 1}), store.Applied)
	mustPut(t, src, "empty-value", vv("", vclock.Clock{"n2": 7}), store.Applied)

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dst := factory()
	defer dst.Close()
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := map[string]int{"plain": 1, "forked": 2, "deleted": 1, "empty-value": 1}
	for key, siblingCount := range want {
		siblings := mustGet(t, dst, key)
		if len(siblings) != siblingCount {
			t.Errorf("key %q: got %d siblings, want %d", key, len(siblings), siblingCount)
		}
	}

	siblings := mustGet(t, dst, "deleted")
	if !siblings[0].Tombstone {
		t.Error("tombstone flag lost in snapshot round-trip")
	}
	siblings = mustGet(t, dst, "plain")
	if !siblings[0].Clock.Equal(vclock.Clock{"n1": 3}) {
		t.Errorf("clock lost in snapshot round-trip: %v", siblings[0].Clock)
	}

	// loading garbage must fail with a corruption error
	if err := factory().Load(bytes.NewReader([]byte("not a snapshot at all"))); err == nil {
		t.Error("Load accepted a corrupt snapshot")
	}
}

func testEdgeCases(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	// empty key is rejected
	if _, err := s.Put("", vv("v", vclock.Clock{"n1": 1})); err == nil {
		t.Error("Put accepted an empty key")
	}

	// empty value is a regular write
	mustPut(t, s, "k", vv("", vclock.Clock{"n1": 1}), store.Applied)
	siblings := mustGet(t, s, "k")
	if len(siblings[0].Value) != 0 {
		t.Errorf("expected empty value, got %q", siblings[0].Value)
	}

	// large values survive intact
	large := bytes.Repeat([]byte("x"), 1<<20)
	mustPut(t, s, "large", store.VersionedValue{Value: large, Clock: vclock.Clock{"n1": 1}}, store.Applied)
	if got := mustGet(t, s, "large"); !bytes.Equal(got[0].Value, large) {
		t.Error("large value corrupted")
	}

	// operations after Close fail cleanly
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Put("k", vv("v", vclock.Clock{"n1": 2})); err == nil {
		t.Error("Put succeeded on a closed store")
	}
	if _, _, _, err := s.Get("k"); err == nil {
		t.Error("Get succeeded on a closed store")
	}
}

func testConcurrentAccess(t *testing.T, s store.IReplicaStore) {
	defer s.Close()

	const writers = 8
	const rounds = 100

	// each writer bumps its own component, all on the same key: the final
	// sibling set must be exactly the set of per-writer maxima
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			node := fmt.Sprintf("n%d", w)
			for i := 1; i <= rounds; i++ {
				value := vv(fmt.Sprintf("%s-%d", node, i), vclock.Clock{node: uint64(i)})
				if _, err := s.Put("contended", value); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	siblings := mustGet(t, s, "contended")
	if len(siblings) != writers {
		t.Fatalf("expected %d concurrent siblings, got %d", writers, len(siblings))
	}
	for _, sib := range siblings {
		for node, counter := range sib.Clock {
			if counter != rounds {
				t.Errorf("sibling for %s has counter %d, want %d", node, counter, rounds)
			}
		}
	}
}
