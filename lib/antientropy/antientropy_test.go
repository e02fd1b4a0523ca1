package antientropy

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/store/mstore"
	"github.com/qkv-io/qKV/lib/vclock"
)

// storePeer exposes a local store through the Peer interface, standing in
// for a remote node.
type storePeer struct {
	id    string
	store store.IReplicaStore
}

func (p *storePeer) ID() string { return p.id }

func (p *storePeer) Digest(_ context.Context, buckets int) ([]uint64, error) {
	return ComputeDigest(p.store, buckets)
}

func (p *storePeer) Pull(_ context.Context, buckets int, bucketIDs []uint64) ([]KeyedSiblings, error) {
	return BucketRecords(p.store, buckets, bucketIDs)
}

func (p *storePeer) Push(_ context.Context, records []KeyedSiblings) error {
	for _, record := range records {
		if err := p.store.PutMerged(record.Key, record.Siblings); err != nil {
			return err
		}
	}
	return nil
}

func put(t *testing.T, s store.IReplicaStore, key, value string, clock vclock.Clock) {
	t.Helper()
	if _, err := s.Put(key, store.VersionedValue{Value: []byte(value), Clock: clock}); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

func dump(t *testing.T, s store.IReplicaStore) map[string][]store.VersionedValue {
	t.Helper()
	out := make(map[string][]store.VersionedValue)
	if err := s.ForEach(func(key string, siblings []store.VersionedValue) bool {
		out[key] = siblings
		return true
	}); err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	return out
}

func assertConverged(t *testing.T, a, b store.IReplicaStore) {
	t.Helper()
	da, db := dump(t, a), dump(t, b)
	if len(da) != len(db) {
		t.Fatalf("stores diverged: %d vs %d keys", len(da), len(db))
	}
	for key, siblingsA := range da {
		siblingsB, ok := db[key]
		if !ok {
			t.Fatalf("key %q missing on one store", key)
		}
		if len(siblingsA) != len(siblingsB) {
			t.Fatalf("key %q: %d vs %d siblings", key, len(siblingsA), len(siblingsB))
		}
	outer:
		for _, sa := range siblingsA {
			for _, sb := range siblingsB {
				if sa.Clock.Equal(sb.Clock) && bytes.Equal(sa.Value, sb.Value) && sa.Tombstone == sb.Tombstone {
					continue outer
				}
			}
			t.Fatalf("key %q: sibling %v missing on one store", key, sa)
		}
	}
}

func TestDigestEqualStores(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	put(t, a, "k1", "v1", vclock.Clock{"n1": 1})
	put(t, b, "k1", "v1", vclock.Clock{"n1": 1})

	da, _ := ComputeDigest(a, 64)
	db, _ := ComputeDigest(b, 64)
	if diff := DiffDigests(da, db); len(diff) != 0 {
		t.Errorf("identical stores produced differing digests in buckets %v", diff)
	}
}

func TestDigestDetectsDifferences(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	put(t, a, "k1", "v1", vclock.Clock{"n1": 1})
	put(t, b, "k1", "v1", vclock.Clock{"n1": 1})
	put(t, b, "extra", "v", vclock.Clock{"n2": 1})

	da, _ := ComputeDigest(a, 64)
	db, _ := ComputeDigest(b, 64)
	if diff := DiffDigests(da, db); len(diff) != 1 {
		t.Errorf("expected exactly 1 differing bucket, got %v", diff)
	}

	// same key, different tombstone state must also differ
	c := mstore.NewMemoryStore(nil)
	defer c.Close()
	if _, err := c.Put("k1", store.VersionedValue{Clock: vclock.Clock{"n1": 1}, Tombstone: true}); err != nil {
		t.Fatal(err)
	}
	dc, _ := ComputeDigest(c, 64)
	if diff := DiffDigests(da, dc); len(diff) == 0 {
		t.Error("tombstone state change not reflected in digest")
	}
}

func TestSyncConvergesStores(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	// disjoint keys, a shared dominated key and a genuine conflict
	put(t, a, "only-a", "va", vclock.Clock{"n1": 1})
	put(t, b, "only-b", "vb", vclock.Clock{"n2": 1})
	put(t, a, "stale-on-b", "new", vclock.Clock{"n1": 2})
	put(t, b, "stale-on-b", "old", vclock.Clock{"n1": 1})
	put(t, a, "conflict", "left", vclock.Clock{"n1": 5})
	put(t, b, "conflict", "right", vclock.Clock{"n2": 5})

	svc := NewService(a, nil, time.Minute, 64)
	stats, err := svc.SyncWith(context.Background(), &storePeer{id: "b", store: b})
	if err != nil {
		t.Fatalf("SyncWith failed: %v", err)
	}
	if stats.BucketsDiffed == 0 {
		t.Fatal("expected differing buckets")
	}

	assertConverged(t, a, b)

	// the dominated version must be gone on both sides
	siblings, _, _, _ := b.Get("stale-on-b")
	if len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("new")) {
		t.Errorf("dominated version survived sync: %v", siblings)
	}
	// the conflict must survive as siblings on both sides
	siblings, _, _, _ = a.Get("conflict")
	if len(siblings) != 2 {
		t.Errorf("conflict lost during sync: %v", siblings)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	put(t, a, "k1", "v1", vclock.Clock{"n1": 1})
	put(t, b, "k2", "v2", vclock.Clock{"n2": 1})

	svc := NewService(a, nil, time.Minute, 64)
	peer := &storePeer{id: "b", store: b}

	if _, err := svc.SyncWith(context.Background(), peer); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// converged stores must exchange nothing on the second round
	stats, err := svc.SyncWith(context.Background(), peer)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if stats.BucketsDiffed != 0 || stats.KeysPulled != 0 || stats.KeysPushed != 0 {
		t.Errorf("second round was not a no-op: %+v", stats)
	}
}

func TestServiceLoop(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	put(t, a, "k", "v", vclock.Clock{"n1": 1})

	peers := func() []Peer { return []Peer{&storePeer{id: "b", store: b}} }
	svc := NewService(a, peers, 20*time.Millisecond, 64)
	svc.Start()
	defer svc.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, _, loaded, _ := b.Get("k"); loaded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background loop never synced the peer")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if svc.Rounds() == 0 {
		t.Error("round counter not incremented")
	}
}

func TestServiceDisabledInterval(t *testing.T) {
	a, b := mstore.NewMemoryStore(nil), mstore.NewMemoryStore(nil)
	defer a.Close()
	defer b.Close()

	put(t, a, "k", "v", vclock.Clock{"n1": 1})

	peers := func() []Peer { return []Peer{&storePeer{id: "b", store: b}} }
	svc := NewService(a, peers, 0, 64)
	svc.Start()

	// interval 0 turns background synchronization off entirely
	time.Sleep(100 * time.Millisecond)
	if _, _, loaded, _ := b.Get("k"); loaded {
		t.Error("disabled service synced a peer")
	}
	if svc.Rounds() != 0 {
		t.Errorf("disabled service completed %d rounds", svc.Rounds())
	}

	// Stop must not hang when no loop was started
	svc.Stop()
}

func TestRunOnceWithoutPeers(t *testing.T) {
	a := mstore.NewMemoryStore(nil)
	defer a.Close()

	svc := NewService(a, func() []Peer { return nil }, time.Minute, 64)
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Errorf("RunOnce without peers failed: %v", err)
	}
}
