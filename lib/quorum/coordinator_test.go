package quorum

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qkv-io/qKV/lib/repair"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/store/mstore"
)

// --------------------------------------------------------------------------
// Test fixtures
// --------------------------------------------------------------------------

// fakeReplica wraps a real in-memory store and can be taken down to
// simulate an unreachable node.
type fakeReplica struct {
	id    string
	store store.IReplicaStore
	local ReplicaClient

	mu   sync.Mutex
	down bool
}

func newFakeReplica(id string) *fakeReplica {
	s := mstore.NewMemoryStore(nil)
	return &fakeReplica{id: id, store: s, local: NewLocalReplica(id, s)}
}

func (f *fakeReplica) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeReplica) unreachable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("replica unreachable")
	}
	return nil
}

func (f *fakeReplica) ID() string { return f.id }

func (f *fakeReplica) Put(ctx context.Context, key string, value store.VersionedValue) (store.ApplyResult, error) {
	if err := f.unreachable(); err != nil {
		return store.StaleIgnored, err
	}
	return f.local.Put(ctx, key, value)
}

func (f *fakeReplica) Get(ctx context.Context, key string) ([]store.VersionedValue, bool, error) {
	if err := f.unreachable(); err != nil {
		return nil, false, err
	}
	return f.local.Get(ctx, key)
}

func (f *fakeReplica) Merge(ctx context.Context, key string, siblings []store.VersionedValue) error {
	if err := f.unreachable(); err != nil {
		return err
	}
	return f.local.Merge(ctx, key, siblings)
}

func (f *fakeReplica) Ping(context.Context) error { return f.unreachable() }

type cluster struct {
	replicas []*fakeReplica
	repairer *repair.ReadRepairer
}

func newCluster(n int) *cluster {
	c := &cluster{repairer: repair.NewReadRepairer(time.Second)}
	for i := 0; i < n; i++ {
		c.replicas = append(c.replicas, newFakeReplica(nodeID(i)))
	}
	return c
}

func nodeID(i int) string { return string(rune('a'+i)) + "-node" }

func (c *cluster) resolve(string) []ReplicaClient {
	clients := make([]ReplicaClient, len(c.replicas))
	for i, r := range c.replicas {
		clients[i] = r
	}
	return clients
}

func (c *cluster) close() {
	for _, r := range c.replicas {
		r.store.Close()
	}
}

func (c *cluster) coordinator(t *testing.T, self string, cfg Config, hinter Hinter) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(cfg, self, c.resolve, c.repairer, hinter)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return coord
}

func testConfig(sloppy bool) Config {
	return Config{N: 3, W: 2, R: 2, Timeout: time.Second, Sloppy: sloppy}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestReadYourWritesWithOneReplicaDown(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	c.replicas[2].setDown(true)

	writeCtx, err := coord.Write(context.Background(), "k", []byte("v1"), nil)
	if err != nil {
		t.Fatalf("Write failed with one replica down: %v", err)
	}
	if writeCtx.Get("coord") != 1 {
		t.Errorf("write context missing coordinator component: %v", writeCtx)
	}

	result, err := coord.Read(context.Background(), "k")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !result.Found || len(result.Siblings) != 1 {
		t.Fatalf("expected single winner, got %+v", result)
	}
	if !bytes.Equal(result.Siblings[0].Value, []byte("v1")) {
		t.Errorf("read %q, want v1", result.Siblings[0].Value)
	}
}

func TestWriteQuorumNotReached(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	c.replicas[1].setDown(true)
	c.replicas[2].setDown(true)

	if _, err := coord.Write(context.Background(), "k", []byte("v"), nil); !errors.Is(err, ErrQuorumNotReached) {
		t.Errorf("Write with 1 of 3 replicas up returned %v, want ErrQuorumNotReached", err)
	}
}

func TestReadQuorumNotReached(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	if _, err := coord.Write(context.Background(), "k", []byte("v"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	c.replicas[0].setDown(true)
	c.replicas[1].setDown(true)

	if _, err := coord.Read(context.Background(), "k"); !errors.Is(err, ErrQuorumNotReached) {
		t.Errorf("Read with 1 of 3 replicas up returned %v, want ErrQuorumNotReached", err)
	}
}

func TestReadMissingKey(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	result, err := coord.Read(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if result.Found {
		t.Errorf("missing key reported as found: %+v", result)
	}
}

func TestConcurrentWritesSurfaceAsSiblings(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	alice := c.coordinator(t, "alice", testConfig(false), nil)
	bob := c.coordinator(t, "bob", testConfig(false), nil)

	// two blind writes from different coordinators are causally unrelated
	if _, err := alice.Write(context.Background(), "k", []byte("from-alice"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := bob.Write(context.Background(), "k", []byte("from-bob"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	result, err := alice.Read(context.Background(), "k")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(result.Siblings) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(result.Siblings))
	}

	// writing with the read context resolves the conflict
	if _, err := alice.Write(context.Background(), "k", []byte("resolved"), result.Context); err != nil {
		t.Fatalf("resolving write failed: %v", err)
	}
	result, err = alice.Read(context.Background(), "k")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(result.Siblings) != 1 || !bytes.Equal(result.Siblings[0].Value, []byte("resolved")) {
		t.Errorf("conflict not resolved: %+v", result)
	}
}

func TestDeleteAndRecreate(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	if _, err := coord.Write(context.Background(), "k", []byte("v"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	result, err := coord.Read(context.Background(), "k")
	if err != nil || !result.Found {
		t.Fatalf("Read failed: %v (found=%v)", err, result.Found)
	}

	if _, err := coord.Delete(context.Background(), "k", result.Context); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	result, err = coord.Read(context.Background(), "k")
	if err != nil {
		t.Fatalf("Read after delete failed: %v", err)
	}
	if result.Found {
		t.Fatalf("deleted key still found: %+v", result)
	}
	if len(result.Context) == 0 {
		t.Fatal("read after delete returned no causal context")
	}

	// the tombstone's context lets a new write dominate the delete
	if _, err := coord.Write(context.Background(), "k", []byte("reborn"), result.Context); err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
	result, err = coord.Read(context.Background(), "k")
	if err != nil || !result.Found {
		t.Fatalf("Read after recreate failed: %v (found=%v)", err, result.Found)
	}
	if len(result.Siblings) != 1 || !bytes.Equal(result.Siblings[0].Value, []byte("reborn")) {
		t.Errorf("unexpected state after recreate: %+v", result)
	}
}

type recordingHinter struct {
	mu    sync.Mutex
	hints map[string][]string // targetID -> keys
}

func (h *recordingHinter) Enqueue(targetID, key string, _ []store.VersionedValue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hints == nil {
		h.hints = make(map[string][]string)
	}
	h.hints[targetID] = append(h.hints[targetID], key)
}

func (h *recordingHinter) keysFor(targetID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hints[targetID]
}

func TestSloppyWriteEnqueuesHint(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	hinter := &recordingHinter{}
	coord := c.coordinator(t, "coord", testConfig(true), hinter)

	downID := c.replicas[2].ID()
	c.replicas[2].setDown(true)

	if _, err := coord.Write(context.Background(), "k", []byte("v"), nil); err != nil {
		t.Fatalf("sloppy write failed: %v", err)
	}

	// the hint is enqueued by the failing replica's goroutine, which may
	// finish after the write returns
	deadline := time.Now().Add(time.Second)
	for len(hinter.keysFor(downID)) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no hint enqueued for down replica %s", downID)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if keys := hinter.keysFor(downID); keys[0] != "k" {
		t.Errorf("hint recorded for key %q, want k", keys[0])
	}
}

func TestStrictWriteDoesNotHint(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	hinter := &recordingHinter{}
	coord := c.coordinator(t, "coord", testConfig(false), hinter)

	c.replicas[2].setDown(true)
	if _, err := coord.Write(context.Background(), "k", []byte("v"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(hinter.keysFor(c.replicas[2].ID())) != 0 {
		t.Error("strict quorum write enqueued a hint")
	}
}

func TestReadRepairConvergesStaleReplica(t *testing.T) {
	c := newCluster(3)
	defer c.close()
	coord := c.coordinator(t, "coord", testConfig(false), nil)

	// write lands everywhere, then replica 2 is wiped to simulate having
	// missed it
	if _, err := coord.Write(context.Background(), "k", []byte("v1"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	stale := newFakeReplica(c.replicas[2].id)
	c.replicas[2].store.Close()
	c.replicas[2] = stale

	// force the stale replica into the read quorum
	c.replicas[1].setDown(true)

	result, err := coord.Read(context.Background(), "k")
	if err != nil || !result.Found {
		t.Fatalf("Read failed: %v (found=%v)", err, result.Found)
	}
	c.repairer.Wait()

	siblings, _, loaded, err := stale.store.Get("k")
	if err != nil {
		t.Fatalf("Get on repaired replica failed: %v", err)
	}
	if !loaded || len(siblings) != 1 || !bytes.Equal(siblings[0].Value, []byte("v1")) {
		t.Errorf("stale replica not repaired: loaded=%v siblings=%v", loaded, siblings)
	}
}
