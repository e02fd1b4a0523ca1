package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

// fakeTarget records merged hints and can simulate downtime.
type fakeTarget struct {
	id string

	mu     sync.Mutex
	down   bool
	merged []string // keys in arrival order
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeTarget) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("target down")
	}
	return nil
}

func (f *fakeTarget) Merge(_ context.Context, key string, _ []store.VersionedValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("target down")
	}
	f.merged = append(f.merged, key)
	return nil
}

func (f *fakeTarget) mergedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.merged...)
}

func provider(targets ...*fakeTarget) func(string) (Replica, error) {
	return func(id string) (Replica, error) {
		for _, t := range targets {
			if t.id == id {
				return t, nil
			}
		}
		return nil, errors.New("unknown target")
	}
}

func hintValue() []store.VersionedValue {
	return []store.VersionedValue{{Value: []byte("v"), Clock: vclock.Clock{"n1": 1}}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeliveryAfterTargetRecovers(t *testing.T) {
	target := &fakeTarget{id: "n2", down: true}
	m := NewManager(time.Minute, provider(target))
	defer m.Close()

	m.Enqueue("n2", "k1", hintValue())
	if m.Pending("n2") != 1 {
		t.Fatalf("Pending = %d, want 1", m.Pending("n2"))
	}

	// target is down, nothing must arrive
	time.Sleep(100 * time.Millisecond)
	if len(target.mergedKeys()) != 0 {
		t.Fatal("hint delivered to a down target")
	}

	target.setDown(false)
	waitFor(t, "hint delivery", func() bool { return len(target.mergedKeys()) == 1 })
	waitFor(t, "pending drain", func() bool { return m.Pending("n2") == 0 })

	if stats := m.GetStats(); stats.Delivered != 1 || stats.Expired != 0 {
		t.Errorf("stats = %+v, want 1 delivered", stats)
	}
}

func TestFIFOOrderAcrossDowntime(t *testing.T) {
	target := &fakeTarget{id: "n2", down: true}
	m := NewManager(time.Minute, provider(target))
	defer m.Close()

	keys := []string{"first", "second", "third"}
	for _, key := range keys {
		m.Enqueue("n2", key, hintValue())
	}

	target.setDown(false)
	waitFor(t, "all hints", func() bool { return len(target.mergedKeys()) == len(keys) })

	for i, key := range target.mergedKeys() {
		if key != keys[i] {
			t.Fatalf("hints replayed out of order: got %v, want %v", target.mergedKeys(), keys)
		}
	}
}

func TestHintExpiry(t *testing.T) {
	target := &fakeTarget{id: "n2", down: true}
	m := NewManager(50*time.Millisecond, provider(target))
	defer m.Close()

	m.Enqueue("n2", "k", hintValue())
	waitFor(t, "expiry", func() bool { return m.GetStats().Expired == 1 })

	// recovery after expiry must not deliver the dropped hint
	target.setDown(false)
	time.Sleep(100 * time.Millisecond)
	if len(target.mergedKeys()) != 0 {
		t.Error("expired hint was delivered")
	}
	if m.Pending("n2") != 0 {
		t.Errorf("Pending = %d after expiry, want 0", m.Pending("n2"))
	}
}

func TestUnknownTargetExpires(t *testing.T) {
	m := NewManager(50*time.Millisecond, provider())
	defer m.Close()

	m.Enqueue("ghost", "k", hintValue())
	waitFor(t, "expiry of unresolvable hint", func() bool { return m.GetStats().Expired == 1 })
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	target := &fakeTarget{id: "n2"}
	m := NewManager(time.Minute, provider(target))
	m.Close()

	m.Enqueue("n2", "k", hintValue())
	if m.Pending("n2") != 0 {
		t.Error("Enqueue after Close parked a hint")
	}
}

func TestIndependentTargets(t *testing.T) {
	up := &fakeTarget{id: "up"}
	down := &fakeTarget{id: "down", down: true}
	m := NewManager(time.Minute, provider(up, down))
	defer m.Close()

	m.Enqueue("down", "k1", hintValue())
	m.Enqueue("up", "k2", hintValue())

	// the blocked target must not hold up the healthy one
	waitFor(t, "delivery to healthy target", func() bool { return len(up.mergedKeys()) == 1 })
	if len(down.mergedKeys()) != 0 {
		t.Error("hint delivered to a down target")
	}
}
