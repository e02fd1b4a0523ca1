package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/util"
)

var Logger = logger.GetLogger("handoff")

// ErrHandoffExpired marks a hint that outlived the retention window before
// its target came back.
var ErrHandoffExpired = errors.New("handoff hint expired before delivery")

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Replica is the slice of a replica client the drainer needs.
type Replica interface {
	ID() string
	Merge(ctx context.Context, key string, siblings []store.VersionedValue) error
	Ping(ctx context.Context) error
}

// Hint is one parked write for one unreachable target.
type Hint struct {
	Target    string
	Key       string
	Siblings  []store.VersionedValue
	CreatedAt time.Time
}

func (h Hint) String() string {
	return fmt.Sprintf("Hint{Target: %s, Key: %s, CreatedAt: %s}", h.Target, h.Key, h.CreatedAt.Format(time.RFC3339))
}

// Stats are cumulative delivery counters across all targets.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Expired   uint64 `json:"expired"`
}

// targetQueue holds the FIFO hint queue and pending counter of one target.
type targetQueue struct {
	hints   *util.LockFreeMPSC[Hint]
	pending atomic.Int64
}

// Manager queues hints per target and replays them once targets answer
// again. It implements the coordinator's Hinter interface.
type Manager struct {
	retention time.Duration
	provider  func(targetID string) (Replica, error)

	targets *xsync.MapOf[string, *targetQueue]

	delivered atomic.Uint64
	expired   atomic.Uint64

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewManager creates a handoff manager. provider resolves a target node ID
// to a replica client; retention bounds how long a hint may wait, values
// <= 0 select one hour.
func NewManager(retention time.Duration, provider func(targetID string) (Replica, error)) *Manager {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Manager{
		retention: retention,
		provider:  provider,
		targets:   xsync.NewMapOf[string, *targetQueue](),
	}
}

// Enqueue parks a write for an unreachable target. It never blocks: the
// underlying queue is unbounded and drained by the target's goroutine.
func (m *Manager) Enqueue(targetID string, key string, siblings []store.VersionedValue) {
	if m.closed.Load() {
		return
	}

	queue, loaded := m.targets.LoadOrCompute(targetID, func() *targetQueue {
		return &targetQueue{hints: util.NewLockFreeMPSC[Hint]()}
	})
	if !loaded {
		m.wg.Add(1)
		go m.drain(targetID, queue)
	}

	queue.pending.Add(1)
	queue.hints.Push(&Hint{
		Target:    targetID,
		Key:       key,
		Siblings:  siblings,
		CreatedAt: time.Now(),
	})
	Logger.Debugf("parked hint for target %s, key %q", targetID, key)
}

// Pending returns the number of undelivered hints for a target.
func (m *Manager) Pending(targetID string) int {
	if queue, ok := m.targets.Load(targetID); ok {
		return int(queue.pending.Load())
	}
	return 0
}

// GetStats returns cumulative delivery counters.
func (m *Manager) GetStats() Stats {
	return Stats{
		Delivered: m.delivered.Load(),
		Expired:   m.expired.Load(),
	}
}

// Close stops all drainers. Undelivered hints are dropped; anti-entropy
// covers whatever is lost here.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.targets.Range(func(_ string, queue *targetQueue) bool {
		queue.hints.Close()
		return true
	})
	m.wg.Wait()
}

// --------------------------------------------------------------------------
// Drainer
// --------------------------------------------------------------------------

// drain is the single consumer of one target's hint queue. Hints replay in
// FIFO order; a hint is only taken off the queue once it is delivered or
// expired, so order is preserved across target downtime.
func (m *Manager) drain(targetID string, queue *targetQueue) {
	defer m.wg.Done()

	for hint := range queue.hints.Recv() {
		m.deliver(targetID, *hint)
		queue.pending.Add(-1)
	}
}

// deliver replays one hint, retrying with bounded backoff until the target
// accepts it or the retention window lapses.
func (m *Manager) deliver(targetID string, hint Hint) {
	deadline := hint.CreatedAt.Add(m.retention)
	backoff := minBackoff

	for {
		if time.Now().After(deadline) {
			m.expired.Add(1)
			Logger.Warningf("dropping hint for target %s, key %q: %v", targetID, hint.Key, ErrHandoffExpired)
			return
		}
		if m.closed.Load() {
			return
		}

		if err := m.tryDeliver(targetID, hint); err != nil {
			Logger.Debugf("hint delivery to %s failed, retrying in %s: %v", targetID, backoff, err)
			time.Sleep(backoff)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		m.delivered.Add(1)
		Logger.Infof("delivered hint to target %s, key %q", targetID, hint.Key)
		return
	}
}

func (m *Manager) tryDeliver(targetID string, hint Hint) error {
	replica, err := m.provider(targetID)
	if err != nil {
		return fmt.Errorf("resolving target: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// probe first so a dead target costs one cheap RPC, not a payload
	if err := replica.Ping(ctx); err != nil {
		return fmt.Errorf("target not alive: %w", err)
	}
	return replica.Merge(ctx, hint.Key, hint.Siblings)
}
