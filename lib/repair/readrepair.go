package repair

import (
	"context"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/qkv-io/qKV/lib/store"
)

var Logger = logger.GetLogger("repair")

// Merger is the slice of a replica client the repairer needs: pushing a
// full sibling set to one replica.
type Merger interface {
	ID() string
	Merge(ctx context.Context, key string, siblings []store.VersionedValue) error
}

// ReadRepairer converges stale replicas in the background. Repair is
// fire-and-forget: it never blocks the read path, never retries and only
// logs failures. Replicas missed here are caught by anti-entropy.
type ReadRepairer struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewReadRepairer creates a read repairer. timeout bounds each background
// repair round and defaults to two seconds.
func NewReadRepairer(timeout time.Duration) *ReadRepairer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ReadRepairer{timeout: timeout}
}

// Repair pushes the winner set to every stale replica in the background.
// The caller's context is deliberately not used: the repair must outlive
// the read request that triggered it.
func (r *ReadRepairer) Repair(key string, winners []store.VersionedValue, stale map[string]bool, replicas []Merger) {
	if len(stale) == 0 || len(winners) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				Logger.Errorf("read repair panic for key %q: %v", key, rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		repaired, failed := 0, 0
		for _, replica := range replicas {
			if !stale[replica.ID()] {
				continue
			}
			if err := replica.Merge(ctx, key, winners); err != nil {
				Logger.Warningf("read repair of replica %s failed for key %q: %v", replica.ID(), key, err)
				failed++
			} else {
				repaired++
			}
		}
		Logger.Debugf("read repair for key %q: %d repaired, %d failed", key, repaired, failed)
	}()
}

// Wait blocks until all in-flight repairs have finished. Used on shutdown
// and in tests.
func (r *ReadRepairer) Wait() {
	r.wg.Wait()
}
