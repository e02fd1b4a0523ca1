package mstore

import (
	"bytes"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/store/mstore/internal"
	"github.com/qkv-io/qKV/lib/util"
	"github.com/qkv-io/qKV/lib/vclock"
)

var Logger = logger.GetLogger("mstore")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the in-memory store.
type Options struct {
	// NumShards is the number of partitions the key space is split into.
	// Defaults to runtime.NumCPU().
	NumShards int
	// TombstoneRetention is how long a fully deleted key is kept before the
	// garbage collector reaps it. Defaults to one hour.
	TombstoneRetention time.Duration
	// GCInterval is how often each shard checks for due tombstones.
	// Defaults to one second.
	GCInterval time.Duration
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.TombstoneRetention <= 0 {
		opts.TombstoneRetention = time.Hour
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = time.Second
	}
	return opts
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

type mstoreImpl struct {
	shards []*internal.Shard
	seed   uint64
	opts   Options

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewMemoryStore creates a new in-memory replica store. Pass nil to use the
// default options. The returned store must be closed with Close() to stop
// the per-shard garbage collectors.
func NewMemoryStore(o *Options) store.IReplicaStore {
	opts := o.withDefaults()

	s := &mstoreImpl{
		shards: make([]*internal.Shard, opts.NumShards),
		seed:   util.GenerateSeed(),
		opts:   opts,
	}
	for i := range s.shards {
		s.shards[i] = internal.NewShard()
		s.wg.Add(1)
		go s.gcLoop(s.shards[i])
	}
	return s
}

func (s *mstoreImpl) shardFor(key string) *internal.Shard {
	return s.shards[util.HashString(key, s.seed)%uint64(len(s.shards))]
}

// --------------------------------------------------------------------------
// Sibling merge logic
// --------------------------------------------------------------------------

// applySibling folds an incoming versioned value into an existing sibling
// set and returns the new maximal set. A stored sibling survives only if the
// incoming vector does not dominate it; the incoming value is kept only if
// no stored sibling dominates or equals it. Equal vectors with identical
// payloads are deduplicated, equal vectors with diverging payloads are kept
// side by side.
func applySibling(siblings []store.VersionedValue, incoming store.VersionedValue) ([]store.VersionedValue, store.ApplyResult) {
	kept := make([]store.VersionedValue, 0, len(siblings)+1)
	keepIncoming := true

	for _, sib := range siblings {
		switch incoming.Clock.Compare(sib.Clock) {
		case vclock.After:
			// dominated, drop
		case vclock.Before:
			kept = append(kept, sib)
			keepIncoming = false
		case vclock.Equal:
			kept = append(kept, sib)
			if sib.Tombstone == incoming.Tombstone && bytes.Equal(sib.Value, incoming.Value) {
				keepIncoming = false
			}
		case vclock.Concurrent:
			kept = append(kept, sib)
		}
	}

	if !keepIncoming {
		return siblings, store.StaleIgnored
	}

	kept = append(kept, incoming.Copy())
	if len(kept) > 1 {
		return kept, store.AppliedSibling
	}
	return kept, store.Applied
}

// --------------------------------------------------------------------------
// IReplicaStore implementation
// --------------------------------------------------------------------------

func (s *mstoreImpl) Put(key string, value store.VersionedValue) (store.ApplyResult, error) {
	if s.closed.Load() {
		return store.StaleIgnored, store.NewError(store.RetCClosed, "store is closed")
	}
	if key == "" {
		return store.StaleIgnored, store.NewError(store.RetCInvalidOperation, "key must not be empty")
	}

	shard := s.shardFor(key)
	var result store.ApplyResult
	var next internal.Record

	shard.Data.Compute(key, func(old internal.Record, _ bool) (internal.Record, bool) {
		siblings, res := applySibling(old.Siblings, value)
		result = res
		next = internal.Record{Siblings: siblings}
		return next, false
	})

	if result != store.StaleIgnored {
		s.notify(shard, key, next)
	}
	return result, nil
}

func (s *mstoreImpl) PutMerged(key string, siblings []store.VersionedValue) error {
	for _, sib := range siblings {
		if _, err := s.Put(key, sib); err != nil {
			return err
		}
	}
	return nil
}

func (s *mstoreImpl) Get(key string) ([]store.VersionedValue, vclock.Clock, bool, error) {
	if s.closed.Load() {
		return nil, nil, false, store.NewError(store.RetCClosed, "store is closed")
	}

	record, loaded := s.shardFor(key).Data.Load(key)
	if !loaded || len(record.Siblings) == 0 {
		return nil, vclock.New(), false, nil
	}

	siblings := make([]store.VersionedValue, len(record.Siblings))
	for i, sib := range record.Siblings {
		siblings[i] = sib.Copy()
	}
	return siblings, store.MergedClock(siblings), true, nil
}

func (s *mstoreImpl) ForEach(fn func(key string, siblings []store.VersionedValue) bool) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}

	for _, shard := range s.shards {
		abort := false
		shard.Data.Range(func(key string, record internal.Record) bool {
			siblings := make([]store.VersionedValue, len(record.Siblings))
			for i, sib := range record.Siblings {
				siblings[i] = sib.Copy()
			}
			if !fn(key, siblings) {
				abort = true
				return false
			}
			return true
		})
		if abort {
			break
		}
	}
	return nil
}

func (s *mstoreImpl) GetStoreInfo() (store.StoreInfo, error) {
	if s.closed.Load() {
		return store.StoreInfo{}, store.NewError(store.RetCClosed, "store is closed")
	}

	info := store.StoreInfo{Engine: "mstore"}
	for _, shard := range s.shards {
		shard.Data.Range(func(key string, record internal.Record) bool {
			info.Keys++
			info.Siblings += len(record.Siblings)
			info.SizeBytes += len(key)
			for _, sib := range record.Siblings {
				info.SizeBytes += len(sib.Value) + len(sib.Clock)*24
			}
			return true
		})
	}
	return info, nil
}

func (s *mstoreImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, shard := range s.shards {
		shard.Events.Close()
	}
	s.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Garbage collection
// --------------------------------------------------------------------------

// notify tells the shard's GC goroutine about the new state of a key.
func (s *mstoreImpl) notify(shard *internal.Shard, key string, record internal.Record) {
	eventT := internal.EventTWrite
	if record.AllTombstones() {
		eventT = internal.EventTTombstone
	}
	shard.Events.Push(&internal.Event{
		Type: eventT,
		Key:  key,
		At:   time.Now().UnixNano(),
	})
}

// gcLoop is the single consumer of a shard's event queue and the sole owner
// of its tombstone heap. It reschedules keys on state changes and reaps
// fully deleted keys after the retention window.
func (s *mstoreImpl) gcLoop(shard *internal.Shard) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-shard.Events.Recv():
			if !ok {
				return
			}
			switch event.Type {
			case internal.EventTTombstone:
				shard.Tombstones.Schedule(event.Key, event.At+s.opts.TombstoneRetention.Nanoseconds())
			case internal.EventTWrite:
				shard.Tombstones.Remove(event.Key)
			}
		case <-ticker.C:
			s.reapDue(shard)
		}
	}
}

func (s *mstoreImpl) reapDue(shard *internal.Shard) {
	now := time.Now().UnixNano()
	for {
		key, ok := shard.Tombstones.PopDue(now)
		if !ok {
			return
		}
		// Re-check under the per-key atomic compute: a live write may have
		// raced the reap and its event may still be queued.
		shard.Data.Compute(key, func(old internal.Record, loaded bool) (internal.Record, bool) {
			if !loaded || !old.AllTombstones() {
				return old, !loaded
			}
			Logger.Debugf("reaped tombstoned key %q", key)
			return internal.Record{}, true
		})
	}
}
