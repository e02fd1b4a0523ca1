package quorum

import (
	"context"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/qkv-io/qKV/lib/repair"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

var Logger = logger.GetLogger("quorum")

// ResolveFunc returns the preference list for a key, local replica
// included. The coordinator fans every operation out to all of them.
type ResolveFunc func(key string) []ReplicaClient

// Hinter receives writes that failed on their home replica while sloppy
// quorums are enabled. Implementations must not block.
type Hinter interface {
	Enqueue(targetID string, key string, siblings []store.VersionedValue)
}

// ReadResult is the outcome of a coordinated read.
type ReadResult struct {
	// Siblings holds the live winning versions. More than one entry means
	// concurrent writes the client has to resolve.
	Siblings []store.VersionedValue
	// Context is the merged clock of all winners. Clients pass it back on
	// their next write so that it dominates everything they have seen,
	// tombstones included.
	Context vclock.Clock
	// Found is false if the key is unknown or fully deleted.
	Found bool
}

// Coordinator executes quorum reads and writes against a key's preference
// list. It is safe for concurrent use.
type Coordinator struct {
	cfg      Config
	self     string
	resolve  ResolveFunc
	repairer *repair.ReadRepairer
	hinter   Hinter
}

// NewCoordinator validates the quorum configuration and creates a
// coordinator. hinter may be nil when sloppy quorums are disabled.
func NewCoordinator(cfg Config, selfID string, resolve ResolveFunc, repairer *repair.ReadRepairer, hinter Hinter) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repairer == nil {
		repairer = repair.NewReadRepairer(cfg.Timeout)
	}
	return &Coordinator{
		cfg:      cfg,
		self:     selfID,
		resolve:  resolve,
		repairer: repairer,
		hinter:   hinter,
	}, nil
}

// Config returns the coordinator's quorum configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// --------------------------------------------------------------------------
// Write path
// --------------------------------------------------------------------------

// Write stores a value under the key. clientCtx is the causal context from
// the client's preceding read (nil for a blind write). It returns the new
// version vector of the write, which the client can use as context for
// follow-up operations.
func (c *Coordinator) Write(ctx context.Context, key string, value []byte, clientCtx vclock.Clock) (vclock.Clock, error) {
	return c.replicate(ctx, key, store.VersionedValue{Value: value, Clock: c.nextClock(clientCtx)})
}

// Delete writes a tombstone under the key. Deletes must win version-vector
// comparisons against everything the client has seen, so they carry a
// causal context exactly like writes.
func (c *Coordinator) Delete(ctx context.Context, key string, clientCtx vclock.Clock) (vclock.Clock, error) {
	return c.replicate(ctx, key, store.VersionedValue{Clock: c.nextClock(clientCtx), Tombstone: true})
}

// nextClock merges the client context and bumps the coordinator's own
// component, making the new version a causal descendant of everything the
// client has observed.
func (c *Coordinator) nextClock(clientCtx vclock.Clock) vclock.Clock {
	return clientCtx.Copy().Increment(c.self)
}

func (c *Coordinator) replicate(ctx context.Context, key string, value store.VersionedValue) (vclock.Clock, error) {
	replicas := c.resolve(key)
	if len(replicas) < c.cfg.W {
		return nil, fmt.Errorf("%w: only %d replicas available, need w=%d", ErrQuorumNotReached, len(replicas), c.cfg.W)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	results := make(chan error, len(replicas))
	for _, replica := range replicas {
		go func(replica ReplicaClient) {
			_, err := replica.Put(opCtx, key, value)
			if err != nil {
				Logger.Warningf("write to replica %s failed for key %q: %v", replica.ID(), key, err)
				if c.cfg.Sloppy && c.hinter != nil {
					c.hinter.Enqueue(replica.ID(), key, []store.VersionedValue{value})
				}
			}
			results <- err
		}(replica)
	}

	acks, failures := 0, 0
	for acks < c.cfg.W {
		select {
		case err := <-results:
			if err == nil {
				acks++
			} else if failures++; len(replicas)-failures < c.cfg.W {
				return nil, fmt.Errorf("%w: %d acks, %d failures of %d replicas (w=%d)",
					ErrQuorumNotReached, acks, failures, len(replicas), c.cfg.W)
			}
		case <-opCtx.Done():
			return nil, fmt.Errorf("%w: %d of %d acks after %s (w=%d)",
				ErrQuorumNotReached, acks, len(replicas), time.Since(start).Round(time.Millisecond), c.cfg.W)
		}
	}
	return value.Clock, nil
}

// --------------------------------------------------------------------------
// Read path
// --------------------------------------------------------------------------

// Read performs a quorum read. It waits for r replica responses,
// reconciles them into the winner set and triggers background read repair
// for replicas that returned stale state.
func (c *Coordinator) Read(ctx context.Context, key string) (ReadResult, error) {
	replicas := c.resolve(key)
	if len(replicas) < c.cfg.R {
		return ReadResult{}, fmt.Errorf("%w: only %d replicas available, need r=%d", ErrQuorumNotReached, len(replicas), c.cfg.R)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type reply struct {
		resp repair.Response
		err  error
	}
	results := make(chan reply, len(replicas))
	for _, replica := range replicas {
		go func(replica ReplicaClient) {
			siblings, found, err := replica.Get(opCtx, key)
			results <- reply{
				resp: repair.Response{ReplicaID: replica.ID(), Found: found, Siblings: siblings},
				err:  err,
			}
		}(replica)
	}

	var responses []repair.Response
	failures := 0
	for len(responses) < c.cfg.R {
		select {
		case r := <-results:
			if r.err != nil {
				Logger.Warningf("read from replica %s failed for key %q: %v", r.resp.ReplicaID, key, r.err)
				if failures++; len(replicas)-failures < c.cfg.R {
					return ReadResult{}, fmt.Errorf("%w: %d responses, %d failures of %d replicas (r=%d)",
						ErrQuorumNotReached, len(responses), failures, len(replicas), c.cfg.R)
				}
			} else {
				responses = append(responses, r.resp)
			}
		case <-opCtx.Done():
			return ReadResult{}, fmt.Errorf("%w: %d of %d responses before timeout (r=%d)",
				ErrQuorumNotReached, len(responses), len(replicas), c.cfg.R)
		}
	}

	result := repair.Reconcile(responses)
	if len(result.Stale) > 0 {
		mergers := make([]repair.Merger, len(replicas))
		for i, replica := range replicas {
			mergers[i] = replica
		}
		c.repairer.Repair(key, result.Winners, result.Stale, mergers)
	}

	readCtx := store.MergedClock(result.Winners)
	if result.NotFound() {
		// the merged clock of the tombstones is still returned so a
		// follow-up write can dominate the delete
		return ReadResult{Context: readCtx}, nil
	}
	return ReadResult{Siblings: result.LiveWinners(), Context: readCtx, Found: true}, nil
}
