package antientropy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/qkv-io/qKV/lib/store"
)

var Logger = logger.GetLogger("antientropy")

// Peer is the anti-entropy view of a remote node.
type Peer interface {
	// ID returns the peer's node ID.
	ID() string

	// Digest returns the peer's bucket digest. The peer must use the same
	// bucket count.
	Digest(ctx context.Context, buckets int) ([]uint64, error)

	// Pull returns all of the peer's records in the given buckets.
	Pull(ctx context.Context, buckets int, bucketIDs []uint64) ([]KeyedSiblings, error)

	// Push merges records into the peer's store.
	Push(ctx context.Context, records []KeyedSiblings) error
}

// RoundStats describes one completed sync round.
type RoundStats struct {
	Peer          string `json:"peer"`
	BucketsDiffed int    `json:"bucketsDiffed"`
	KeysPulled    int    `json:"keysPulled"`
	KeysPushed    int    `json:"keysPushed"`
}

// Service runs periodic anti-entropy rounds against random peers.
type Service struct {
	store    store.IReplicaStore
	peers    func() []Peer
	interval time.Duration
	buckets  int
	timeout  time.Duration

	rounds atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewService creates the anti-entropy service. peers is re-evaluated every
// round so membership changes take effect without a restart. interval <= 0
// disables the background loop (RunOnce and SyncWith still work), buckets
// <= 0 selects DefaultBuckets.
func NewService(s store.IReplicaStore, peers func() []Peer, interval time.Duration, buckets int) *Service {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Service{
		store:    s,
		peers:    peers,
		interval: interval,
		buckets:  buckets,
		timeout:  30 * time.Second,
		stop:     make(chan struct{}),
	}
}

// Start launches the background sync loop. A non-positive interval means
// the loop is disabled and Start does nothing. Calling Start twice is a
// no-op.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		if s.interval <= 0 {
			Logger.Infof("background synchronization disabled")
			return
		}
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop terminates the sync loop and waits for an in-flight round.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// Rounds returns the number of completed sync rounds.
func (s *Service) Rounds() uint64 {
	return s.rounds.Load()
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			if _, err := s.RunOnce(ctx); err != nil {
				Logger.Warningf("anti-entropy round failed: %v", err)
			}
			cancel()
		}
	}
}

// RunOnce syncs with one random peer and returns the round's stats. It is
// also called directly by the ticker loop and by tests.
func (s *Service) RunOnce(ctx context.Context) (RoundStats, error) {
	peers := s.peers()
	if len(peers) == 0 {
		return RoundStats{}, nil
	}
	return s.SyncWith(ctx, peers[rand.Intn(len(peers))])
}

// SyncWith runs one bidirectional sync round against the given peer.
// Merging is idempotent, so overlapping rounds and repeated syncs are
// harmless.
func (s *Service) SyncWith(ctx context.Context, peer Peer) (RoundStats, error) {
	stats := RoundStats{Peer: peer.ID()}

	local, err := ComputeDigest(s.store, s.buckets)
	if err != nil {
		return stats, fmt.Errorf("computing local digest: %w", err)
	}
	remote, err := peer.Digest(ctx, s.buckets)
	if err != nil {
		return stats, fmt.Errorf("fetching digest from %s: %w", peer.ID(), err)
	}

	diff := DiffDigests(local, remote)
	stats.BucketsDiffed = len(diff)
	if len(diff) == 0 {
		s.rounds.Add(1)
		return stats, nil
	}

	// pull: fold the peer's records for the differing buckets into the
	// local store
	pulled, err := peer.Pull(ctx, s.buckets, diff)
	if err != nil {
		return stats, fmt.Errorf("pulling from %s: %w", peer.ID(), err)
	}
	for _, record := range pulled {
		if err := s.store.PutMerged(record.Key, record.Siblings); err != nil {
			return stats, fmt.Errorf("merging pulled key %q: %w", record.Key, err)
		}
	}
	stats.KeysPulled = len(pulled)

	// push: send our records for the same buckets so the peer converges too
	toPush, err := BucketRecords(s.store, s.buckets, diff)
	if err != nil {
		return stats, fmt.Errorf("collecting push records: %w", err)
	}
	if len(toPush) > 0 {
		if err := peer.Push(ctx, toPush); err != nil {
			return stats, fmt.Errorf("pushing to %s: %w", peer.ID(), err)
		}
	}
	stats.KeysPushed = len(toPush)

	s.rounds.Add(1)
	Logger.Infof("synced with %s: %d buckets differed, %d keys pulled, %d keys pushed",
		peer.ID(), stats.BucketsDiffed, stats.KeysPulled, stats.KeysPushed)
	return stats, nil
}
