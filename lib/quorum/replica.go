package quorum

import (
	"context"

	"github.com/qkv-io/qKV/lib/store"
)

// ReplicaClient is the coordinator's view of one replica, local or remote.
// Implementations must be safe for concurrent use.
type ReplicaClient interface {
	// ID returns the stable node ID of the replica.
	ID() string

	// Put applies a fully versioned value on the replica. The replica
	// compares vectors locally and may ignore the write as stale.
	Put(ctx context.Context, key string, value store.VersionedValue) (store.ApplyResult, error)

	// Get returns the replica's current sibling set for the key. found is
	// false if the replica does not know the key.
	Get(ctx context.Context, key string) (siblings []store.VersionedValue, found bool, err error)

	// Merge folds a full sibling set into the replica, used by read repair
	// and anti-entropy. Merging is idempotent.
	Merge(ctx context.Context, key string, siblings []store.VersionedValue) error

	// Ping probes replica liveness.
	Ping(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Local loopback replica
// --------------------------------------------------------------------------

// localReplica serves the coordinator's own store without going through a
// transport.
type localReplica struct {
	id    string
	store store.IReplicaStore
}

// NewLocalReplica wraps the node's own store as a ReplicaClient so the
// coordinator treats local and remote replicas uniformly.
func NewLocalReplica(id string, s store.IReplicaStore) ReplicaClient {
	return &localReplica{id: id, store: s}
}

func (l *localReplica) ID() string { return l.id }

func (l *localReplica) Put(_ context.Context, key string, value store.VersionedValue) (store.ApplyResult, error) {
	return l.store.Put(key, value)
}

func (l *localReplica) Get(_ context.Context, key string) ([]store.VersionedValue, bool, error) {
	siblings, _, found, err := l.store.Get(key)
	return siblings, found, err
}

func (l *localReplica) Merge(_ context.Context, key string, siblings []store.VersionedValue) error {
	return l.store.PutMerged(key, siblings)
}

func (l *localReplica) Ping(_ context.Context) error { return nil }
