package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/qkv-io/qKV/lib/antientropy"
	"github.com/qkv-io/qKV/lib/quorum"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/rpc/client"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
)

// remoteReplica is a lazily dialed client for one peer node. The first
// operation establishes the connection; until the peer is reachable every
// operation fails fast and the quorum logic treats the peer as down.
type remoteReplica struct {
	nodeID     string
	config     common.ClientConfig
	transports ClientTransportFactory
	serializer serializer.IRPCSerializer

	mu     sync.Mutex
	client client.IReplicaClient
}

func newRemoteReplica(
	nodeID string,
	endpoint string,
	serverConfig common.ServerConfig,
	transports ClientTransportFactory,
	srlzr serializer.IRPCSerializer,
) *remoteReplica {
	return &remoteReplica{
		nodeID: nodeID,
		config: common.ClientConfig{
			TimeoutSecond: int(serverConfig.TimeoutSecond),
			Transport: common.ClientTransportConfig{
				Endpoints:  []string{endpoint},
				TCPNoDelay: serverConfig.Transport.TCPNoDelay,
			},
		},
		transports: transports,
		serializer: srlzr,
	}
}

// get returns the connected client, dialing on first use. A failed dial is
// retried on the next call.
func (r *remoteReplica) get() (client.IReplicaClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	c, err := client.NewReplicaClient(r.nodeID, r.config, r.transports(), r.serializer)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", quorum.ErrNodeUnreachable, r.nodeID, err)
	}
	r.client = c
	return c, nil
}

func (r *remoteReplica) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

// --------------------------------------------------------------------------
// Replica Operations (docu see quorum.ReplicaClient)
// --------------------------------------------------------------------------

func (r *remoteReplica) ID() string { return r.nodeID }

func (r *remoteReplica) Put(ctx context.Context, key string, value store.VersionedValue) (store.ApplyResult, error) {
	c, err := r.get()
	if err != nil {
		return store.StaleIgnored, err
	}
	return c.Put(ctx, key, value)
}

func (r *remoteReplica) Get(ctx context.Context, key string) ([]store.VersionedValue, bool, error) {
	c, err := r.get()
	if err != nil {
		return nil, false, err
	}
	return c.Get(ctx, key)
}

func (r *remoteReplica) Merge(ctx context.Context, key string, siblings []store.VersionedValue) error {
	c, err := r.get()
	if err != nil {
		return err
	}
	return c.Merge(ctx, key, siblings)
}

func (r *remoteReplica) Ping(ctx context.Context) error {
	c, err := r.get()
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}

// --------------------------------------------------------------------------
// Anti-Entropy Operations (docu see antientropy.Peer)
// --------------------------------------------------------------------------

func (r *remoteReplica) Digest(ctx context.Context, buckets int) ([]uint64, error) {
	c, err := r.get()
	if err != nil {
		return nil, err
	}
	return c.Digest(ctx, buckets)
}

func (r *remoteReplica) Pull(ctx context.Context, buckets int, bucketIDs []uint64) ([]antientropy.KeyedSiblings, error) {
	c, err := r.get()
	if err != nil {
		return nil, err
	}
	return c.Pull(ctx, buckets, bucketIDs)
}

func (r *remoteReplica) Push(ctx context.Context, records []antientropy.KeyedSiblings) error {
	c, err := r.get()
	if err != nil {
		return err
	}
	return c.Push(ctx, records)
}
