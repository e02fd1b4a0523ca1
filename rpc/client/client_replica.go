package client

import (
	"context"

	"github.com/qkv-io/qKV/lib/antientropy"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
	"github.com/qkv-io/qKV/rpc/transport"
)

// IReplicaClient is the full node-to-node client surface: the coordinator's
// replica operations plus the anti-entropy peer operations.
type IReplicaClient interface {
	ID() string

	// Replica operations (see quorum.ReplicaClient)
	Put(ctx context.Context, key string, value store.VersionedValue) (store.ApplyResult, error)
	Get(ctx context.Context, key string) (siblings []store.VersionedValue, found bool, err error)
	Merge(ctx context.Context, key string, siblings []store.VersionedValue) error
	Ping(ctx context.Context) error

	// Anti-entropy operations (see antientropy.Peer)
	Digest(ctx context.Context, buckets int) ([]uint64, error)
	Pull(ctx context.Context, buckets int, bucketIDs []uint64) ([]antientropy.KeyedSiblings, error)
	Push(ctx context.Context, records []antientropy.KeyedSiblings) error

	// Close closes the underlying transport
	Close() error
}

// NewReplicaClient creates a client for one remote replica node
// The function takes the node's ID, a config, a transport and a serializer as parameters
// It returns an IReplicaClient and an error
func NewReplicaClient(
	nodeID string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IReplicaClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new replica client
	c := replicaClient{
		nodeID: nodeID,
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the replica client
	return &c, nil
}

type replicaClient struct {
	nodeID string
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Replica Operations (docu see quorum.ReplicaClient)
// --------------------------------------------------------------------------

func (c *replicaClient) ID() string {
	return c.nodeID
}

func (c *replicaClient) Put(_ context.Context, key string, value store.VersionedValue) (store.ApplyResult, error) {
	req := common.NewReplicaPutRequest(key, common.SiblingFromValue(value))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return store.StaleIgnored, err
	}
	return store.ApplyResult(resp.Result), nil
}

func (c *replicaClient) Get(_ context.Context, key string) ([]store.VersionedValue, bool, error) {
	req := common.NewReplicaGetRequest(key)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return common.ValuesFromSiblings(resp.Siblings), resp.Ok, nil
}

func (c *replicaClient) Merge(_ context.Context, key string, siblings []store.VersionedValue) error {
	req := common.NewReplicaMergeRequest(key, common.SiblingsFromValues(siblings))
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *replicaClient) Ping(_ context.Context) error {
	req := common.NewPingRequest()
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

// --------------------------------------------------------------------------
// Anti-Entropy Operations (docu see antientropy.Peer)
// --------------------------------------------------------------------------

func (c *replicaClient) Digest(_ context.Context, buckets int) ([]uint64, error) {
	req := common.NewDigestRequest(uint32(buckets))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Digest, nil
}

func (c *replicaClient) Pull(_ context.Context, buckets int, bucketIDs []uint64) ([]antientropy.KeyedSiblings, error) {
	req := common.NewPullRequest(uint32(buckets), bucketIDs)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}

	records := make([]antientropy.KeyedSiblings, len(resp.Records))
	for i, r := range resp.Records {
		records[i] = antientropy.KeyedSiblings{Key: r.Key, Siblings: common.ValuesFromSiblings(r.Siblings)}
	}
	return records, nil
}

func (c *replicaClient) Push(_ context.Context, records []antientropy.KeyedSiblings) error {
	wire := make([]common.Record, len(records))
	for i, r := range records {
		wire[i] = common.Record{Key: r.Key, Siblings: common.SiblingsFromValues(r.Siblings)}
	}
	req := common.NewPushRequest(wire)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (c *replicaClient) Close() error {
	return c.transport.Close()
}
