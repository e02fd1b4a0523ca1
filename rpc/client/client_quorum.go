package client

import (
	"encoding/json"
	"fmt"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
	"github.com/qkv-io/qKV/rpc/transport"
)

// Version is one live version of a key as seen by a client. Multiple
// versions are returned when concurrent writes left unresolved siblings;
// the client resolves them and writes back with the returned context.
type Version struct {
	Value  []byte
	Vector vclock.Clock
}

// IKVClient is the client-facing API of the replicated store. Every read
// returns a causal context; passing it to the next write makes that write
// dominate everything the reader observed.
type IKVClient interface {
	// Put writes a value. context may be nil for a blind write or the
	// vector from a preceding Get. Returns the version vector of the
	// accepted write.
	Put(key string, value []byte, context vclock.Clock) (vclock.Clock, error)

	// Get reads a key through a read quorum. Returns all live versions,
	// the merged causal context and whether the key exists.
	Get(key string) (versions []Version, context vclock.Clock, found bool, err error)

	// Delete writes a tombstone. Like Put it takes the causal context of
	// a preceding Get.
	Delete(key string, context vclock.Clock) (vclock.Clock, error)

	// Info returns metadata about the contacted node's local store.
	Info() (store.StoreInfo, error)

	// Close closes the underlying transport
	Close() error
}

// NewKVClient creates a new client for the replicated key-value store
// The function takes a config, a transport and a serializer as parameters
// It returns an IKVClient and an error
func NewKVClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IKVClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new KV client
	c := kvClient{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the KV client
	return &c, nil
}

type kvClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IKVClient)
// --------------------------------------------------------------------------

func (c *kvClient) Put(key string, value []byte, context vclock.Clock) (vclock.Clock, error) {
	req := common.NewPutRequest(key, value, context)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return vclock.Clock(resp.Vector), nil
}

func (c *kvClient) Get(key string) ([]Version, vclock.Clock, bool, error) {
	req := common.NewGetRequest(key)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, nil, false, err
	}

	versions := make([]Version, len(resp.Siblings))
	for i, s := range resp.Siblings {
		versions[i] = Version{Value: s.Value, Vector: vclock.Clock(s.Vector)}
	}
	return versions, vclock.Clock(resp.Vector), resp.Ok, nil
}

func (c *kvClient) Delete(key string, context vclock.Clock) (vclock.Clock, error) {
	req := common.NewDeleteRequest(key, context)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return vclock.Clock(resp.Vector), nil
}

func (c *kvClient) Info() (store.StoreInfo, error) {
	req := common.NewInfoRequest()
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return store.StoreInfo{}, err
	}

	var info store.StoreInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return store.StoreInfo{}, fmt.Errorf("failed to decode store info: %v", err)
	}
	return info, nil
}

func (c *kvClient) Close() error {
	return c.transport.Close()
}
