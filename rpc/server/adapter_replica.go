package server

import (
	"encoding/json"
	"fmt"

	"github.com/qkv-io/qKV/lib/antientropy"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/rpc/common"
)

// NewReplicaServerAdapter creates the adapter for replica-to-replica
// traffic: versioned writes, raw sibling reads, merges from read repair and
// hinted handoff, anti-entropy transfers, and liveness probes. All
// operations go directly against the local store, no coordination happens
// here.
func NewReplicaServerAdapter(s store.IReplicaStore, buckets int) IRPCServerAdapter {
	if buckets <= 0 {
		buckets = antientropy.DefaultBuckets
	}
	return &replicaServerAdapterImpl{store: s, buckets: buckets}
}

type replicaServerAdapterImpl struct {
	store   store.IReplicaStore
	buckets int
}

func (adapter *replicaServerAdapterImpl) Handles(msgType common.MessageType) bool {
	switch msgType {
	case common.MsgTRepPut, common.MsgTRepGet, common.MsgTRepMerge,
		common.MsgTAEDigest, common.MsgTAEPull, common.MsgTAEPush,
		common.MsgTPing, common.MsgTKVInfo:
		return true
	default:
		return false
	}
}

func (adapter *replicaServerAdapterImpl) Handle(req *common.Message) *common.Message {
	// Check for nil store
	if adapter.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTRepPut:
		if len(req.Siblings) != 1 {
			return common.NewErrorResponse("replica put requires exactly one sibling")
		}
		result, err := adapter.store.Put(req.Key, req.Siblings[0].ToValue())
		return common.NewReplicaPutResponse(result, err)

	case common.MsgTRepGet:
		siblings, _, loaded, err := adapter.store.Get(req.Key)
		return common.NewReplicaGetResponse(common.SiblingsFromValues(siblings), loaded, err)

	case common.MsgTRepMerge:
		err := adapter.store.PutMerged(req.Key, common.ValuesFromSiblings(req.Siblings))
		return common.NewReplicaMergeResponse(err)

	case common.MsgTAEDigest:
		digest, err := antientropy.ComputeDigest(adapter.store, adapter.bucketCount(req))
		return common.NewDigestResponse(digest, err)

	case common.MsgTAEPull:
		records, err := antientropy.BucketRecords(adapter.store, adapter.bucketCount(req), req.BucketIDs)
		return common.NewPullResponse(recordsToWire(records), err)

	case common.MsgTAEPush:
		var err error
		for _, record := range req.Records {
			if err = adapter.store.PutMerged(record.Key, common.ValuesFromSiblings(record.Siblings)); err != nil {
				break
			}
		}
		return common.NewPushResponse(err)

	case common.MsgTPing:
		return common.NewPingResponse(nil)

	case common.MsgTKVInfo:
		info, err := adapter.store.GetStoreInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ReplicaAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// bucketCount resolves the digest resolution for a request. The peer's
// bucket count wins when set so both sides compare the same digest.
func (adapter *replicaServerAdapterImpl) bucketCount(req *common.Message) int {
	if req.Buckets > 0 {
		return int(req.Buckets)
	}
	return adapter.buckets
}

func recordsToWire(records []antientropy.KeyedSiblings) []common.Record {
	if records == nil {
		return nil
	}
	wire := make([]common.Record, len(records))
	for i, r := range records {
		wire[i] = common.Record{Key: r.Key, Siblings: common.SiblingsFromValues(r.Siblings)}
	}
	return wire
}
