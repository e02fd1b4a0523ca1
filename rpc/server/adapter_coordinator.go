package server

import (
	"context"
	"fmt"
	"time"

	"github.com/qkv-io/qKV/lib/quorum"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
	"github.com/qkv-io/qKV/rpc/common"
)

// NewCoordinatorServerAdapter creates the adapter for client-facing
// key-value operations. Each request is fanned out to a replica quorum by
// the coordinator; the adapter only translates between wire messages and
// coordinator calls.
func NewCoordinatorServerAdapter(coordinator *quorum.Coordinator, timeout time.Duration) IRPCServerAdapter {
	return &coordinatorServerAdapterImpl{coordinator: coordinator, timeout: timeout}
}

type coordinatorServerAdapterImpl struct {
	coordinator *quorum.Coordinator
	timeout     time.Duration
}

func (adapter *coordinatorServerAdapterImpl) Handles(msgType common.MessageType) bool {
	switch msgType {
	case common.MsgTKVPut, common.MsgTKVGet, common.MsgTKVDelete:
		return true
	default:
		return false
	}
}

func (adapter *coordinatorServerAdapterImpl) Handle(req *common.Message) *common.Message {
	// Check for nil coordinator
	if adapter.coordinator == nil {
		return common.NewErrorResponse("handler: coordinator is nil")
	}

	ctx := context.Background()
	if adapter.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, adapter.timeout)
		defer cancel()
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTKVPut:
		vector, err := adapter.coordinator.Write(ctx, req.Key, req.Value, vclock.Clock(req.Vector))
		return common.NewPutResponse(vector, err)

	case common.MsgTKVGet:
		result, err := adapter.coordinator.Read(ctx, req.Key)
		if err != nil {
			return common.NewGetResponse(nil, nil, false, err)
		}
		return common.NewGetResponse(
			common.SiblingsFromValues(liveSiblings(result)),
			result.Context,
			result.Found,
			nil,
		)

	case common.MsgTKVDelete:
		vector, err := adapter.coordinator.Delete(ctx, req.Key, vclock.Clock(req.Vector))
		return common.NewDeleteResponse(vector, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC CoordinatorAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// liveSiblings strips tombstones from the winning set. Clients only see
// live versions, the deletion context still travels in the merged vector.
func liveSiblings(result quorum.ReadResult) []store.VersionedValue {
	if !result.Found {
		return nil
	}
	live := make([]store.VersionedValue, 0, len(result.Siblings))
	for _, s := range result.Siblings {
		if !s.Tombstone {
			live = append(live, s)
		}
	}
	return live
}
