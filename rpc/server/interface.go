package server

import (
	"github.com/qkv-io/qKV/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// If an error occurs, it should be set in the response
	Handle(req *common.Message) (resp *common.Message)

	// Handles reports whether the adapter is responsible for the
	// given message type
	Handles(msgType common.MessageType) bool
}
