// Package client implements RPC clients for the replicated key-value store.
// It provides the application-facing KV client and the node-to-node replica
// client used by the quorum coordinator and the maintenance services.
//
// The package focuses on:
//   - Transparent RPC access to the replicated store
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewKVClient: Factory function that creates the client applications use.
//     Every Get returns a causal context (a version vector); passing it to
//     the next Put or Delete makes that write dominate everything the reader
//     observed. Concurrent writes surface as multiple versions the client
//     resolves.
//
//   - NewReplicaClient: Factory function that creates the client one node
//     uses to talk to another. It satisfies the coordinator's replica
//     interface, the hinted handoff target interface and the anti-entropy
//     peer interface.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:5000"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Create a serializer
//	serializer := serializer.NewBinarySerializer()
//
//	// Create the KV client
//	kv, _ := client.NewKVClient(config, tcp.NewTCPClientTransport(), serializer)
//
//	// Use the store
//	vector, _ := kv.Put("mykey", []byte("myvalue"), nil)
//	versions, context, found, _ := kv.Get("mykey")
//
//	// A follow-up write with the read context supersedes what was read
//	kv.Put("mykey", []byte("newvalue"), context)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient due to
//     reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
