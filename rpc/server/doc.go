// Package server implements the RPC server node of the replicated key-value
// store. It assembles the local replica store, the consistent-hash ring, the
// quorum coordinator, hinted handoff and anti-entropy into one process and
// exposes them over a pluggable transport.
//
// The package focuses on:
//   - Server-side RPC request handling for client and replica operations
//   - Adapter pattern to decouple replication logic from RPC mechanisms
//   - Node assembly: store, ring, coordinator and maintenance services
//   - Periodic snapshots of the local store
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server
//     adapters, with the Handle method that processes incoming requests.
//
//   - NewCoordinatorServerAdapter: Factory function creating the adapter for
//     client-facing operations (Put, Get, Delete). Requests are fanned out
//     to a replica quorum by the coordinator.
//
//   - NewReplicaServerAdapter: Factory function creating the adapter for
//     node-to-node traffic: versioned replica writes and reads, merges from
//     read repair and hinted handoff, anti-entropy transfers and pings.
//
//   - NewRPCServer: Factory function creating a configured node with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  NodeID: "node-1",
//	  ClusterMembers: map[string]string{
//	    "node-1": "0.0.0.0:8080",
//	    "node-2": "10.0.0.2:8080",
//	    "node-3": "10.0.0.3:8080",
//	  },
//	  ReplicationFactor: 3,
//	  WriteQuorum:       2,
//	  ReadQuorum:        2,
//	  TimeoutSecond:     5,
//	  LogLevel:          "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	  tcp.NewTCPClientTransport,
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Every node is symmetric: it coordinates client requests for any key and
// stores replica data for the key ranges the ring assigns it. Peer
// connections are dialed lazily, so a cluster can be started in any order.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	The Serve method is not thread-safe and should be called only once.
package server
