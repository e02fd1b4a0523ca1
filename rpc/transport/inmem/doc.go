// Package inmem implements an in-process transport for the replicated
// key-value store's RPC system. Requests are dispatched as direct function
// calls over a shared Network fabric, with no sockets involved.
//
// The transport exists for multi-node tests: several server nodes can run
// inside one process, and individual endpoints can be partitioned and
// healed to exercise quorum fallbacks, hinted handoff and anti-entropy
// without real network infrastructure.
//
// Key Components:
//
//   - Network: The shared fabric. Server transports register their endpoint
//     on Listen, client transports dispatch by endpoint name. Partition and
//     Heal control reachability per endpoint.
//
//   - NewServerTransport/NewClientTransport: Factory functions creating
//     transports attached to a fabric.
package inmem
