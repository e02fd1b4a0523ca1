// Package rpc provides a comprehensive framework for remote procedure calls
// in the replicated key-value store. It acts as the communication layer
// between clients and nodes and between the nodes themselves.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementations: the application-facing KV client
//     and the replica client nodes use to talk to each other.
//
//   - server: The server node assembly that handles incoming requests,
//     including adapters for coordinated client operations and replica-level
//     operations.
package rpc
