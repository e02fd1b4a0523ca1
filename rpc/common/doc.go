// Package common provides core data structures and utilities shared across
// the replicated key-value store system. It defines fundamental types,
// configuration structures, and protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for inter-node and client communication
//   - Configuration structures for client and server components
//   - Custom logging implementation with consistent formatting
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication between components,
//     with a flexible structure that adapts to different operation types.
//     Includes factory methods for creating various request and response messages.
//
//   - MessageType: Enumeration defining all supported operation types in the
//     system, categorized into coordinated key-value operations, replica-level
//     operations, anti-entropy transfers, and control messages.
//
//   - Sibling, Record: Wire forms of versioned values and full sibling sets,
//     with conversion helpers to and from the store types.
//
//   - ServerConfig: Comprehensive configuration for server nodes, including
//     quorum parameters, cluster membership, maintenance intervals, network
//     configuration, and snapshot settings.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation providing consistent formatting
//     across the application.
package common
