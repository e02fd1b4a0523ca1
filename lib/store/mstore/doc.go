// Package mstore provides an in-memory implementation of the
// store.IReplicaStore interface.
//
// # Architecture
//
// The store is sharded: keys are distributed over a fixed number of shards
// by hash, and each shard owns a concurrent map, a tombstone deadline heap
// and an event queue. All per-key updates run inside the map's atomic
// compute, which gives writers exclusive access to a key's sibling set
// without a global lock.
//
// # Conflict Handling
//
// Incoming writes carry a full version vector. The store compares the
// incoming vector against every stored sibling and keeps exactly the
// maximal set: dominated siblings are dropped, dominating or equal stored
// versions cause the write to be ignored, and concurrent versions are
// retained side by side until a later write or a read repair resolves
// them.
//
// # Tombstones
//
// Deletes are stored as tombstone siblings so that the deletion can still
// win version-vector comparisons against concurrent writes. A per-shard
// garbage collector reaps keys whose siblings are all tombstones once the
// retention window has lapsed.
//
// # Persistence
//
// The store is volatile but supports snapshotting: Save writes a versioned
// binary snapshot of all sibling sets to an io.Writer, Load restores one.
package mstore
