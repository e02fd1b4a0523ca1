// Package store defines the storage contract for a single qKV replica:
// versioned key-value state with sibling retention and unified error
// handling. It is the layer the quorum coordinator, read repair and
// anti-entropy all write through, which is why every mutation is expressed
// as a dominance-gated apply of a (value, version-vector) pair rather than
// a blind overwrite.
//
// The package focuses on:
//   - A unified interface (IReplicaStore) for versioned storage across
//     different engine implementations
//   - Sibling semantics: concurrent versions of a key are retained side by
//     side until a later write's vector dominates them all
//   - Idempotent, commutative merge application so repair traffic can be
//     replayed in any order without losing updates
//
// Key Components:
//
//   - VersionedValue: one version of a key (value bytes, version vector,
//     tombstone flag). Deletions are tombstone writes so they replicate and
//     converge exactly like ordinary values.
//
//   - ApplyResult: the outcome of a dominance-gated write (Applied,
//     AppliedSibling, StaleIgnored). A stale write is an expected,
//     non-fatal outcome - the caller's version was simply already covered.
//
//   - Error System: structured error reporting using typed error codes and
//     descriptive messages, so callers can distinguish internal failures
//     from invalid operations or corrupt snapshot data.
//
//   - StoreFactory: a function type that abstracts creation of store
//     instances, providing dependency injection for the server assembly.
//
// Implementations:
//
//	The in-memory engine (mstore) is the production implementation:
//	sharded concurrent maps with per-key atomic updates, binary snapshot
//	persistence, and background tombstone garbage collection. Available in
//	the "github.com/qkv-io/qKV/lib/store/mstore" package.
package store
