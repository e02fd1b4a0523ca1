// Package testing provides a reusable conformance suite and benchmarks for
// implementations of the store.IReplicaStore interface.
//
// An engine registers itself by calling RunReplicaStoreTests with a factory
// that creates a fresh, empty store per sub-test. The suite exercises the
// version-vector merge rules (dominance, staleness, concurrent siblings),
// tombstone behavior and snapshot round-trips, so every engine is held to
// the same semantics.
package testing
