package antientropy

import (
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/util"
)

// DefaultBuckets is the digest resolution used when none is configured.
// More buckets mean finer diffs at the cost of larger digest exchanges.
const DefaultBuckets = 1024

// KeyedSiblings is one key's full sibling set, the transfer unit of a
// sync round.
type KeyedSiblings struct {
	Key      string
	Siblings []store.VersionedValue
}

// ComputeDigest hashes the whole store into buckets buckets. All nodes
// must use the same bucket count, and hashing uses seed zero so digests
// are comparable across processes.
func ComputeDigest(s store.IReplicaStore, buckets int) ([]uint64, error) {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	digest := make([]uint64, buckets)
	err := s.ForEach(func(key string, siblings []store.VersionedValue) bool {
		digest[bucketOf(key, buckets)] ^= recordHash(key, siblings)
		return true
	})
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// BucketRecords collects all records whose keys fall into one of the given
// buckets.
func BucketRecords(s store.IReplicaStore, buckets int, want []uint64) ([]KeyedSiblings, error) {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	wanted := make(map[uint64]struct{}, len(want))
	for _, b := range want {
		wanted[b] = struct{}{}
	}

	var records []KeyedSiblings
	err := s.ForEach(func(key string, siblings []store.VersionedValue) bool {
		if _, ok := wanted[bucketOf(key, buckets)]; ok {
			records = append(records, KeyedSiblings{Key: key, Siblings: siblings})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DiffDigests returns the bucket indices at which the two digests differ.
// Mismatched lengths mean a bucket-count misconfiguration; every bucket is
// then treated as differing.
func DiffDigests(local, remote []uint64) []uint64 {
	if len(local) != len(remote) {
		all := make([]uint64, len(local))
		for i := range all {
			all[i] = uint64(i)
		}
		return all
	}
	var diff []uint64
	for i := range local {
		if local[i] != remote[i] {
			diff = append(diff, uint64(i))
		}
	}
	return diff
}

func bucketOf(key string, buckets int) uint64 {
	return util.HashString(key, 0) % uint64(buckets)
}

// recordHash folds a key's sibling set into a single value. Siblings are
// combined with XOR so their iteration order never matters; the key hash
// itself is mixed in so an empty sibling set still contributes.
func recordHash(key string, siblings []store.VersionedValue) uint64 {
	keyHash := util.HashString(key, 0)
	acc := keyHash
	for _, sib := range siblings {
		acc ^= siblingHash(keyHash, sib)
	}
	return acc
}

func siblingHash(keyHash uint64, sib store.VersionedValue) uint64 {
	h := keyHash
	h ^= util.HashString(sib.Clock.String(), 0)
	if sib.Tombstone {
		h ^= 0x9E3779B97F4A7C15 // arbitrary odd constant, flips deleted vs live
	}
	h ^= util.HashString(string(sib.Value), 1)
	return h
}
