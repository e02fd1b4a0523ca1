// Package antientropy implements the background convergence protocol that
// catches whatever read repair and hinted handoff missed.
//
// Every node periodically compares its dataset with one random peer using
// bucket digests: the key space is hashed into a fixed number of buckets
// and each bucket holds the XOR of its records' content hashes, so record
// order never affects the digest and single-record changes flip it. Only
// buckets whose digests differ are exchanged, in both directions, and the
// records are folded in with the same idempotent version-vector merge used
// everywhere else. Two identical stores therefore exchange nothing beyond
// the digest arrays.
package antientropy
