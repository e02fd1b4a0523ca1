// Package util provides shared low-level helpers for the qKV storage and
// replication layers: seeded FNV-1a string hashing (used for store sharding
// and anti-entropy bucket digests), a lock-free multi-producer
// single-consumer queue (used for hinted-handoff delivery and store event
// streams), and a keyed min-heap for deadline scheduling (used for
// tombstone garbage collection).
package util
