// Package ring implements a consistent hashing ring with virtual nodes.
//
// The ring maps keys to physical nodes while minimizing key movement when
// membership changes. Each physical node is projected onto the ring as a
// configurable number of virtual nodes to even out the key distribution.
//
// The main consumer is the quorum coordinator, which asks the ring for a
// key's preference list: the first n distinct nodes walking clockwise from
// the key's position. All nodes must build identical rings, so hashing uses
// a fixed seed of zero.
package ring
