// Package repair provides conflict reconciliation for quorum reads and the
// asynchronous read-repair mechanism that converges stale replicas.
//
// Reconcile computes the maximal set of non-dominated versions (the
// winners) from the sibling sets a quorum of replicas returned, and marks
// every replica whose local state does not cover that set as stale. The
// quorum coordinator returns the winners to the client and hands the stale
// replicas to a ReadRepairer, which pushes the winners to them in the
// background without blocking the read path.
package repair
