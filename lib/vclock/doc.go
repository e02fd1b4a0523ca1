// Package vclock implements version vectors for tracking causality between
// writes on different replicas.
//
// Every replica keeps a counter per node ID; a write bumps the coordinating
// node's counter. Comparing two vectors yields a partial order: one vector
// may have happened Before or After the other, they may be Equal, or they
// may be Concurrent (neither dominates), in which case the system keeps both
// values as siblings instead of coercing them into a false ordering.
//
// Merge takes the component-wise maximum and is commutative, associative and
// idempotent, which makes reconciliation between replicas order-independent.
package vclock
