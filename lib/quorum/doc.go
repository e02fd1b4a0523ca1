// Package quorum implements the coordinator for leaderless replicated
// reads and writes.
//
// Every node can coordinate any request. A write merges the client's
// causal context, increments the coordinator's own component and fans the
// resulting version out to all n replicas in a key's preference list; it
// succeeds once w replicas acknowledge. A read queries the preference list,
// waits for r responses, reconciles them into the maximal winner set and
// triggers background read repair for replicas that returned stale state.
//
// With sloppy quorums enabled, writes that fail on a home replica are
// parked as hints for later handoff instead of being lost, trading
// durability placement for availability.
//
// The classic safety condition w+r > n is enforced at configuration time,
// guaranteeing that read and write quorums always intersect.
package quorum
