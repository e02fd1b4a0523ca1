// Package handoff implements hinted handoff for sloppy quorum writes.
//
// When a write cannot reach one of a key's home replicas, the coordinator
// parks the versioned value as a hint instead of failing the write. Each
// unreachable target gets its own FIFO queue and drain goroutine: the
// drainer probes the target, waits out downtime with bounded exponential
// backoff and replays the hints in order once the target answers again.
// Replay uses the same idempotent merge as read repair, so a hint that
// raced a newer write is simply ignored by the target.
//
// Hints are not kept forever. A hint older than the retention window is
// dropped and counted as expired; anti-entropy is then the mechanism that
// eventually converges the target.
package handoff
