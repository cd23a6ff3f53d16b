// Package journal provides SQLite-backed durable storage for coordinator events.
//
// The journal is an append-only log with:
//   - Events: every coordinator.Event, keyed by its seq
//   - Stacks: one row per callback stack, updated as it moves
//     pending → executed → resolved
//
// It is a diagnostic record, not recovery state: a restarted process starts
// with an empty registry whatever the journal holds.
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Writes are idempotent on seq: ON CONFLICT DO NOTHING
//
// Deterministic Query Results:
//   - All queries include ORDER BY seq ASC
//
// Canonical Payloads:
//   - capabilities and result columns hold canonical JSON from
//     capability.MarshalCanonical, so identical runs produce identical bytes
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
