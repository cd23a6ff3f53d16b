// Package coordinator serializes capability requests against a platform that
// accepts only one outstanding request at a time.
//
// Callers ask for a capability set with a handler. Requests for the same set
// (order and duplicates ignored) are coalesced into one callback stack, so the
// platform is asked once and every waiting handler gets the same result.
//
// ARCHITECTURE:
//
// Registry:
// Stacks are keyed by the canonical capability key (see capability.Set.Key) and
// kept in insertion order. At most one stack is executed (issued, awaiting a
// result) at any time.
//
// Request Flow:
// 1. Request validates the context, request code and capability set
// 2. Under the lock: join the existing stack, or register a new one
// 3. If nothing is outstanding, the oldest pending stack is marked executed
// 4. After the lock: observer events, then the platform IssueRequest call
//
// Result Flow:
// 1. HandleResult builds a ResultSet and derives its key
// 2. Under the lock: remove the stack, choose the next stack to issue
// 3. After the lock: deliver to every handler in push order, then issue
//
// Handlers and platform calls never run with the lock held, so a handler may
// call Request again without deadlocking.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every event is stamped with a monotonic seq from Clock.Next(). Stack ids come
// from a StackIDGenerator (UUIDv7 in production, FixedGenerator in tests).
//
// Deferred Issuance:
// If no live context is bound when a stack becomes due, it stays pending and a
// deferred event is emitted. Binding a context (BindTop/BindSub) resumes it.
package coordinator
