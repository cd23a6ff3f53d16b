// Package harness runs YAML conformance scenarios against a real coordinator.
//
// A scenario declares platform contexts and a list of steps (bind, unbind,
// finish, request, result, check). The harness executes them against a fresh
// coordinator backed by an in-memory journal, with a shared logical clock and
// fixed stack ids, and records a trace of:
//   - bind events issued by the scenario
//   - every coordinator event (queued, joined, issued, deferred, resolved, ...)
//   - every platform request a scripted context received
//
// Assertions then check the trace (trace_contains, trace_order, trace_count),
// what each named callback received (callback), and the final registry and
// journal state (final_state). Golden files under testdata/golden pin the full
// trace in canonical JSON.
//
// A scenario:
//
//	name: join_same_key
//	description: Two callers share one platform request
//	contexts:
//	  - name: main
//	    kind: activity
//	steps:
//	  - bind_top: main
//	  - request: {handler: C1, code: 1, capabilities: [CAMERA]}
//	  - request: {handler: C2, code: 2, capabilities: [CAMERA]}
//	  - result: {capabilities: [CAMERA], granted: [true]}
//	assertions:
//	  - type: trace_count
//	    event: platform_request
//	    count: 1
//	  - type: callback
//	    handler: C2
//	    result: {CAMERA: true}
package harness
