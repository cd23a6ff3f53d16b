package harness

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/consent/internal/capability"
	"github.com/roach88/consent/internal/journal"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}

	return buf.String()
}

// describeEvent renders an event on one line for failure output.
func describeEvent(e TraceEvent) string {
	parts := []string{e.Type}
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	if e.Handler != "" {
		parts = append(parts, "handler="+e.Handler)
	}
	if e.Context != "" {
		parts = append(parts, "context="+e.Context)
	}
	if e.RequestCode != 0 {
		parts = append(parts, fmt.Sprintf("code=%d", e.RequestCode))
	}
	if e.Result != nil {
		parts = append(parts, fmt.Sprintf("result=%v", e.Result))
	}
	return strings.Join(parts, " ")
}

// AssertionContext provides the resources assertions may query.
type AssertionContext struct {
	Journal *journal.Journal
	Ctx     context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertCallback:
			err = assertCallback(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// matchEvent reports whether e satisfies every selector set on a.
func matchEvent(e TraceEvent, a Assertion) bool {
	if a.Event != "" && e.Type != a.Event {
		return false
	}
	if len(a.Capabilities) > 0 {
		key, err := capability.Key(a.Capabilities...)
		if err != nil || (e.Key != key && capabilitiesKey(e.Capabilities) != key) {
			return false
		}
	}
	if a.Handler != "" && e.Handler != a.Handler {
		return false
	}
	if a.Context != "" && e.Context != a.Context {
		return false
	}
	if a.RequestCode != 0 && e.RequestCode != a.RequestCode {
		return false
	}
	if a.Result != nil && !maps.Equal(e.Result, a.Result) {
		return false
	}
	return true
}

// capabilitiesKey keys events such as platform requests that carry names only.
func capabilitiesKey(names []string) string {
	if len(names) == 0 {
		return ""
	}
	key, err := capability.Key(names...)
	if err != nil {
		return ""
	}
	return key
}

func describeSelectors(a Assertion) string {
	parts := []string{a.Event}
	if len(a.Capabilities) > 0 {
		parts = append(parts, fmt.Sprintf("capabilities=%v", a.Capabilities))
	}
	if a.Handler != "" {
		parts = append(parts, "handler="+a.Handler)
	}
	if a.Context != "" {
		parts = append(parts, "context="+a.Context)
	}
	if a.RequestCode != 0 {
		parts = append(parts, fmt.Sprintf("code=%d", a.RequestCode))
	}
	if a.Result != nil {
		parts = append(parts, fmt.Sprintf("result=%v", a.Result))
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some event matches every selector.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchEvent(event, a) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeSelectors(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// matchToken matches "type" or "type:selector" against an event.
func matchToken(e TraceEvent, token string) bool {
	typ, selector, hasSelector := strings.Cut(token, ":")
	if e.Type != typ {
		return false
	}
	if !hasSelector {
		return true
	}
	return selector == e.Key || selector == e.Handler || selector == e.Context
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed); each
// token matches the first occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, token := range a.Events {
		found := false
		for pos < len(trace) {
			e := trace[pos]
			pos++
			if matchToken(e, token) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s not found after the previous event", token),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match every selector.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeSelectors(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCallback checks that the handler was called exactly once with Result.
func assertCallback(result *Result, a Assertion) error {
	calls := result.Calls[a.Handler]
	if len(calls) != 1 {
		return &AssertionError{
			Type:     AssertCallback,
			Expected: fmt.Sprintf("%s called exactly once", a.Handler),
			Actual:   fmt.Sprintf("%d calls", len(calls)),
			Trace:    result.Trace,
		}
	}
	if !maps.Equal(calls[0], a.Result) {
		return &AssertionError{
			Type:     AssertCallback,
			Expected: fmt.Sprintf("%s received %v", a.Handler, a.Result),
			Actual:   fmt.Sprintf("received %v", calls[0]),
		}
	}
	return nil
}

// assertFinalState checks the registry size and the journaled state of the most
// recent stack for a capability set.
func assertFinalState(result *Result, a Assertion, actx *AssertionContext) error {
	if a.Pending != nil && len(result.Registry) != *a.Pending {
		keys := make([]string, len(result.Registry))
		for i, info := range result.Registry {
			keys[i] = info.Key
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d registered stacks", *a.Pending),
			Actual:   fmt.Sprintf("%d registered: %v", len(result.Registry), keys),
		}
	}

	if a.State == "" {
		return nil
	}
	if actx == nil || actx.Journal == nil {
		return fmt.Errorf("final_state with state requires a journal")
	}

	key, err := capability.Key(a.Capabilities...)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	stacks, err := actx.Journal.Stacks(actx.Ctx)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	var latest *journal.Stack
	for i := range stacks {
		if stacks[i].Key == key {
			latest = &stacks[i]
		}
	}
	if latest == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("journaled stack for %s in state %s", key, a.State),
			Actual:   "no stack journaled",
		}
	}
	if latest.State != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("stack %s for %s in state %s", latest.ID, key, a.State),
			Actual:   fmt.Sprintf("state %s", latest.State),
		}
	}
	return nil
}
