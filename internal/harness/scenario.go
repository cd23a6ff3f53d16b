package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario binds scripted contexts, issues requests and results against a fresh
// coordinator, and asserts on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxRequestCode overrides the coordinator's request code bound. 0 keeps the default.
	MaxRequestCode int `yaml:"max_request_code,omitempty"`

	// Contexts declares the platform contexts steps can bind.
	Contexts []ContextDecl `yaml:"contexts"`

	// Steps run in order against one coordinator.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, callback, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// ContextDecl declares one scripted platform context.
type ContextDecl struct {
	// Name is how steps refer to the context.
	Name string `yaml:"name"`

	// Kind is the context kind used for handle matching (e.g. "activity").
	Kind string `yaml:"kind"`

	// Grants lists capabilities CheckGranted reports as granted.
	Grants []string `yaml:"grants,omitempty"`
}

// Step is one scripted action. Exactly one action field must be set.
type Step struct {
	BindTop   string `yaml:"bind_top,omitempty"`
	BindSub   string `yaml:"bind_sub,omitempty"`
	UnbindTop string `yaml:"unbind_top,omitempty"`
	UnbindSub string `yaml:"unbind_sub,omitempty"`

	// Finish marks the named context as no longer live without unbinding it.
	Finish string `yaml:"finish,omitempty"`

	Request *RequestStep `yaml:"request,omitempty"`
	Result  *ResultStep  `yaml:"result,omitempty"`
	Check   *CheckStep   `yaml:"check,omitempty"`

	// ExpectError is the coordinator error code the step must fail with.
	// Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// RequestStep asks for capabilities on behalf of a named callback.
type RequestStep struct {
	Handler      string   `yaml:"handler"`
	Code         int      `yaml:"code"`
	Capabilities []string `yaml:"capabilities"`

	// Fail makes the callback return an error with this message.
	Fail string `yaml:"fail,omitempty"`
}

// ResultStep delivers a platform result. Set Granted or Codes, not both.
type ResultStep struct {
	Capabilities []string `yaml:"capabilities"`
	Granted      []bool   `yaml:"granted,omitempty"`
	Codes        []int    `yaml:"codes,omitempty"`
}

// CheckStep queries the current grant state.
type CheckStep struct {
	Capability string `yaml:"capability"`
	Expect     bool   `yaml:"expect"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching the selectors appears in the trace
	// - "trace_order": events appear in the given order
	// - "trace_count": events matching the selectors appear exactly Count times
	// - "callback": the named handler received exactly one result, equal to Result
	// - "final_state": registry size and journaled stack state after the run
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Capabilities selects events by capability set, in any order.
	Capabilities []string `yaml:"capabilities,omitempty"`

	// Handler selects callback deliveries by handler name.
	Handler string `yaml:"handler,omitempty"`

	// Context selects platform requests and bind events by context name.
	Context string `yaml:"context,omitempty"`

	// RequestCode selects events by request code. 0 matches any.
	RequestCode int `yaml:"request_code,omitempty"`

	// Result is the expected outcome map (trace_contains, callback).
	Result map[string]bool `yaml:"result,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order (trace_order). Each entry is "type" or
	// "type:selector", where selector is a key, handler or context name.
	Events []string `yaml:"events,omitempty"`

	// Pending is the expected number of registered stacks (final_state).
	Pending *int `yaml:"pending,omitempty"`

	// State is the expected journaled state of the latest stack for
	// Capabilities (final_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCallback      = "callback"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxRequestCode < 0 {
		return fmt.Errorf("max_request_code must be non-negative")
	}

	contexts := make(map[string]bool, len(s.Contexts))
	for i, c := range s.Contexts {
		if c.Name == "" {
			return fmt.Errorf("contexts[%d]: name is required", i)
		}
		if c.Kind == "" {
			return fmt.Errorf("contexts[%d]: kind is required", i)
		}
		if contexts[c.Name] {
			return fmt.Errorf("contexts[%d]: duplicate context %q", i, c.Name)
		}
		contexts[c.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, contexts); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set and its references resolve.
func validateStep(index int, step *Step, contexts map[string]bool) error {
	var actions int
	for _, name := range []string{step.BindTop, step.BindSub, step.UnbindTop, step.UnbindSub, step.Finish} {
		if name == "" {
			continue
		}
		actions++
		if !contexts[name] {
			return fmt.Errorf("steps[%d]: unknown context %q", index, name)
		}
	}
	if step.Request != nil {
		actions++
		if step.Request.Handler == "" {
			return fmt.Errorf("steps[%d].request: handler is required", index)
		}
	}
	if step.Result != nil {
		actions++
		hasGranted, hasCodes := step.Result.Granted != nil, step.Result.Codes != nil
		if hasGranted == hasCodes {
			return fmt.Errorf("steps[%d].result: exactly one of granted or codes is required", index)
		}
	}
	if step.Check != nil {
		actions++
		if step.Check.Capability == "" {
			return fmt.Errorf("steps[%d].check: capability is required", index)
		}
	}

	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertCallback:
		if a.Handler == "" {
			return fmt.Errorf("assertions[%d]: handler is required for callback", index)
		}
		if a.Result == nil {
			return fmt.Errorf("assertions[%d]: result is required for callback", index)
		}
	case AssertFinalState:
		if a.Pending == nil && a.State == "" {
			return fmt.Errorf("assertions[%d]: pending or state is required for final_state", index)
		}
		if a.State != "" && len(a.Capabilities) == 0 {
			return fmt.Errorf("assertions[%d]: capabilities are required with state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
