package harness

import "github.com/roach88/consent/internal/coordinator"

// Trace event types recorded by the harness itself. Coordinator events keep
// their coordinator.EventType names.
const (
	TraceBindTop         = "bind_top"
	TraceBindSub         = "bind_sub"
	TraceUnbindTop       = "unbind_top"
	TraceUnbindSub       = "unbind_sub"
	TraceFinish          = "finish"
	TracePlatformRequest = "platform_request"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Seq          int64           `json:"seq"`
	Type         string          `json:"type"`
	Key          string          `json:"key,omitempty"`
	StackID      string          `json:"stack_id,omitempty"`
	RequestCode  int             `json:"request_code,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Handler      string          `json:"handler,omitempty"` // callback name, for deliveries
	Context      string          `json:"context,omitempty"` // context name, for binds and platform requests
	Result       map[string]bool `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and all assertions held.
	Pass bool `json:"pass"`

	// Trace contains binds, coordinator events and platform requests in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Calls records every result each named callback received.
	Calls map[string][]map[string]bool `json:"calls"`

	// Registry is the coordinator snapshot after the last step.
	Registry []coordinator.StackInfo `json:"registry"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Calls:    make(map[string][]map[string]bool),
		Registry: []coordinator.StackInfo{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
