package coordinator

import "github.com/roach88/consent/internal/capability"

// State is the lifecycle position of a callback stack.
type State int

const (
	// StatePending: created, platform request not yet issued.
	StatePending State = iota
	// StateExecuted: platform request issued, result outstanding.
	StateExecuted
	// StateResolved: result delivered, stack removed from the registry.
	StateResolved
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuted:
		return "executed"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// callbackStack holds every handler waiting on one capability key.
//
// All fields are guarded by the owning Coordinator's mutex. Once a stack is
// removed from the registry nothing can reach it to push, so push after resolve
// cannot happen by construction.
type callbackStack struct {
	id          string
	key         string
	set         capability.Set
	requestCode int
	handlers    []Handler
	state       State
	seq         int64
}

func newCallbackStack(id string, requestCode int, set capability.Set, seq int64) *callbackStack {
	return &callbackStack{
		id:          id,
		key:         set.Key(),
		set:         set,
		requestCode: requestCode,
		seq:         seq,
	}
}

// push appends a handler. Valid while pending or executed.
func (s *callbackStack) push(h Handler) {
	s.handlers = append(s.handlers, h)
}

// setRequestCode records the latest caller's request code. An executed stack
// whose platform call has not been made yet is issued with this value.
func (s *callbackStack) setRequestCode(code int) {
	s.requestCode = code
}

// execute moves pending to executed. It returns false if the stack was not pending.
func (s *callbackStack) execute() bool {
	if s.state != StatePending {
		return false
	}
	s.state = StateExecuted
	return true
}

// resolve marks the stack delivered and returns its handlers in push order.
func (s *callbackStack) resolve() []Handler {
	s.state = StateResolved
	handlers := s.handlers
	s.handlers = nil
	return handlers
}

func (s *callbackStack) executed() bool {
	return s.state == StateExecuted
}

func (s *callbackStack) info() StackInfo {
	return StackInfo{
		ID:           s.id,
		Key:          s.key,
		Capabilities: s.set.Names(),
		RequestCode:  s.requestCode,
		Handlers:     len(s.handlers),
		State:        s.state,
		Seq:          s.seq,
	}
}

// StackInfo is a read-only view of one registered stack.
type StackInfo struct {
	ID           string   `json:"id"`
	Key          string   `json:"key"`
	Capabilities []string `json:"capabilities"`
	RequestCode  int      `json:"request_code"`
	Handlers     int      `json:"handlers"`
	State        State    `json:"state"`
	Seq          int64    `json:"seq"`
}

// Executed reports whether the platform request has been issued.
func (i StackInfo) Executed() bool {
	return i.State == StateExecuted
}
