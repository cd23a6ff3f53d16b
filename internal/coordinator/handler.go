package coordinator

import "github.com/roach88/consent/internal/capability"

// Handler receives the outcome of a capability request exactly once.
//
// A returned error (or a panic) is reported as HANDLER_INVOCATION_FAILURE; it never
// stops delivery to the other handlers waiting on the same key.
type Handler interface {
	HandleResult(capability.ResultSet) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(capability.ResultSet)

// HandleResult calls f.
func (f HandlerFunc) HandleResult(rs capability.ResultSet) error {
	f(rs)
	return nil
}

// ErrHandlerFunc adapts a function that may fail to Handler.
type ErrHandlerFunc func(capability.ResultSet) error

// HandleResult calls f.
func (f ErrHandlerFunc) HandleResult(rs capability.ResultSet) error {
	return f(rs)
}
