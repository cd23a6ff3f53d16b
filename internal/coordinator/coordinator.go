package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/consent/internal/binding"
	"github.com/roach88/consent/internal/capability"
	"github.com/roach88/consent/internal/dispatch"
)

// DefaultMaxRequestCode is the largest request code accepted by default.
// Platforms correlate results with 16-bit request codes.
const DefaultMaxRequestCode = 0xFFFF

// Coordinator is the request registry.
//
// Thread-safety model:
//   - Request*, HandleResult*, IsGranted, Snapshot: safe from any goroutine
//   - BindTop/BindSub: expected from the goroutine that owns the contexts
//
// INVARIANTS:
//   - at most one stack per canonical key
//   - at most one stack in StateExecuted at a time
//   - a stack leaves the registry in the same critical section that decides its
//     result, so no caller sees it both resolved and registered
type Coordinator struct {
	mu       sync.Mutex
	registry *registry

	binder   *binding.Binder
	clock    *Clock
	ids      StackIDGenerator
	observer Observer
	logger   *slog.Logger

	maxRequestCode int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBinder shares an existing binder instead of creating one.
func WithBinder(b *binding.Binder) Option {
	return func(c *Coordinator) {
		c.binder = b
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithObserver sets the event observer. Use Observers to attach several.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithClock sets the logical clock, e.g. NewClockAt to continue a journal.
func WithClock(clock *Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithStackIDs sets the stack id generator. Default: UUIDv7Generator.
func WithStackIDs(g StackIDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithMaxRequestCode sets the upper bound for request codes.
//
// Default: 0xFFFF (DefaultMaxRequestCode).
func WithMaxRequestCode(max int) Option {
	return func(c *Coordinator) {
		c.maxRequestCode = max
	}
}

// New creates a Coordinator. Create one per process at startup and pass it to
// the code that needs it.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:       newRegistry(),
		clock:          NewClock(),
		ids:            UUIDv7Generator{},
		observer:       nopObserver{},
		logger:         slog.Default(),
		maxRequestCode: DefaultMaxRequestCode,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.binder == nil {
		c.binder = binding.NewBinder()
	}
	return c
}

// Binder returns the binder the coordinator issues through.
func (c *Coordinator) Binder() *binding.Binder {
	return c.binder
}

// issuance is a platform call decided under the lock and made after it.
type issuance struct {
	ctx          binding.Context
	stack        *callbackStack
	stackID      string
	key          string
	capabilities []string
}

// Request asks for capabilities on behalf of h.
//
// If a request for the same set is already pending, h joins it and no new platform
// request is made; the stored request code becomes requestCode. Otherwise a new
// stack is registered and, when no other request is outstanding, issued at once.
func (c *Coordinator) Request(h Handler, requestCode int, capabilities ...string) error {
	if h == nil {
		return &Error{Code: ErrCodeInvalidHandlerSignature, Message: "nil handler"}
	}
	if _, ok := c.binder.Active(); !ok {
		return NewNoContextError("request")
	}
	if requestCode < 1 || requestCode > c.maxRequestCode {
		return &Error{
			Code:        ErrCodeInvalidRequestCode,
			Message:     fmt.Sprintf("request code %d outside [1, %d]", requestCode, c.maxRequestCode),
			RequestCode: requestCode,
		}
	}
	set, err := capability.NewSet(capabilities...)
	if err != nil {
		return &Error{Code: ErrCodeInvalidCapability, Message: "invalid capability set", RequestCode: requestCode, Err: err}
	}
	key := set.Key()

	var events []Event
	var next *issuance

	c.mu.Lock()
	if st, ok := c.registry.get(key); ok {
		st.setRequestCode(requestCode)
		st.push(h)
		events = append(events, c.event(EventJoined, st))
		c.mu.Unlock()

		c.logger.Debug("pushed handler to existing stack",
			"key", key,
			"stack", st.id,
			"request_code", requestCode,
			"handlers", events[0].Handlers,
		)
		c.emit(events)
		return nil
	}

	st := newCallbackStack(c.ids.Generate(), requestCode, set, c.clock.Next())
	st.push(h)
	c.registry.put(st)
	events = append(events, Event{
		Seq:          st.seq,
		Type:         EventQueued,
		Key:          key,
		StackID:      st.id,
		RequestCode:  requestCode,
		Capabilities: st.set.Names(),
		Handlers:     1,
	})
	next, events = c.advanceLocked(events)
	c.mu.Unlock()

	c.logger.Debug("added new stack",
		"key", key,
		"stack", st.id,
		"request_code", requestCode,
		"start_now", next != nil && next.stackID == st.id,
	)
	c.emit(events)
	c.issue(next)
	return nil
}

// RequestFunc is Request with a plain function handler.
func (c *Coordinator) RequestFunc(fn func(capability.ResultSet), requestCode int, capabilities ...string) error {
	if fn == nil {
		return &Error{Code: ErrCodeInvalidHandlerSignature, Message: "nil handler func"}
	}
	return c.Request(HandlerFunc(fn), requestCode, capabilities...)
}

// RequestTarget resolves the handler target registered for exactly this capability
// set and requests on its behalf.
func (c *Coordinator) RequestTarget(target dispatch.Target, requestCode int, capabilities ...string) error {
	if _, ok := c.binder.Active(); !ok {
		return NewNoContextError("request target")
	}
	fn, err := dispatch.Resolve(target, capabilities...)
	if err != nil {
		return dispatchError(err, requestCode)
	}
	return c.Request(ErrHandlerFunc(fn), requestCode, capabilities...)
}

func dispatchError(err error, requestCode int) error {
	code := ErrCodeNoMatchingHandler
	switch {
	case errors.Is(err, dispatch.ErrInvalidHandlerSignature):
		code = ErrCodeInvalidHandlerSignature
	case errors.Is(err, capability.ErrEmptySet), errors.Is(err, capability.ErrInvalidName):
		code = ErrCodeInvalidCapability
	}
	return &Error{Code: code, Message: "resolve target handler", RequestCode: requestCode, Err: err}
}

// HandleResult resolves the pending request whose capability set matches names.
//
// Every handler of the matching stack receives the result in push order. Handler
// failures are returned joined after all deliveries; they never skip cleanup or the
// issuance of the next queued request. A result for an unknown key is a no-op.
func (c *Coordinator) HandleResult(names []string, granted []bool) error {
	rs, err := capability.NewResultSet(names, granted)
	if err != nil {
		return c.rejectResult(names, err)
	}
	return c.resolve(rs)
}

// HandleGrantCodes is HandleResult for platforms that report integer grant codes.
func (c *Coordinator) HandleGrantCodes(names []string, codes []int) error {
	rs, err := capability.FromGrantCodes(names, codes)
	if err != nil {
		return c.rejectResult(names, err)
	}
	return c.resolve(rs)
}

func (c *Coordinator) rejectResult(names []string, cause error) error {
	c.logger.Warn("rejected malformed result", "names", names, "error", cause)
	c.emit([]Event{{
		Seq:          c.clock.Next(),
		Type:         EventMalformedResult,
		Capabilities: names,
		Err:          cause,
	}})
	return &Error{Code: ErrCodeMalformedResult, Message: "result rejected", Err: cause}
}

func (c *Coordinator) resolve(rs capability.ResultSet) error {
	key := rs.Key()

	c.mu.Lock()
	st, ok := c.registry.remove(key)
	if !ok {
		ev := Event{Seq: c.clock.Next(), Type: EventUnknownResult, Key: key, Result: &rs}
		remaining := c.registry.len()
		c.mu.Unlock()

		c.logger.Warn("no callback stack for result", "key", key, "stacks", remaining)
		c.emit([]Event{ev})
		return nil
	}
	resolved := c.event(EventResolved, st)
	resolved.Result = &rs
	handlers := st.resolve()
	next, events := c.advanceLocked([]Event{resolved})
	c.mu.Unlock()

	c.emit(events)

	var errs []error
	for i, h := range handlers {
		ev := Event{
			Type:         EventDelivered,
			Key:          key,
			StackID:      st.id,
			RequestCode:  st.requestCode,
			Capabilities: st.set.Names(),
			Handler:      i,
			Result:       &rs,
		}
		if err := invoke(h, rs); err != nil {
			failure := NewHandlerFailure(key, i, err)
			c.logger.Error("handler failed", "key", key, "stack", st.id, "handler", i, "error", err)
			ev.Type = EventDeliveryFailed
			ev.Err = failure
			errs = append(errs, failure)
		}
		ev.Seq = c.clock.Next()
		c.emit([]Event{ev})
	}

	c.logger.Info("result handled",
		"key", key,
		"stack", st.id,
		"handlers", len(handlers),
		"failed", len(errs),
		"result", rs.String(),
	)

	c.issue(next)
	return errors.Join(errs...)
}

// invoke calls h, converting a panic into an error.
func invoke(h Handler, rs capability.ResultSet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.HandleResult(rs)
}

// advanceLocked picks the next stack to issue: the oldest pending stack, but only
// when no stack is outstanding. The pick is marked executed before the lock is
// released so a concurrent caller cannot issue it a second time.
//
// Must be called with c.mu held.
func (c *Coordinator) advanceLocked(events []Event) (*issuance, []Event) {
	if _, busy := c.registry.active(); busy {
		return nil, events
	}
	st, ok := c.registry.firstPending()
	if !ok {
		return nil, events
	}
	ctx, ok := c.binder.Active()
	if !ok {
		c.logger.Warn("no live context, request deferred", "key", st.key, "stack", st.id)
		return nil, append(events, c.event(EventDeferred, st))
	}
	st.execute()
	return &issuance{
		ctx:          ctx,
		stack:        st,
		stackID:      st.id,
		key:          st.key,
		capabilities: st.set.Names(),
	}, append(events, c.event(EventIssued, st))
}

// issue makes the platform call. Never called with c.mu held.
//
// Handlers delivered between the pick and this call may have joined the stack, so
// the request code is read here rather than when the stack was picked.
func (c *Coordinator) issue(next *issuance) {
	if next == nil {
		return
	}
	c.mu.Lock()
	requestCode := next.stack.requestCode
	c.mu.Unlock()

	c.logger.Debug("issuing request",
		"key", next.key,
		"stack", next.stackID,
		"request_code", requestCode,
		"context", next.ctx.Kind(),
	)
	next.ctx.IssueRequest(requestCode, next.capabilities)
}

// Resume issues the oldest pending stack if nothing is outstanding. Requests that
// were deferred because no live context was bound start once a context returns.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	next, events := c.advanceLocked(nil)
	c.mu.Unlock()

	c.emit(events)
	c.issue(next)
}

// IsGranted asks the active context whether capability is currently granted.
func (c *Coordinator) IsGranted(name string) (bool, error) {
	ctx, ok := c.binder.Active()
	if !ok {
		return false, NewNoContextError("is granted")
	}
	n, err := capability.Normalize(name)
	if err != nil {
		return false, &Error{Code: ErrCodeInvalidCapability, Message: "invalid capability", Err: err}
	}
	return ctx.CheckGranted(n), nil
}

// BindTop binds or clears the top-level context. Binding a context resumes any
// request deferred for lack of one.
func (c *Coordinator) BindTop(previous *binding.Handle, next binding.Context) *binding.Handle {
	h := c.binder.BindTop(previous, next)
	if next != nil {
		c.Resume()
	}
	return h
}

// BindSub binds or clears the sub-context. Binding a context resumes any request
// deferred for lack of one.
func (c *Coordinator) BindSub(previous *binding.Handle, next binding.Context) *binding.Handle {
	h := c.binder.BindSub(previous, next)
	if next != nil {
		c.Resume()
	}
	return h
}

// Len returns the number of registered stacks.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.len()
}

// Pending returns the stack registered for the given capabilities, if any.
func (c *Coordinator) Pending(capabilities ...string) (StackInfo, bool) {
	key, err := capability.Key(capabilities...)
	if err != nil {
		return StackInfo{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.registry.get(key)
	if !ok {
		return StackInfo{}, false
	}
	return st.info(), true
}

// Snapshot returns every registered stack in insertion order.
func (c *Coordinator) Snapshot() []StackInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]StackInfo, 0, c.registry.len())
	c.registry.each(func(st *callbackStack) {
		out = append(out, st.info())
	})
	return out
}

// event stamps a stack event. Must be called with c.mu held.
func (c *Coordinator) event(t EventType, st *callbackStack) Event {
	return Event{
		Seq:          c.clock.Next(),
		Type:         t,
		Key:          st.key,
		StackID:      st.id,
		RequestCode:  st.requestCode,
		Capabilities: st.set.Names(),
		Handlers:     len(st.handlers),
	}
}

func (c *Coordinator) emit(events []Event) {
	for _, e := range events {
		c.observer.Observe(e)
	}
}
