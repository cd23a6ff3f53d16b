// Package binding tracks the execution contexts a coordinator issues requests through.
//
// An application has at most one top-level context (an activity, a window, a
// session) and at most one sub-context (a fragment, a pane) bound at a time. The
// sub-context wins when it is live; otherwise the top context is used.
//
// Handles carry the context's kind and an epoch assigned at bind time. Clearing a
// binding requires the caller to present the handle it was given: both kind and
// epoch must match the current binding. A torn-down context can therefore never
// clear the replacement that was bound after it, even one of the same kind.
//
// Binding and unbinding are expected to happen on the owning goroutine. The Binder
// guards its fields so coordinator goroutines can read them safely, but makes no
// promise about the outcome of racing binds.
package binding

import (
	"sync"
	"sync/atomic"
)

// Context is the platform collaborator a request is issued through.
type Context interface {
	// Kind identifies the context type. Handles match on kind, not identity,
	// so a recreated context of the same kind is recognised.
	Kind() string

	// Live reports whether the context can currently issue requests
	// (not finishing, still attached to its owner).
	Live() bool

	// IssueRequest starts the platform prompt. It must not block waiting for
	// the user; the outcome arrives later through the coordinator's HandleResult.
	IssueRequest(requestCode int, capabilities []string)

	// CheckGranted synchronously queries the current grant state.
	CheckGranted(capability string) bool
}

// Handle is the receipt for one bind. Present it again to clear the binding.
type Handle struct {
	kind    string
	epoch   uint64
	context Context
}

// Kind returns the kind of the bound context.
func (h *Handle) Kind() string { return h.kind }

// Epoch returns the bind generation.
func (h *Handle) Epoch() uint64 { return h.epoch }

// Context returns the bound context.
func (h *Handle) Context() Context { return h.context }

func (h *Handle) matches(other *Handle) bool {
	return h != nil && other != nil && h.kind == other.kind && h.epoch == other.epoch
}

// Binder holds the current top-level and sub-context handles.
type Binder struct {
	mu    sync.RWMutex
	top   *Handle
	sub   *Handle
	epoch atomic.Uint64
}

// NewBinder returns a Binder with nothing bound.
func NewBinder() *Binder {
	return &Binder{}
}

func (b *Binder) newHandle(ctx Context) *Handle {
	return &Handle{
		kind:    ctx.Kind(),
		epoch:   b.epoch.Add(1),
		context: ctx,
	}
}

// BindTop binds next as the top-level context and returns its handle.
//
// With a nil next, the top binding is cleared if previous matches it, and the
// sub-context is cleared with it: a sub-context cannot outlive its owner.
// A stale previous is ignored. BindTop returns nil when clearing.
func (b *Binder) BindTop(previous *Handle, next Context) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if next != nil {
		b.top = b.newHandle(next)
		return b.top
	}
	if b.top.matches(previous) {
		b.top = nil
		b.sub = nil
	}
	return nil
}

// BindSub binds next as the sub-context and returns its handle.
// With a nil next, the sub binding is cleared if previous matches it.
//
// The sub-context is not tied to a particular top handle: binding a sub while a
// different top is bound is allowed, and any matching BindTop clear drops it.
func (b *Binder) BindSub(previous *Handle, next Context) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if next != nil {
		b.sub = b.newHandle(next)
		return b.sub
	}
	if b.sub.matches(previous) {
		b.sub = nil
	}
	return nil
}

// Top returns the current top-level handle, or nil.
func (b *Binder) Top() *Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.top
}

// Sub returns the current sub-context handle, or nil.
func (b *Binder) Sub() *Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sub
}

// Active returns the context requests should go through: a live sub-context,
// else a live top-level context.
func (b *Binder) Active() (Context, bool) {
	b.mu.RLock()
	sub, top := b.sub, b.top
	b.mu.RUnlock()

	if sub != nil && sub.context.Live() {
		return sub.context, true
	}
	if top != nil && top.context.Live() {
		return top.context, true
	}
	return nil, false
}
