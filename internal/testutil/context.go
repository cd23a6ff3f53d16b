// Package testutil provides deterministic collaborators for coordinator tests.
package testutil

import (
	"slices"
	"sync"
)

// Issued records one IssueRequest call.
type Issued struct {
	RequestCode  int      `json:"request_code" yaml:"request_code"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
}

// FakeContext is an in-memory binding.Context.
//
// It records every issued request instead of prompting, and answers
// CheckGranted from a grant table the test controls. A new FakeContext is live.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeContext struct {
	mu     sync.Mutex
	kind   string
	live   bool
	grants map[string]bool
	issued []Issued

	// OnIssue, if set, is called after each request is recorded, without the
	// mutex held. Tests use it to answer synchronously.
	OnIssue func(Issued)
}

// NewFakeContext creates a live context of the given kind.
func NewFakeContext(kind string) *FakeContext {
	return &FakeContext{
		kind:   kind,
		live:   true,
		grants: make(map[string]bool),
	}
}

// Kind returns the context kind.
func (c *FakeContext) Kind() string {
	return c.kind
}

// Live reports whether the context is live.
func (c *FakeContext) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// SetLive marks the context live or finishing.
func (c *FakeContext) SetLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = live
}

// Grant marks capabilities as granted for CheckGranted.
func (c *FakeContext) Grant(capabilities ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range capabilities {
		c.grants[name] = true
	}
}

// Revoke marks capabilities as not granted.
func (c *FakeContext) Revoke(capabilities ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range capabilities {
		delete(c.grants, name)
	}
}

// CheckGranted reports the grant table entry for capability.
func (c *FakeContext) CheckGranted(capability string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants[capability]
}

// IssueRequest records the request.
func (c *FakeContext) IssueRequest(requestCode int, capabilities []string) {
	req := Issued{RequestCode: requestCode, Capabilities: slices.Clone(capabilities)}

	c.mu.Lock()
	c.issued = append(c.issued, req)
	hook := c.OnIssue
	c.mu.Unlock()

	if hook != nil {
		hook(req)
	}
}

// Issued returns a copy of every recorded request in call order.
func (c *FakeContext) Issued() []Issued {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.issued)
}

// IssuedCount returns the number of recorded requests.
func (c *FakeContext) IssuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issued)
}

// Last returns the most recent request.
func (c *FakeContext) Last() (Issued, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.issued) == 0 {
		return Issued{}, false
	}
	return c.issued[len(c.issued)-1], true
}

// Reset forgets recorded requests. Grants and liveness are kept.
func (c *FakeContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = nil
}
