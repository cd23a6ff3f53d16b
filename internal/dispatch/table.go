package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/consent/internal/capability"
)

// ErrDuplicateRegistration is returned when a set already has a handler in a Table.
var ErrDuplicateRegistration = errors.New("duplicate registration")

// Table is a registration table built at startup for free functions.
// It implements Target, so it can be passed wherever a target is expected.
//
// Table rejects duplicate sets at Register time, which keeps Resolve unambiguous.
type Table struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Registration
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Registration)}
}

// Register adds handler for the exact capability set.
func (t *Table) Register(name string, capabilities []string, handler any) error {
	set, err := capability.NewSet(capabilities...)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	if _, err := Adapt(name, handler); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	key := set.Key()

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[key]; ok {
		return fmt.Errorf("register %s: %w: %s already handled by %s",
			name, ErrDuplicateRegistration, key, existing.Name)
	}
	t.entries[key] = Registration{Name: name, Capabilities: set.Names(), Handler: handler}
	t.order = append(t.order, key)
	return nil
}

// MustRegister is like Register but panics on error.
func (t *Table) MustRegister(name string, capabilities []string, handler any) {
	if err := t.Register(name, capabilities, handler); err != nil {
		panic(err)
	}
}

// CapabilityHandlers returns the registrations in registration order.
func (t *Table) CapabilityHandlers() []Registration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	regs := make([]Registration, 0, len(t.order))
	for _, key := range t.order {
		regs = append(regs, t.entries[key])
	}
	return regs
}

// Len returns the number of registrations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
