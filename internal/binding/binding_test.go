package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContext struct {
	kind string
	live bool
}

func (c *stubContext) Kind() string { return c.kind }
func (c *stubContext) Live() bool { return c.live }
func (c *stubContext) IssueRequest(int, []string) {}
func (c *stubContext) CheckGranted(string) bool { return false }

func TestBinder_NothingBound(t *testing.T) {
	b := NewBinder()

	_, ok := b.Active()
	assert.False(t, ok)
	assert.Nil(t, b.Top())
	assert.Nil(t, b.Sub())
}

func TestBinder_TopOnly(t *testing.T) {
	b := NewBinder()
	main := &stubContext{kind: "MainActivity", live: true}

	h := b.BindTop(nil, main)
	require.NotNil(t, h)
	assert.Equal(t, "MainActivity", h.Kind())
	assert.Equal(t, uint64(1), h.Epoch())

	active, ok := b.Active()
	require.True(t, ok)
	assert.Same(t, main, active)
}

func TestBinder_PrefersLiveSub(t *testing.T) {
	b := NewBinder()
	top := &stubContext{kind: "MainActivity", live: true}
	sub := &stubContext{kind: "SettingsFragment", live: true}

	b.BindTop(nil, top)
	b.BindSub(nil, sub)

	active, ok := b.Active()
	require.True(t, ok)
	assert.Same(t, sub, active)

	sub.live = false
	active, ok = b.Active()
	require.True(t, ok)
	assert.Same(t, top, active, "detached sub falls back to top")
}

func TestBinder_DeadTopIsNotActive(t *testing.T) {
	b := NewBinder()
	b.BindTop(nil, &stubContext{kind: "MainActivity", live: false})

	_, ok := b.Active()
	assert.False(t, ok)
}

func TestBinder_ClearTopRequiresMatchingHandle(t *testing.T) {
	b := NewBinder()
	first := b.BindTop(nil, &stubContext{kind: "MainActivity", live: true})
	second := b.BindTop(nil, &stubContext{kind: "MainActivity", live: true})

	// The recreated context's predecessor tears down after the replacement bound.
	b.BindTop(first, nil)
	assert.Same(t, second, b.Top(), "stale handle must not clear the replacement")

	b.BindTop(second, nil)
	assert.Nil(t, b.Top())
}

func TestBinder_ClearTopIgnoresOtherKind(t *testing.T) {
	b := NewBinder()
	other := &Handle{kind: "OtherActivity", epoch: 1}
	current := b.BindTop(nil, &stubContext{kind: "MainActivity", live: true})
	require.Equal(t, uint64(1), current.Epoch())

	b.BindTop(other, nil)
	assert.Same(t, current, b.Top())
}

func TestBinder_ClearTopClearsSub(t *testing.T) {
	b := NewBinder()
	top := b.BindTop(nil, &stubContext{kind: "MainActivity", live: true})
	b.BindSub(nil, &stubContext{kind: "SettingsFragment", live: true})

	b.BindTop(top, nil)

	assert.Nil(t, b.Top())
	assert.Nil(t, b.Sub())
	_, ok := b.Active()
	assert.False(t, ok)
}

func TestBinder_ClearSub(t *testing.T) {
	b := NewBinder()
	top := &stubContext{kind: "MainActivity", live: true}
	b.BindTop(nil, top)
	sub := b.BindSub(nil, &stubContext{kind: "SettingsFragment", live: true})

	b.BindSub(nil, nil)
	assert.Same(t, sub, b.Sub(), "nil previous is ignored")

	b.BindSub(sub, nil)
	assert.Nil(t, b.Sub())
	assert.NotNil(t, b.Top(), "clearing sub leaves top bound")

	active, ok := b.Active()
	require.True(t, ok)
	assert.Same(t, top, active)
}

func TestBinder_SubWithoutTop(t *testing.T) {
	b := NewBinder()
	sub := &stubContext{kind: "SettingsFragment", live: true}
	b.BindSub(nil, sub)

	active, ok := b.Active()
	require.True(t, ok)
	assert.Same(t, sub, active)
}
