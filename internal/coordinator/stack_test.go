package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consent/internal/capability"
)

func newTestStack(id string, names ...string) *callbackStack {
	return newCallbackStack(id, 1, capability.MustSet(names...), 1)
}

func TestCallbackStack_Lifecycle(t *testing.T) {
	s := newTestStack("s1", "CAMERA")
	assert.Equal(t, StatePending, s.state)

	s.push(HandlerFunc(func(capability.ResultSet) {}))
	assert.True(t, s.execute())
	assert.False(t, s.execute(), "execute is a no-op once executed")
	assert.True(t, s.executed())

	// Late joiner before resolution.
	s.push(HandlerFunc(func(capability.ResultSet) {}))
	assert.Equal(t, 2, s.info().Handlers)

	handlers := s.resolve()
	assert.Len(t, handlers, 2)
	assert.Equal(t, StateResolved, s.state)
	assert.Equal(t, 0, s.info().Handlers)
	assert.False(t, s.execute())
}

func TestCallbackStack_RequestCodeFollowsLatestCaller(t *testing.T) {
	s := newTestStack("s1", "CAMERA")
	s.setRequestCode(42)
	assert.Equal(t, 42, s.info().RequestCode)
}

func TestStackInfo_JSON(t *testing.T) {
	s := newTestStack("s1", "MICROPHONE", "CAMERA")
	s.execute()

	data, err := json.Marshal(s.info())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "s1",
		"key": "CAMERA|MICROPHONE",
		"capabilities": ["MICROPHONE", "CAMERA"],
		"request_code": 1,
		"handlers": 0,
		"state": "executed",
		"seq": 1
	}`, string(data))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "executed", StateExecuted.String())
	assert.Equal(t, "resolved", StateResolved.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestRegistry_InsertionOrder(t *testing.T) {
	r := newRegistry()
	a, b, c := newTestStack("a", "A"), newTestStack("b", "B"), newTestStack("c", "C")
	r.put(a)
	r.put(b)
	r.put(c)

	first, ok := r.firstPending()
	require.True(t, ok)
	assert.Equal(t, "a", first.id)

	_, busy := r.active()
	assert.False(t, busy)

	b.execute()
	active, busy := r.active()
	require.True(t, busy)
	assert.Equal(t, "b", active.id)

	removed, ok := r.remove("A")
	require.True(t, ok)
	assert.Equal(t, "a", removed.id)
	_, ok = r.remove("A")
	assert.False(t, ok)

	first, ok = r.firstPending()
	require.True(t, ok)
	assert.Equal(t, "c", first.id)

	var ids []string
	r.each(func(s *callbackStack) { ids = append(ids, s.id) })
	assert.Equal(t, []string{"b", "c"}, ids)
	assert.Equal(t, 2, r.len())
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())

	resumed := NewClockAt(100)
	assert.Equal(t, int64(101), resumed.Next())
}

func TestClock_Concurrent(t *testing.T) {
	c := NewClock()
	const goroutines, perG = 10, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perG {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perG)
	assert.Equal(t, int64(goroutines*perG), c.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	id := g.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, g.Generate())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("first", "second")
	assert.Equal(t, "first", g.Generate())
	assert.Equal(t, "second", g.Generate())
	assert.Equal(t, "stack-3", g.Generate())
}

func TestError_Format(t *testing.T) {
	cause := errors.New("boom")
	err := NewHandlerFailure("CAMERA", 2, cause)

	assert.Equal(t, "HANDLER_INVOCATION_FAILURE: handler 2 failed (key=CAMERA): boom", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("deliver: %w", err)
	assert.True(t, IsHandlerFailure(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))

	joined := errors.Join(errors.New("other"), err)
	assert.True(t, IsHandlerFailure(joined))

	assert.Equal(t, "NO_CONTEXT_BOUND: request: no live context bound", NewNoContextError("request").Error())
}
