package coordinator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StackIDGenerator produces correlation ids for callback stacks.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type StackIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 stack ids.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids, then numbered fallbacks.
//
//	gen := NewFixedGenerator("stack-a")
//	gen.Generate() // "stack-a"
//	gen.Generate() // "stack-2"
//
// Safe for concurrent use.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined id, or "stack-N" once they run out.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.tokens) {
		return g.tokens[g.idx-1]
	}
	return fmt.Sprintf("stack-%d", g.idx)
}
