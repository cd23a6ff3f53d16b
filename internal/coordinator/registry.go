package coordinator

// registry maps canonical keys to stacks and remembers insertion order.
//
// Iteration is in insertion order so the choice of the next stack to issue is
// deterministic. Not safe for concurrent use; the Coordinator's mutex guards it.
type registry struct {
	stacks map[string]*callbackStack
	order  []string
}

func newRegistry() *registry {
	return &registry{
		stacks: make(map[string]*callbackStack),
		order:  make([]string, 0, 8),
	}
}

func (r *registry) get(key string) (*callbackStack, bool) {
	s, ok := r.stacks[key]
	return s, ok
}

// put inserts a new stack. The key must not already be present.
func (r *registry) put(s *callbackStack) {
	r.stacks[s.key] = s
	r.order = append(r.order, s.key)
}

// remove deletes and returns the stack for key.
func (r *registry) remove(key string) (*callbackStack, bool) {
	s, ok := r.stacks[key]
	if !ok {
		return nil, false
	}
	delete(r.stacks, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

func (r *registry) len() int {
	return len(r.order)
}

// active returns the stack whose platform request is outstanding, if any.
func (r *registry) active() (*callbackStack, bool) {
	for _, k := range r.order {
		if s := r.stacks[k]; s.executed() {
			return s, true
		}
	}
	return nil, false
}

// firstPending returns the oldest stack not yet issued.
func (r *registry) firstPending() (*callbackStack, bool) {
	for _, k := range r.order {
		if s := r.stacks[k]; s.state == StatePending {
			return s, true
		}
	}
	return nil, false
}

// each calls fn for every stack in insertion order.
func (r *registry) each(fn func(*callbackStack)) {
	for _, k := range r.order {
		fn(r.stacks[k])
	}
}
