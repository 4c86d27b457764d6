package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// ctxStack tracks the execution contexts active inside the library. Every
// public operation runs under one; Terminate pushes a synthetic context so
// termination hooks execute under normal calling conventions. The stack is
// the very last subsystem torn down.
type ctxStack struct {
	mu    sync.Mutex
	nodes []ctxNode
}

type ctxNode struct {
	id uuid.UUID
}

func newCtxStack() *ctxStack {
	return &ctxStack{}
}

// push establishes a new execution context and returns its identity.
func (s *ctxStack) push() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.nodes = append(s.nodes, ctxNode{id: id})
	return id
}

// pop removes the most recent context. Popping an empty stack is a no-op:
// the synthetic termination context is deliberately never popped because
// the stack itself is gone by then.
func (s *ctxStack) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.nodes); n > 0 {
		s.nodes = s.nodes[:n-1]
	}
}

// depth returns the number of active contexts.
func (s *ctxStack) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// terminate clears the stack. The synthetic context pushed by Terminate
// is expected and not counted; anything beyond it is leaked work and is
// reported as pending.
func (s *ctxStack) terminate() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.nodes)
	s.nodes = nil
	if n > 1 {
		return n - 1
	}
	return 0
}
