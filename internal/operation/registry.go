package operation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateOperation is returned when a name is registered twice.
var ErrDuplicateOperation = errors.New("duplicate operation")

// Registry is the name-keyed set of bound operations a node serves.
// Registration normally happens at startup; lookups are the hot path.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds op. Names are unique; re-registering is an error.
func (r *Registry) Register(op *Operation) error {
	if op == nil {
		return errors.New("registry: nil operation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.name]; exists {
		return fmt.Errorf("registry: %w: %s", ErrDuplicateOperation, op.name)
	}
	r.ops[op.name] = op
	return nil
}

// Lookup returns the operation bound to name.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
