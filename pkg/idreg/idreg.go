// Package idreg implements the library's handle registry: opaque integer
// IDs handed out to applications in place of internal objects.
//
// IDs are grouped by registered type so whole interfaces can be torn down
// together. The registry is one of the low-level subsystems drained during
// library termination; forced teardown reports how many handles it
// released so the shutdown driver can schedule another pass.
package idreg

import (
	"errors"
	"sync"
)

// ID is an opaque handle to a registered object.
type ID int64

// Invalid is returned when registration fails.
const Invalid ID = -1

// Type identifies a class of handles (files, property lists, datatypes...).
type Type int

// ErrUnknownType is returned for operations on an unregistered type.
var ErrUnknownType = errors.New("idreg: unknown ID type")

// DiscardFunc is called for each live object discarded by a forced
// teardown, letting owners release attached resources.
type DiscardFunc func(id ID, obj any)

// Registry is a thread-safe ID table grouped by type.
type Registry struct {
	mu       sync.Mutex
	nextType Type
	nextID   ID
	tables   map[Type]map[ID]any
	discard  map[Type]DiscardFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		nextID:  1,
		tables:  make(map[Type]map[ID]any),
		discard: make(map[Type]DiscardFunc),
	}
}

// RegisterType allocates a new handle type. The discard callback may be
// nil; when set it runs for every live handle cleared by TerminateAll.
func (r *Registry) RegisterType(onDiscard DiscardFunc) Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.nextType
	r.nextType++
	r.tables[t] = make(map[ID]any)
	if onDiscard != nil {
		r.discard[t] = onDiscard
	}
	return t
}

// Register stores obj under a fresh ID of the given type.
func (r *Registry) Register(t Type, obj any) (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.tables[t]
	if !ok {
		return Invalid, ErrUnknownType
	}
	id := r.nextID
	r.nextID++
	table[id] = obj
	return id, nil
}

// Lookup returns the object stored under id.
func (r *Registry) Lookup(t Type, id ID) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.tables[t]
	if !ok {
		return nil, false
	}
	obj, ok := table[id]
	return obj, ok
}

// Remove deletes id and returns the object that was stored under it.
func (r *Registry) Remove(t Type, id ID) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.tables[t]
	if !ok {
		return nil, false
	}
	obj, ok := table[id]
	if ok {
		delete(table, id)
	}
	return obj, ok
}

// Count returns the number of live handles of the given type.
func (r *Registry) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables[t])
}

// TotalCount returns the number of live handles across all types.
func (r *Registry) TotalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, table := range r.tables {
		n += len(table)
	}
	return n
}

// TerminateAll force-releases every live handle, invoking discard
// callbacks, and returns the number released. A nonzero return is the
// registry's pending count during library shutdown.
func (r *Registry) TerminateAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for t, table := range r.tables {
		fn := r.discard[t]
		for id, obj := range table {
			if fn != nil {
				fn(id, obj)
			}
			delete(table, id)
			released++
		}
	}
	return released
}
