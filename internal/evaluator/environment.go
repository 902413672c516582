package evaluator

import (
	"sync"

	"github.com/sigil-lang/sigil/internal/ownership"
)

func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]any)}
}

func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	env.session = outer.session
	return env
}

// Environment is one lexical scope. Bindings hold plain values, ownership
// handles, functions, channel ends, task handles, or actor refs. Owned
// handles created in this scope are tracked so scope exit can drop them.
type Environment struct {
	mu      sync.RWMutex
	store   map[string]any
	outer   *Environment
	owned   []ownership.Owned
	session int64
}

func (e *Environment) Get(name string) (any, bool) {
	e.mu.RLock()
	obj, ok := e.store[name]
	e.mu.RUnlock()
	if !ok && e.outer != nil {
		obj, ok = e.outer.Get(name)
	}
	return obj, ok
}

func (e *Environment) Set(name string, val any) any {
	e.mu.Lock()
	e.store[name] = val
	e.mu.Unlock()
	return val
}

func (e *Environment) Update(name string, val any) bool {
	e.mu.Lock()
	_, ok := e.store[name]
	if ok {
		e.store[name] = val
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()
	if e.outer != nil {
		return e.outer.Update(name, val)
	}
	return false
}

// TrackOwned registers an ownership handle for deregistration when this scope
// exits.
func (e *Environment) TrackOwned(o ownership.Owned) {
	e.mu.Lock()
	e.owned = append(e.owned, o)
	e.mu.Unlock()
}

// ExitScope drops tracked handles in reverse binding order.
func (e *Environment) ExitScope() {
	e.mu.Lock()
	owned := e.owned
	e.owned = nil
	e.mu.Unlock()
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Drop()
	}
}

// Session identifies the execution context for #sync ownership: 0 for host
// evaluation, the task's sequence id inside a spawned task.
func (e *Environment) Session() int64 { return e.session }

func (e *Environment) SetSession(id int64) { e.session = id }
