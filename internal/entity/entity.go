package entity

import (
	"sync"
	"time"
)

// Entity is a read handle onto one entity in the store. Attributes missing
// from the latest state fall back to the last value this handle saw.
type Entity struct {
	store *Store
	id    string

	mu    sync.Mutex
	cache map[string]any
}

// NewEntity returns a handle for id.
func NewEntity(store *Store, id string) *Entity {
	return &Entity{store: store, id: id, cache: make(map[string]any)}
}

// ID returns the entity ID.
func (e *Entity) ID() string {
	return e.id
}

// Exists reports whether the store has seen the entity.
func (e *Entity) Exists() bool {
	_, ok := e.store.Get(e.id)
	return ok
}

// State returns the primary state.
func (e *Entity) State() (string, bool) {
	st, ok := e.store.Get(e.id)
	if !ok {
		return "", false
	}
	return st.State, true
}

// Snapshot returns the full entity state.
func (e *Entity) Snapshot() (State, bool) {
	return e.store.Get(e.id)
}

// LastChanged returns when the primary state last changed.
func (e *Entity) LastChanged() (time.Time, bool) {
	st, ok := e.store.Get(e.id)
	if !ok {
		return time.Time{}, false
	}
	return st.LastChanged, true
}

// Protocol returns the protocol of the bridge that reported the entity.
func (e *Entity) Protocol() string {
	st, _ := e.store.Get(e.id)
	return st.Protocol
}

// Attribute returns an attribute value, using the cached value when the
// current state lacks it.
func (e *Entity) Attribute(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.store.Get(e.id); ok {
		if v, found := st.Attributes[name]; found && v != nil {
			e.cache[name] = v
			return v, true
		}
	}
	v, ok := e.cache[name]
	return v, ok
}

// Float returns a numeric attribute.
func (e *Entity) Float(name string) (float64, bool) {
	v, ok := e.Attribute(name)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// String returns an attribute formatted as a state string.
func (e *Entity) String(name string) (string, bool) {
	v, ok := e.Attribute(name)
	if !ok {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return formatState(v), true
}

// StateFloat parses the primary state as a number.
func (e *Entity) StateFloat() (float64, bool) {
	s, ok := e.State()
	if !ok || s == "" {
		return 0, false
	}
	return ToFloat(s)
}
