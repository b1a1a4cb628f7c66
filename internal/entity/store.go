package entity

import (
	"encoding/json"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger is the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is a snapshot of one entity.
type State struct {
	ID          string         `json:"id"`
	Protocol    string         `json:"protocol"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Attribute returns a single attribute.
func (s State) Attribute(name string) (any, bool) {
	v, ok := s.Attributes[name]
	return v, ok
}

// Store holds the latest state of every entity seen.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	now    func() time.Time
	logger Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty entity store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		states: make(map[string]*State),
		now:    time.Now,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the entity state.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return State{}, false
	}
	out := *st
	out.Attributes = maps.Clone(st.Attributes)
	return out, true
}

// IDs returns all known entity IDs, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Update merges attrs into the entity, creating it if needed. The primary
// state is derived from the merged attributes (see PrimaryState) and
// LastChanged moves only when it differs from the previous value.
func (s *Store) Update(id, protocol string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, ok := s.states[id]
	if !ok {
		st = &State{ID: id, Attributes: make(map[string]any), LastChanged: now}
		s.states[id] = st
	}
	if protocol != "" {
		st.Protocol = protocol
	}
	maps.Copy(st.Attributes, attrs)
	st.LastUpdated = now

	if primary, found := PrimaryState(attrs); found && primary != st.State {
		st.State = primary
		st.LastChanged = now
	}
}

// SetState sets the primary state explicitly.
func (s *Store) SetState(id, protocol, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, ok := s.states[id]
	if !ok {
		st = &State{ID: id, Attributes: make(map[string]any)}
		s.states[id] = st
	}
	if protocol != "" {
		st.Protocol = protocol
	}
	st.LastUpdated = now
	if !ok || st.State != state {
		st.State = state
		st.LastChanged = now
	}
}

// PrimaryState derives an entity's primary state from an attribute update.
//
// Keys are tried in order: state, system_mode (zigbee2mqtt climate), contact
// (zigbee2mqtt door/window, open reads as "on"), value.
func PrimaryState(attrs map[string]any) (string, bool) {
	if v, ok := attrs["state"]; ok {
		return formatState(v), true
	}
	if v, ok := attrs["system_mode"]; ok {
		return formatState(v), true
	}
	if v, ok := attrs["contact"].(bool); ok {
		if v {
			return "off", true
		}
		return "on", true
	}
	if v, ok := attrs["value"]; ok {
		return formatState(v), true
	}
	return "", false
}

func formatState(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(t)
	case bool:
		if t {
			return "on"
		}
		return "off"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ToFloat converts a decoded JSON value to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
