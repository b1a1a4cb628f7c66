// Package calibration holds the per-target learned parameters of a valve
// controller: the felt temperature offset and the sweet spot position.
package calibration

import "math"

// Defaults applied to an entry seeded from an empty store.
const (
	DefaultFeltTempDelta = 0.0
	DefaultSweetSpot     = 10.0
)

// maxSeedDistance bounds the nearest-entry search. Entries this far away or
// further are never used as a seed.
const maxSeedDistance = 100.0

// GlobalKey is the only key used by a store in global mode.
const GlobalKey = 0.0

// Entry is the learned state for one target temperature.
type Entry struct {
	FeltTempDelta float64 `json:"felt_temp_delta"`
	SweetSpot     float64 `json:"sweet_spot"`
}

// DefaultEntry returns an entry with default values.
func DefaultEntry() Entry {
	return Entry{FeltTempDelta: DefaultFeltTempDelta, SweetSpot: DefaultSweetSpot}
}

// Rounded returns the entry with the precision used for persistence.
func (e Entry) Rounded() Entry {
	return Entry{
		FeltTempDelta: roundTo(e.FeltTempDelta, 2),
		SweetSpot:     roundTo(e.SweetSpot, 1),
	}
}

// Keyed pairs a target temperature with its entry.
type Keyed struct {
	Target float64 `json:"target"`
	Entry
}

// Store maps target temperatures to entries in insertion order.
// Entries are never removed.
//
// Thread Safety: a Store is owned by a single controller and is not safe
// for concurrent use.
type Store struct {
	global  bool
	order   []float64
	entries map[float64]*Entry
}

// New creates an empty per-target store.
func New() *Store {
	return &Store{entries: make(map[float64]*Entry)}
}

// NewGlobal creates a store that maps every target to one shared entry.
func NewGlobal() *Store {
	s := New()
	s.global = true
	return s
}

// Global reports whether the store ignores the target temperature.
func (s *Store) Global() bool {
	return s.global
}

// Lookup returns the entry for target, creating it on first use. A new
// entry is seeded from a copy of the nearest existing entry, or from
// defaults when the store is empty. Repeated lookups for the same target
// return the same pointer.
func (s *Store) Lookup(target float64) *Entry {
	key := s.key(target)
	if e, ok := s.entries[key]; ok {
		return e
	}

	seed := DefaultEntry()
	if nearest, ok := s.Nearest(key); ok {
		seed = nearest
	}
	e := &seed
	s.entries[key] = e
	s.order = append(s.order, key)
	return e
}

// Current returns the entry that applies to target without creating one:
// the nearest entry, or defaults when none is in range.
func (s *Store) Current(target float64) Entry {
	if e, ok := s.Nearest(s.key(target)); ok {
		return e
	}
	return DefaultEntry()
}

// Nearest returns a copy of the entry closest to target. Ties go to the
// entry inserted first.
func (s *Store) Nearest(target float64) (Entry, bool) {
	best := maxSeedDistance
	var found *Entry
	for _, k := range s.order {
		d := math.Abs(k - target)
		if best > d {
			best = d
			found = s.entries[k]
		}
	}
	if found == nil {
		return Entry{}, false
	}
	return *found, true
}

// Set stores e under target, replacing any existing value in place.
func (s *Store) Set(target float64, e Entry) {
	key := s.key(target)
	if existing, ok := s.entries[key]; ok {
		*existing = e
		return
	}
	stored := e
	s.entries[key] = &stored
	s.order = append(s.order, key)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.order)
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []Keyed {
	out := make([]Keyed, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, Keyed{Target: k, Entry: *s.entries[k]})
	}
	return out
}

func (s *Store) key(target float64) float64 {
	if s.global {
		return GlobalKey
	}
	// Offsets are added to setpoints, so absorb float noise.
	return roundTo(target, 2)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
