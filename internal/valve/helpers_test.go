package valve

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/queue"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSensor struct {
	mu    sync.Mutex
	value *float64
	attrs map[string]any

	normalizeResult bool
	normalizeCalls  int
}

func (s *fakeSensor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value != nil
}

func (s *fakeSensor) Value() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return 0, false
	}
	return *s.value, true
}

func (s *fakeSensor) Attribute(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[name]
	return v, ok
}

func (s *fakeSensor) NormalizeThermostat(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalizeCalls++
	return s.normalizeResult
}

func (s *fakeSensor) set(value float64) {
	s.mu.Lock()
	s.value = &value
	s.mu.Unlock()
}

func (s *fakeSensor) setAttr(name string, v any) {
	s.mu.Lock()
	s.attrs[name] = v
	s.mu.Unlock()
}

type fakeActuator struct {
	mu          sync.Mutex
	available   bool
	value       float64
	position    float64
	hasPosition bool
	panics      bool

	normalizeResult bool
	normalizeCalls  int
}

func (a *fakeActuator) Name() string { return "climate.test_trv" }

func (a *fakeActuator) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panics {
		panic("entity store corrupted")
	}
	return a.available
}

func (a *fakeActuator) Value() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value, a.available
}

func (a *fakeActuator) Position() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position, a.hasPosition
}

func (a *fakeActuator) SetPosition(context.Context, int, bool) error { return nil }

func (a *fakeActuator) NormalizeState(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.normalizeCalls++
	return a.normalizeResult
}

func (a *fakeActuator) setValue(v float64) {
	a.mu.Lock()
	a.value = v
	a.mu.Unlock()
}

func (a *fakeActuator) setPosition(p float64) {
	a.mu.Lock()
	a.position = p
	a.hasPosition = true
	a.mu.Unlock()
}

type queued struct {
	value  int
	urgent bool
}

type recordingQueue struct {
	mu    sync.Mutex
	items []queued
}

func (q *recordingQueue) Enqueue(_ context.Context, _ queue.Actuator, value int, urgent bool) {
	q.mu.Lock()
	q.items = append(q.items, queued{value, urgent})
	q.mu.Unlock()
}

func (q *recordingQueue) all() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queued(nil), q.items...)
}

func (q *recordingQueue) reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

type fakeEntities struct {
	mu     sync.Mutex
	states map[string]entity.State
}

func (f *fakeEntities) Get(id string) (entity.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	return st, ok
}

func (f *fakeEntities) set(id, state string, changed time.Time) {
	f.mu.Lock()
	f.states[id] = entity.State{ID: id, State: state, LastChanged: changed}
	f.mu.Unlock()
}

type savedState struct {
	id    string
	state State
}

type recordingPersister struct {
	mu    sync.Mutex
	saves []savedState
}

func (p *recordingPersister) Save(_ context.Context, id string, s State) error {
	p.mu.Lock()
	p.saves = append(p.saves, savedState{id, s})
	p.mu.Unlock()
	return nil
}

type harness struct {
	c        *Controller
	clk      *fakeClock
	sensor   *fakeSensor
	actuator *fakeActuator
	queue    *recordingQueue
	entities *fakeEntities
	persist  *recordingPersister
}

var epoch = time.Date(2026, 1, 14, 6, 0, 0, 0, time.UTC)

// newHarness builds a controller with a fixed 900 s adjust interval whose
// first adjustment is due 450 s after construction.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "living"
	}
	h := &harness{
		clk:      &fakeClock{t: epoch},
		sensor:   &fakeSensor{attrs: map[string]any{"temperature": 20.0}},
		actuator: &fakeActuator{available: true, value: 20, hasPosition: true},
		queue:    &recordingQueue{},
		entities: &fakeEntities{states: map[string]entity.State{}},
		persist:  &recordingPersister{},
	}
	h.sensor.set(20)
	h.c = New(cfg, Deps{
		Sensor:    h.sensor,
		Actuator:  h.actuator,
		Queue:     h.queue,
		Entities:  h.entities,
		Persister: h.persist,
		Now:       h.clk.now,
	})
	return h
}

func (h *harness) tick() Diagnostics {
	h.c.Tick(context.Background())
	return h.c.Diagnostics()
}
