package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults.
const (
	DefaultInterval        = 10 * time.Second
	DefaultDispatchTimeout = 30 * time.Second
	DefaultDutyCycleMax    = 75.0
)

// Reasons a drain did not dispatch.
const (
	GateEmpty     = "empty"
	GateInFlight  = "in_flight"
	GateSpacing   = "spacing"
	GateDutyCycle = "duty_cycle"
	GateBlackout  = "blackout"
)

// Actuator is the write side of a valve.
type Actuator interface {
	Name() string
	SetPosition(ctx context.Context, value int, urgent bool) error
}

// Logger is the logging interface used by the queue.
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

// Options configures a Queue.
type Options struct {
	// Interval is the minimum spacing between dispatches and the drain
	// ticker period.
	Interval time.Duration

	// DispatchTimeout bounds a single position write.
	DispatchTimeout time.Duration

	// DutyCycle reads the transport duty cycle in percent. ok is false
	// when the reading is missing. Nil disables the check.
	DutyCycle func() (value float64, ok bool)

	// DutyCycleMax is the ceiling above which dispatch is held back.
	DutyCycleMax float64

	Blackout Blackout

	// Now replaces the wall clock.
	Now func() time.Time

	Logger Logger
}

// Pending is a read-only view of a queued entry.
type Pending struct {
	Actuator string `json:"actuator"`
	Value    int    `json:"value"`
	Urgent   bool   `json:"urgent"`
}

// Result describes a finished dispatch.
type Result struct {
	Actuator string
	Value    int
	Urgent   bool
	Err      error
	Requeued bool
	Duration time.Duration
}

type entry struct {
	actuator Actuator
	value    int
	urgent   bool
}

// Queue is the shared actuation queue.
//
// Thread Safety: all methods are safe for concurrent use.
type Queue struct {
	opts    Options
	logger  Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	order    []string
	entries  map[string]*entry
	inflight bool

	// lastDispatch is reported to status readers only. Spacing is
	// enforced by limiter.
	lastDispatch time.Time

	// depthMu serialises depth notifications so observers see them in
	// mutation order.
	depthMu sync.Mutex

	obsMu      sync.RWMutex
	onDepth    []func(int)
	onDispatch []func(Result)
	onGated    []func(string)
}

// New creates a queue. The first dispatch is allowed one Interval after
// construction.
func New(opts Options) *Queue {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.DutyCycleMax <= 0 {
		opts.DutyCycleMax = DefaultDutyCycleMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	now := opts.Now()
	limiter.AllowN(now, 1)

	return &Queue{
		opts:         opts,
		logger:       logger,
		limiter:      limiter,
		entries:      make(map[string]*entry),
		lastDispatch: now,
	}
}

// OnDepth registers a callback invoked with the queue length after every
// mutation. Callbacks run one at a time and must not enqueue.
func (q *Queue) OnDepth(fn func(depth int)) {
	q.obsMu.Lock()
	q.onDepth = append(q.onDepth, fn)
	q.obsMu.Unlock()
}

// OnDispatch registers a callback invoked after every finished dispatch.
func (q *Queue) OnDispatch(fn func(Result)) {
	q.obsMu.Lock()
	q.onDispatch = append(q.onDispatch, fn)
	q.obsMu.Unlock()
}

// OnGated registers a callback invoked when a non-empty drain is held back.
func (q *Queue) OnGated(fn func(reason string)) {
	q.obsMu.Lock()
	q.onGated = append(q.onGated, fn)
	q.obsMu.Unlock()
}

// Enqueue upserts a position request for a and attempts a drain. A pending
// request for the same actuator keeps its place and takes the new value.
func (q *Queue) Enqueue(ctx context.Context, a Actuator, value int, urgent bool) {
	key := a.Name()

	q.mu.Lock()
	if e, ok := q.entries[key]; ok {
		e.actuator = a
		e.value = value
		e.urgent = urgent
	} else {
		q.entries[key] = &entry{actuator: a, value: value, urgent: urgent}
		q.order = append(q.order, key)
	}
	depth := len(q.order)
	q.mu.Unlock()

	q.logger.Debug("position queued", "actuator", key, "value", value, "urgent", urgent, "depth", depth)
	q.publishDepth()
	q.Drain(ctx, q.opts.Now())
}

// Drain dispatches the oldest entry if no gate holds. It returns nil when
// nothing was dispatched, otherwise a channel that receives the dispatch
// error (nil on success) once requeue handling is done. The dispatch keeps
// ctx's values but not its cancellation; DispatchTimeout bounds it.
func (q *Queue) Drain(ctx context.Context, now time.Time) <-chan error {
	q.mu.Lock()
	if reason := q.gate(now); reason != "" {
		empty := reason == GateEmpty
		q.mu.Unlock()
		if !empty {
			q.logger.Debug("queue drain held back", "reason", reason)
			q.notifyGated(reason)
		}
		return nil
	}

	key := q.order[0]
	e := q.entries[key]
	q.order = q.order[1:]
	delete(q.entries, key)
	q.inflight = true
	q.lastDispatch = now
	q.limiter.AllowN(now, 1)
	q.mu.Unlock()

	q.publishDepth()

	done := make(chan error, 1)
	go q.dispatch(context.WithoutCancel(ctx), e, done)
	return done
}

// gate returns the reason a drain must not dispatch, or "". Caller holds q.mu.
func (q *Queue) gate(now time.Time) string {
	if len(q.order) == 0 {
		return GateEmpty
	}
	if q.inflight {
		return GateInFlight
	}
	if q.limiter.TokensAt(now) < 1 {
		return GateSpacing
	}
	if q.opts.DutyCycle != nil {
		dc, ok := q.opts.DutyCycle()
		switch {
		case !ok:
			q.logger.Warn("duty cycle unavailable, dispatching anyway")
		case dc > q.opts.DutyCycleMax:
			q.logger.Info("duty cycle above ceiling", "duty_cycle", dc, "max", q.opts.DutyCycleMax)
			return GateDutyCycle
		}
	}
	if q.opts.Blackout.Contains(now) {
		return GateBlackout
	}
	return ""
}

func (q *Queue) dispatch(ctx context.Context, e *entry, done chan<- error) {
	key := e.actuator.Name()
	start := q.opts.Now()

	dctx, cancel := context.WithTimeout(ctx, q.opts.DispatchTimeout)
	err := q.setPosition(dctx, e)
	cancel()

	q.mu.Lock()
	q.inflight = false
	requeued := false
	if err != nil {
		if _, newer := q.entries[key]; !newer {
			q.entries[key] = e
			q.order = append(q.order, key)
			requeued = true
		}
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("position dispatch failed", "actuator", key, "value", e.value, "requeued", requeued, "error", err)
	} else {
		q.logger.Info("position dispatched", "actuator", key, "value", e.value, "urgent", e.urgent)
	}

	if requeued {
		q.publishDepth()
	}
	q.notifyDispatch(Result{
		Actuator: key,
		Value:    e.value,
		Urgent:   e.urgent,
		Err:      err,
		Requeued: requeued,
		Duration: q.opts.Now().Sub(start),
	})

	done <- err
	close(done)
}

// setPosition shields the queue from a panicking transport.
func (q *Queue) setPosition(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return e.actuator.SetPosition(ctx, e.value, e.urgent)
}

// Run drains the queue every Interval until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx, q.opts.Now())
		}
	}
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// InFlight reports whether a dispatch is running.
func (q *Queue) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

// LastDispatch returns when the last dispatch started, or the construction
// time before any dispatch. It is informational; the rate limiter decides
// when the next dispatch may start.
func (q *Queue) LastDispatch() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastDispatch
}

// Pending returns the queued entries in dispatch order.
func (q *Queue) Pending() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Pending, 0, len(q.order))
	for _, k := range q.order {
		e := q.entries[k]
		out = append(out, Pending{Actuator: k, Value: e.value, Urgent: e.urgent})
	}
	return out
}

// publishDepth reads the current length and notifies depth observers while
// holding depthMu, so a later notification never carries an older length.
func (q *Queue) publishDepth() {
	q.depthMu.Lock()
	defer q.depthMu.Unlock()

	depth := q.Len()
	q.obsMu.RLock()
	defer q.obsMu.RUnlock()
	for _, fn := range q.onDepth {
		fn(depth)
	}
}

func (q *Queue) notifyDispatch(r Result) {
	q.obsMu.RLock()
	defer q.obsMu.RUnlock()
	for _, fn := range q.onDispatch {
		fn(r)
	}
}

func (q *Queue) notifyGated(reason string) {
	q.obsMu.RLock()
	defer q.obsMu.RUnlock()
	for _, fn := range q.onGated {
		fn(reason)
	}
}
