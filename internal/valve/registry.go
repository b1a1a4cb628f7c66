package valve

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry holds every controller and the latest diagnostics each one
// published. Peers read each other only through it.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	controllers map[string]*Controller
	diags       map[string]Diagnostics

	obsMu     sync.RWMutex
	observers []func(Diagnostics)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		controllers: make(map[string]*Controller),
		diags:       make(map[string]Diagnostics),
	}
}

// Add registers a controller. Controllers without a peer lookup use the
// registry. Add must be called before the controller ticks.
func (r *Registry) Add(c *Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.controllers[c.cfg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.cfg.ID)
	}
	r.controllers[c.cfg.ID] = c
	r.order = append(r.order, c.cfg.ID)

	if c.peers == nil {
		c.peers = r
	}
	c.publish = r.Publish
	return nil
}

// Get returns a controller by ID.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Controllers returns all controllers in registration order.
func (r *Registry) Controllers() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Controller, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.controllers[id])
	}
	return out
}

// Len returns the number of controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// OnUpdate registers a callback invoked with every published snapshot.
func (r *Registry) OnUpdate(fn func(Diagnostics)) {
	r.obsMu.Lock()
	r.observers = append(r.observers, fn)
	r.obsMu.Unlock()
}

// Publish stores a snapshot and notifies observers. A snapshot without an
// ID is dropped.
func (r *Registry) Publish(d Diagnostics) {
	if d.ID == "" {
		return
	}
	r.mu.Lock()
	r.diags[d.ID] = d
	r.mu.Unlock()

	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, fn := range r.observers {
		fn(d)
	}
}

// Diagnostics returns the latest published snapshot of a controller.
func (r *Registry) Diagnostics(id string) (Diagnostics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.diags[id]
	return d, ok
}

// AllDiagnostics returns the latest snapshot of every controller that has
// published, in registration order.
func (r *Registry) AllDiagnostics() []Diagnostics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Diagnostics, 0, len(r.diags))
	for _, id := range r.order {
		if d, ok := r.diags[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// FeltTempDelta returns the felt temperature delta a controller last
// published. ok is false until that controller completed a tick.
func (r *Registry) FeltTempDelta(id string) (float64, bool) {
	d, ok := r.Diagnostics(id)
	if !ok || !d.Updated {
		return 0, false
	}
	return d.FeltTempDelta, true
}

// Run ticks every controller every interval, each on its own goroutine,
// until ctx is done. The first tick runs immediately.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	var wg sync.WaitGroup
	for _, c := range r.Controllers() {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Run(ctx, every)
		}(c)
	}
	wg.Wait()
}

// Run ticks the controller every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, every time.Duration) {
	c.Tick(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}
