package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
)

// Proxy is the actuator port of one valve. The device family is selected
// on first use and kept for the proxy's lifetime.
//
// Thread Safety: all methods are safe for concurrent use.
type Proxy struct {
	cfg    Config
	ent    *entity.Entity
	store  *entity.Store
	cmd    Commander
	logger Logger

	mu     sync.Mutex
	family Family
	err    error // permanent selection failure
}

// NewProxy creates a proxy for the actuator described by cfg.
func NewProxy(cfg Config, store *entity.Store, cmd Commander, logger Logger) *Proxy {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Proxy{
		cfg:    cfg,
		ent:    entity.NewEntity(store, cfg.Name),
		store:  store,
		cmd:    cmd,
		logger: logger,
	}
}

// Name returns the actuator entity ID.
func (p *Proxy) Name() string {
	return p.cfg.Name
}

// Family returns the selected family, selecting it if needed.
func (p *Proxy) Family() (Family, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.family != nil {
		return p.family, nil
	}
	if p.err != nil {
		return nil, p.err
	}

	st, _ := p.store.Get(p.cfg.Name)
	typ, err := Select(p.cfg, st.Attributes, st.Protocol)
	if err == nil {
		p.family, err = newFamily(typ, p.cfg, p.ent, p.store, p.cmd, p.logger)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			p.err = err
			p.logger.Warn("actuator disabled", "actuator", p.cfg.Name, "error", err)
		}
		return nil, err
	}

	p.logger.Info("actuator family selected", "actuator", p.cfg.Name, "type", typ)
	return p.family, nil
}

// Type returns the selected family type, or "" before selection.
func (p *Proxy) Type() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.family == nil {
		return ""
	}
	return p.family.Type()
}

// Err returns the permanent selection error, if any.
func (p *Proxy) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Available reports whether a family is selected and the device reports
// a temperature.
func (p *Proxy) Available() bool {
	f, err := p.Family()
	if err != nil {
		return false
	}
	return f.Available()
}

// Value returns the valve body temperature.
func (p *Proxy) Value() (float64, bool) {
	f, err := p.Family()
	if err != nil {
		return 0, false
	}
	return f.Value()
}

// Position returns the device-reported valve position.
func (p *Proxy) Position() (float64, bool) {
	f, err := p.Family()
	if err != nil {
		return 0, false
	}
	return f.Position()
}

// SetPosition writes a valve position. Transport failures are returned.
func (p *Proxy) SetPosition(ctx context.Context, value int, urgent bool) error {
	f, err := p.Family()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := f.SetPosition(ctx, value, urgent); err != nil {
		return fmt.Errorf("setting %s to %d: %w", p.cfg.Name, value, err)
	}
	return nil
}

// NormalizeState corrects the device mode and setpoint. It reports
// whether a corrective write was issued.
func (p *Proxy) NormalizeState(ctx context.Context) bool {
	f, err := p.Family()
	if err != nil {
		return false
	}
	return f.NormalizeState(ctx)
}
