package valve

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/calibration"
	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/history"
)

// Tuning constants.
const (
	feltRatio        = 0.667
	peerCoupling     = 0.25
	slopeGain        = 0.5
	slopeClamp       = 0.5
	errorExpGain     = 0.71
	errorExpRate     = 3.47
	learnRate        = 0.00005
	sigmoidSteepness = 3.0
	minFitness       = 0.5
	coldStartFactor  = 0.75
	targetChangeStep = 0.5
	heatingBand      = 0.5
	minAdaptiveMax   = 10.0
	deviceFaultTemp  = 5.0
	boostPosition    = 80
	windowSlope      = -10.0
	unknownPosition  = -1.0
)

// Timing constants.
const (
	ThermostatWindow     = 60 * time.Minute
	ValveWindow          = 10 * time.Minute
	LearnDelay           = 4 * time.Hour
	BoostRestoreCooldown = 5 * time.Minute
	WindowOpenHold       = 10 * time.Minute
	WindowSensorDelay    = 2 * time.Minute
	SweetSpotBlock       = 2 * time.Hour
)

// Defaults for Config.
const (
	DefaultAdjustInterval = 900 * time.Second
	DefaultAdjustJitter   = 60 * time.Second
	DefaultMaxPosition    = 80.0
	DefaultPositionFactor = 0.07
)

// Regimes reported in diagnostics.
const (
	RegimeUnknown     = "unknown"
	RegimeUnavailable = "unavailable"
	RegimeDeviceFault = "device_fault"
	RegimeBoost       = "boost"
	RegimeWindowOpen  = "window_open"
	RegimeNormal      = "normal"
	RegimeHeating     = "heating_to_target"
	RegimeColdStart   = "cold_start"
)

// Config is the static configuration of one controller.
type Config struct {
	ID string

	// Peer is another controller whose felt temperature delta pulls on ours.
	Peer string

	// SetpointInput is an entity whose state overrides the thermostat setpoint.
	SetpointInput string

	// WindowSensors are entities reading "on" while a window is open.
	WindowSensors []string

	// TemperatureAdjust is an entity whose numeric state is added to the setpoint.
	TemperatureAdjust string

	MinPosition    float64
	MaxPosition    float64
	PositionFactor float64

	// AdjustInterval and AdjustJitter give the per-valve adjust period,
	// drawn once from AdjustInterval ± AdjustJitter in whole seconds.
	AdjustInterval time.Duration
	AdjustJitter   time.Duration

	// Inertia hints, reported only.
	ThermostatInertia float64
	ValveInertia      float64

	// GlobalCalibration uses one calibration entry for every target.
	GlobalCalibration bool
}

// Deps are the collaborators of a controller.
type Deps struct {
	Sensor    Sensor
	Actuator  Actuator
	Queue     Queue
	Entities  EntityReader
	Peers     PeerLookup
	Persister Persister
	Logger    Logger

	// Now replaces the wall clock.
	Now func() time.Time
}

// Controller is the per-valve state machine.
//
// Thread Safety: Tick, Snapshot, Restore, SetManualPosition and
// Diagnostics are safe for concurrent use.
type Controller struct {
	cfg      Config
	sensor   Sensor
	actuator Actuator
	queue    Queue
	entities EntityReader
	peers    PeerLookup
	persist  Persister
	logger   Logger
	now      func() time.Time
	interval time.Duration

	publish func(Diagnostics)

	mu          sync.Mutex
	cal         *calibration.Store
	thermoHist  *history.History
	valveHist   *history.History
	position    float64
	rawPosition float64
	target      float64

	targetChanged      bool
	heatingUntilTarget bool

	sensorValue   float64
	actuatorValue float64
	feltTemp      float64
	adjustedFelt  float64
	err           float64
	errExp        float64
	realError     float64

	lastAdjustAt        time.Time
	nextAdjustAt        time.Time
	lastTargetChangedAt time.Time
	rawChangedAt        time.Time
	resetBoostAt        time.Time
	lastTickAt          time.Time

	boostActive bool
	boostSaved  float64

	windowActive          bool
	windowSaved           float64
	windowOpenUntil       time.Time
	sweetSpotBlockedUntil time.Time

	regime    string
	updated   bool
	coldStart bool
}

// New creates a controller with an unknown position and empty calibration.
func New(cfg Config, deps Deps) *Controller {
	if cfg.MaxPosition <= 0 {
		cfg.MaxPosition = DefaultMaxPosition
	}
	if cfg.PositionFactor <= 0 {
		cfg.PositionFactor = DefaultPositionFactor
	}
	if cfg.AdjustInterval <= 0 {
		cfg.AdjustInterval = DefaultAdjustInterval
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	cal := calibration.New()
	if cfg.GlobalCalibration {
		cal = calibration.NewGlobal()
	}

	interval := jitter(cfg.AdjustInterval, cfg.AdjustJitter)
	start := now()

	c := &Controller{
		cfg:                   cfg,
		sensor:                deps.Sensor,
		actuator:              deps.Actuator,
		queue:                 deps.Queue,
		entities:              deps.Entities,
		peers:                 deps.Peers,
		persist:               deps.Persister,
		logger:                logger,
		now:                   now,
		interval:              interval,
		cal:                   cal,
		thermoHist:            history.New(ThermostatWindow, history.WithClock(now)),
		valveHist:             history.New(ValveWindow, history.WithClock(now)),
		position:              unknownPosition,
		rawPosition:           unknownPosition,
		target:                -1,
		lastAdjustAt:          start.Add(-interval / 2),
		lastTargetChangedAt:   start.Add(-LearnDelay),
		resetBoostAt:          start.Add(-time.Hour),
		rawChangedAt:          start,
		sweetSpotBlockedUntil: start,
		boostSaved:            unknownPosition,
		windowSaved:           unknownPosition,
		regime:                RegimeUnknown,
	}
	c.nextAdjustAt = c.lastAdjustAt.Add(interval)
	return c
}

func jitter(base, spread time.Duration) time.Duration {
	s := int64(spread / time.Second)
	if s <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(2*s+1)-s)*time.Second
}

// ID returns the controller ID.
func (c *Controller) ID() string {
	return c.cfg.ID
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Interval returns the randomized adjust interval.
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Actuator returns the controller's actuator.
func (c *Controller) Actuator() Actuator {
	return c.actuator
}

// Tick runs one control cycle. A panic inside the cycle is logged and
// contained; the cycle then publishes a device_fault snapshot and saves
// nothing.
func (c *Controller) Tick(ctx context.Context) {
	var (
		adjusted bool
		state    State
		diag     Diagnostics
	)

	func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("controller tick panicked", "valve", c.cfg.ID, "panic", r)
				c.regime = RegimeDeviceFault
				adjusted = false
				diag = c.faultDiagnosticsLocked()
			}
		}()

		adjusted = c.tick(ctx)
		diag = c.diagnosticsLocked()
		if adjusted {
			state = c.snapshotLocked()
		}
	}()

	if c.publish != nil {
		c.publish(diag)
	}
	if adjusted && c.persist != nil {
		if err := c.persist.Save(ctx, c.cfg.ID, state); err != nil {
			c.logger.Warn("saving controller state failed", "valve", c.cfg.ID, "error", err)
		}
	}
}

// faultDiagnosticsLocked is the snapshot published after a panicking
// cycle. It does not call into the sensor or actuator. Caller holds c.mu.
func (c *Controller) faultDiagnosticsLocked() Diagnostics {
	return Diagnostics{
		ID:                 c.cfg.ID,
		Regime:             RegimeDeviceFault,
		TargetTemperature:  c.target,
		Position:           round(c.position, 2),
		RawPosition:        round(c.rawPosition, 2),
		HeatingUntilTarget: c.heatingUntilTarget,
		AdjustInterval:     c.interval,
		NextAdjustAt:       c.nextAdjustAt,
		LastTickAt:         c.lastTickAt,
	}
}

// tick runs the cycle and reports whether a position adjustment ran.
// Caller holds c.mu.
func (c *Controller) tick(ctx context.Context) bool {
	now := c.now()
	c.lastTickAt = now

	if !c.actuator.Available() || !c.sensor.Available() {
		c.regime = RegimeUnavailable
		return false
	}

	c.normalize(ctx)

	raw, ok := c.actuator.Position()
	if !ok {
		c.logger.Info("valve position not available", "valve", c.cfg.ID)
		c.regime = RegimeUnavailable
		return false
	}
	if raw != c.rawPosition {
		if raw == math.Ceil(c.position) {
			c.logger.Info("valve position changed", "valve", c.cfg.ID, "from", c.rawPosition, "to", raw)
		} else {
			c.logger.Info("valve position changed by third party", "valve", c.cfg.ID, "from", c.rawPosition, "to", raw)
			c.position = raw
		}
		c.rawPosition = raw
		c.rawChangedAt = now
	}

	if !c.updateTarget(now) {
		c.regime = RegimeUnavailable
		return false
	}

	sensorValue, _ := c.sensor.Value()
	actuatorValue, _ := c.actuator.Value()
	c.sensorValue = sensorValue
	c.actuatorValue = actuatorValue

	if actuatorValue < deviceFaultTemp {
		c.logger.Info("skipping update, implausible valve temperature", "valve", c.cfg.ID, "value", actuatorValue)
		c.regime = RegimeDeviceFault
		return false
	}

	c.thermoHist.Add(sensorValue)
	c.valveHist.Add(actuatorValue)

	c.feltTemp = sensorValue*feltRatio + actuatorValue*(1.0-feltRatio)

	entry := c.cal.Current(c.target)
	adjustedDelta := entry.FeltTempDelta
	if c.cfg.Peer != "" && c.peers != nil {
		if peerDelta, found := c.peers.FeltTempDelta(c.cfg.Peer); found {
			adjustedDelta -= peerCoupling * (entry.FeltTempDelta - peerDelta)
		}
	}

	c.realError = round(sensorValue-c.target, 3)
	slopeTerm := clamp(c.thermoHist.Slope()*slopeGain, -slopeClamp, slopeClamp)
	c.adjustedFelt = c.feltTemp + slopeTerm - adjustedDelta
	c.err = c.adjustedFelt - c.target
	c.errExp = errorExpGain * c.err * math.Exp(errorExpRate*math.Abs(c.err))
	c.updated = true

	if c.updateBoost(ctx, now) {
		c.regime = RegimeBoost
		return false
	}
	if c.updateWindow(ctx, now) {
		c.regime = RegimeWindowOpen
		return false
	}

	c.nextAdjustAt = c.lastAdjustAt.Add(c.interval)
	if now.Before(c.nextAdjustAt) {
		c.regime = c.steadyRegime()
		return false
	}

	c.lastAdjustAt = now
	c.nextAdjustAt = now.Add(c.interval)
	c.adjust(ctx, now)
	c.regime = c.steadyRegime()
	return true
}

func (c *Controller) steadyRegime() string {
	switch {
	case c.coldStart:
		return RegimeColdStart
	case c.heatingUntilTarget:
		return RegimeHeating
	default:
		return RegimeNormal
	}
}

// normalize lets the devices correct their own mode. Skipped while the
// thermostat boosts.
func (c *Controller) normalize(ctx context.Context) {
	if c.sensorMode() == "Boost" {
		return
	}
	res := c.actuator.NormalizeState(ctx)
	if !res {
		if n, ok := c.sensor.(ThermostatNormalizer); ok {
			res = n.NormalizeThermostat(ctx)
		}
	}
	if res {
		sweet := c.cal.Current(c.target).SweetSpot
		c.enqueue(ctx, int(math.Ceil(sweet)), false)
	}
}

func (c *Controller) sensorMode() string {
	v, ok := c.sensor.Attribute("mode")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// updateTarget reads the setpoint and offset. It returns false when no
// setpoint is available.
func (c *Controller) updateTarget(now time.Time) bool {
	setpoint, ok := c.readSetpoint()
	if !ok {
		c.logger.Warn("target temperature not available", "valve", c.cfg.ID)
		return false
	}
	target := setpoint + c.readOffset()

	if c.target >= 0 && math.Abs(c.target-target) >= targetChangeStep {
		c.logger.Info("target temperature changed", "valve", c.cfg.ID, "from", c.target, "to", target)
		c.lastAdjustAt = now.Add(-c.interval)
		c.lastTargetChangedAt = now
		c.targetChanged = true
	}
	c.target = target
	return true
}

func (c *Controller) readSetpoint() (float64, bool) {
	if c.cfg.SetpointInput != "" {
		if c.entities == nil {
			return 0, false
		}
		st, ok := c.entities.Get(c.cfg.SetpointInput)
		if !ok {
			return 0, false
		}
		return entity.ToFloat(st.State)
	}
	v, ok := c.sensor.Attribute("temperature")
	if !ok {
		return 0, false
	}
	return entity.ToFloat(v)
}

func (c *Controller) readOffset() float64 {
	if c.cfg.TemperatureAdjust == "" || c.entities == nil {
		return 0
	}
	st, ok := c.entities.Get(c.cfg.TemperatureAdjust)
	if !ok {
		return 0
	}
	v, ok := entity.ToFloat(st.State)
	if !ok {
		c.logger.Warn("temperature offset not a number", "valve", c.cfg.ID, "state", st.State)
		return 0
	}
	return v
}

// adjust learns calibration and moves the valve. Caller holds c.mu.
func (c *Controller) adjust(ctx context.Context, now time.Time) {
	slope := c.thermoHist.Slope()
	c.coldStart = false

	var sweet float64
	if c.rawPosition > 0 {
		e := c.cal.Lookup(c.target)

		sample := c.feltTemp - c.sensorValue
		deltaOfDelta := sample - e.FeltTempDelta
		sigmoid := 1.0 / (1.0 + math.Exp(-deltaOfDelta*sigmoidSteepness))
		weight := learnRate * c.interval.Seconds() * (1.0 + sigmoid)
		e.FeltTempDelta = e.FeltTempDelta*(1.0-weight) + sample*weight
		c.logger.Debug("felt temperature learned", "valve", c.cfg.ID,
			"felt_temp_delta", e.FeltTempDelta, "sigmoid", sigmoid, "weight", weight)

		if !c.heatingUntilTarget || !now.Before(c.lastTargetChangedAt.Add(LearnDelay)) {
			fitness := math.Max(minFitness, 1.0-math.Abs(slope)-math.Abs(c.realError))
			w := learnRate * c.interval.Seconds() * fitness
			e.SweetSpot = e.SweetSpot*(1.0-w) + c.rawPosition*w
			c.logger.Debug("sweet spot learned", "valve", c.cfg.ID,
				"sweet_spot", e.SweetSpot, "fitness", fitness, "weight", w)
		}
		sweet = e.SweetSpot
	} else {
		sweet = c.cal.Current(c.target).SweetSpot
	}

	pos := c.position
	newPos := -1.0
	if c.targetChanged {
		newPos = pos - 2.0*c.err*sweet
	}

	switch {
	case c.sensorValue < c.target-heatingBand && !c.heatingUntilTarget:
		c.logger.Info("heating to target temperature", "valve", c.cfg.ID)
		c.heatingUntilTarget = true
	case c.sensorValue >= c.target && c.heatingUntilTarget:
		c.heatingUntilTarget = false
		if c.rawPosition > sweet {
			c.logger.Info("target reached, going to sweet spot", "valve", c.cfg.ID, "sweet_spot", sweet)
			newPos = sweet
		}
	}

	if newPos < 0 {
		newPos = pos + (-c.errExp * c.cfg.PositionFactor * sweet)
	}

	adaptiveMax := math.Max(minAdaptiveMax, math.Min(c.cfg.MaxPosition, sweet*2.0))
	newPos = math.Min(adaptiveMax, math.Max(c.cfg.MinPosition, newPos))

	if !c.targetChanged && pos == 0 && newPos > 0 && slope < 0 {
		newPos = math.Max(newPos, sweet*coldStartFactor*-slope)
		c.coldStart = true
		c.logger.Info("opening from closed", "valve", c.cfg.ID, "position", newPos)
	}

	c.targetChanged = false
	c.position = newPos

	if math.Ceil(newPos) != c.rawPosition {
		c.enqueue(ctx, int(math.Ceil(newPos)), false)
		c.logger.Info("position queued", "valve", c.cfg.ID,
			"sensor", c.sensorValue, "target", c.target, "error", c.err,
			"from", pos, "to", newPos)
	}
}

// SetManualPosition queues an urgent write requested by a user.
func (c *Controller) SetManualPosition(ctx context.Context, value int) error {
	if value < 0 || value > 100 {
		return ErrInvalidPosition
	}
	c.logger.Info("manual position requested", "valve", c.cfg.ID, "position", value)
	c.enqueue(ctx, value, true)
	return nil
}

func (c *Controller) enqueue(ctx context.Context, value int, urgent bool) {
	if c.queue == nil {
		return
	}
	c.queue.Enqueue(ctx, c.actuator, value, urgent)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
