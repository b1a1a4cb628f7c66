package valve

import (
	"context"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/queue"
)

// Sensor is the room thermostat.
type Sensor interface {
	Available() bool
	Value() (float64, bool)
	Attribute(name string) (any, bool)
}

// ThermostatNormalizer is implemented by sensors that can correct their
// own HVAC mode.
type ThermostatNormalizer interface {
	NormalizeThermostat(ctx context.Context) bool
}

// Actuator is the valve. Value is the valve body temperature, Position the
// device-reported opening in percent.
type Actuator interface {
	Name() string
	Available() bool
	Value() (float64, bool)
	Position() (float64, bool)
	SetPosition(ctx context.Context, value int, urgent bool) error
	NormalizeState(ctx context.Context) bool
}

// Queue accepts position requests.
type Queue interface {
	Enqueue(ctx context.Context, a queue.Actuator, value int, urgent bool)
}

// EntityReader reads auxiliary inputs: setpoint, offset and window sensors.
type EntityReader interface {
	Get(id string) (entity.State, bool)
}

// PeerLookup returns the published felt temperature delta of another valve.
type PeerLookup interface {
	FeltTempDelta(id string) (float64, bool)
}

// Persister saves controller state after adjustments.
type Persister interface {
	Save(ctx context.Context, id string, s State) error
}

// Logger is the logging interface used by controllers.
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
