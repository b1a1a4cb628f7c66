package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this service.
const (
	MeasurementValve    = "valve_controller"
	MeasurementDispatch = "valve_dispatch"
)

// ValveSample is one controller tick worth of telemetry.
type ValveSample struct {
	ValveID       string
	Regime        string
	Target        float64
	Sensor        float64
	FeltTemp      float64
	Error         float64
	ErrorExp      float64
	RealError     float64
	Position      float64
	RawPosition   float64
	SweetSpot     float64
	FeltTempDelta float64
	Slope         float64
	Timestamp     time.Time
}

// DispatchSample records one actuation queue dispatch attempt.
type DispatchSample struct {
	Actuator  string
	Value     int
	Urgent    bool
	Succeeded bool
	Timestamp time.Time
}

// WriteValveSample queues one controller tick.
func (c *Client) WriteValveSample(s ValveSample) { c.write(valvePoint(s)) }

// WriteDispatch queues the outcome of one queue dispatch.
func (c *Client) WriteDispatch(s DispatchSample) { c.write(dispatchPoint(s)) }

func valvePoint(s ValveSample) *write.Point {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementValve,
		map[string]string{
			"valve_id": s.ValveID,
			"regime":   s.Regime,
		},
		map[string]interface{}{
			"target_temperature": s.Target,
			"sensor_temperature": s.Sensor,
			"felt_temperature":   s.FeltTemp,
			"error":              s.Error,
			"error_exp":          s.ErrorExp,
			"real_error":         s.RealError,
			"position":           s.Position,
			"raw_position":       s.RawPosition,
			"sweet_spot":         s.SweetSpot,
			"felt_temp_delta":    s.FeltTempDelta,
			"slope":              s.Slope,
		},
		ts,
	)
}

func dispatchPoint(s DispatchSample) *write.Point {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	result := "ok"
	if !s.Succeeded {
		result = "failed"
	}
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"actuator": s.Actuator,
			"result":   result,
		},
		map[string]interface{}{
			"value":  s.Value,
			"urgent": s.Urgent,
		},
		ts,
	)
}
