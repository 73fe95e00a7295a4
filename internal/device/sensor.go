package device

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// Sensor profiles.
const (
	ProfileClimate  = "climate"
	ProfileMoisture = "moisture"
	ProfilePump     = "pump"
)

// sensorProfile fixes the quantities, table columns and attrs payload of
// one kind of periodic sensor.
type sensorProfile struct {
	name       string
	quantities []string
	columns    []telemetry.Column
	row        func(r Reading) telemetry.Row
	payload    func(r Reading) map[string]any
}

var climateProfile = sensorProfile{
	name:       ProfileClimate,
	quantities: []string{QuantityTemperature, QuantityHumidity},
	columns: []telemetry.Column{
		{Name: "temperature", Type: telemetry.TypeReal},
		{Name: "humidity", Type: telemetry.TypeReal},
	},
	row: func(r Reading) telemetry.Row {
		return telemetry.Row{
			"temperature": value(r, QuantityTemperature),
			"humidity":    value(r, QuantityHumidity),
		}
	},
	payload: func(r Reading) map[string]any {
		return map[string]any{"t": r[QuantityTemperature], "rh": r[QuantityHumidity]}
	},
}

// Moisture is reported and stored as a whole number.
var moistureProfile = sensorProfile{
	name:       ProfileMoisture,
	quantities: []string{QuantityMoisture},
	columns: []telemetry.Column{
		{Name: "moisture", Type: telemetry.TypeReal},
	},
	row: func(r Reading) telemetry.Row {
		m, ok := r[QuantityMoisture]
		if !ok {
			return telemetry.Row{"moisture": nil}
		}
		return telemetry.Row{"moisture": int64(math.Trunc(m))}
	},
	payload: func(r Reading) map[string]any {
		return map[string]any{"m": int64(math.Trunc(r[QuantityMoisture]))}
	},
}

// value returns r[k], or nil when absent.
func value(r Reading, k string) any {
	v, ok := r[k]
	if !ok {
		return nil
	}
	return v
}

// PeriodicSensor acquires a reading every collect interval.
//
// Thread Safety:
//   - Step, Row, Payload and Advance are called from the device loop only.
//   - The collect interval and last reading may be read from any goroutine.
type PeriodicSensor struct {
	identity Identity
	profile  sensorProfile
	hw       Sensor
	collect  *Parameter
	last     atomic.Pointer[Reading]
}

// NewClimateSensor creates a temperature/humidity sensor. The collect
// interval is read from {id}_collectInterval (default 5 seconds).
func NewClimateSensor(id Identity, hw Sensor, st ConfigStore) (*PeriodicSensor, error) {
	return newPeriodicSensor(id, climateProfile, hw, st)
}

// NewMoistureSensor creates a soil moisture sensor. The collect interval
// is read from {id}_collectInterval (default 5 seconds).
func NewMoistureSensor(id Identity, hw Sensor, st ConfigStore) (*PeriodicSensor, error) {
	return newPeriodicSensor(id, moistureProfile, hw, st)
}

func newPeriodicSensor(id Identity, profile sensorProfile, hw Sensor, st ConfigStore) (*PeriodicSensor, error) {
	collect, err := loadParameter(st, id, "setCollectInterval", "collectInterval", "ci", DefaultCollectInterval)
	if err != nil {
		return nil, err
	}
	return &PeriodicSensor{
		identity: id,
		profile:  profile,
		hw:       hw,
		collect:  collect,
	}, nil
}

// Identity returns the device identity.
func (s *PeriodicSensor) Identity() Identity { return s.identity }

// Kind returns KindPeriodicSensor.
func (s *PeriodicSensor) Kind() Kind { return KindPeriodicSensor }

// Profile returns the sensor profile name.
func (s *PeriodicSensor) Profile() string { return s.profile.name }

// Schema returns the telemetry table layout of the profile.
func (s *PeriodicSensor) Schema() telemetry.Schema {
	return telemetry.Schema{
		DeviceID: s.identity.ID,
		Kind:     s.profile.name,
		Columns:  s.profile.columns,
	}
}

// CollectInterval returns the current collect interval.
func (s *PeriodicSensor) CollectInterval() time.Duration {
	return s.collect.Duration()
}

// LastReading returns a copy of the most recent reading, nil before the
// first successful acquisition.
func (s *PeriodicSensor) LastReading() Reading {
	r := s.last.Load()
	if r == nil {
		return nil
	}
	return r.clone()
}

// Step acquires a reading. On failure the previous reading is kept.
func (s *PeriodicSensor) Step(ctx context.Context) error {
	r, err := s.hw.Acquire(ctx)
	if err != nil {
		return err
	}
	for _, q := range s.profile.quantities {
		if _, ok := r[q]; !ok {
			return fmt.Errorf("reading has no %s", q)
		}
	}

	r = r.clone()
	s.last.Store(&r)
	return nil
}

// Row returns the last reading in table columns. Before the first
// successful acquisition every column is nil.
func (s *PeriodicSensor) Row() telemetry.Row {
	return s.profile.row(s.LastReading())
}

// Payload returns the attrs message, false before the first reading.
func (s *PeriodicSensor) Payload(now time.Time) (map[string]any, bool) {
	r := s.LastReading()
	if r == nil {
		return nil, false
	}
	msg := s.profile.payload(r)
	msg["ci"] = s.collect.Seconds()
	msg["timestamp"] = unixSeconds(now)
	return msg, true
}

// Interval returns the collect interval.
func (s *PeriodicSensor) Interval() time.Duration {
	return s.collect.Duration()
}

// Advance does nothing for a sensor.
func (s *PeriodicSensor) Advance() {}

// Parameters returns the collect interval.
func (s *PeriodicSensor) Parameters() []*Parameter {
	return []*Parameter{s.collect}
}

// Describe returns the id, reading and collect interval.
func (s *PeriodicSensor) Describe() map[string]any {
	return map[string]any{
		"id":              s.identity.ID,
		"profile":         s.profile.name,
		"timestamp":       unixSeconds(time.Now()),
		"reading":         s.LastReading(),
		"collectInterval": s.collect.Seconds(),
	}
}
