package hardware

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/nerrad567/gray-logic-fieldnode/internal/device"
)

// ErrSimulatedFault is returned by simulated probes on an injected failure.
var ErrSimulatedFault = errors.New("hardware: simulated read failure")

// SimClimate simulates a temperature/humidity probe drifting around a
// set point.
type SimClimate struct {
	mu          sync.Mutex
	rng         *rand.Rand
	temperature float64
	humidity    float64
	failRate    float64
}

// NewSimClimate creates a simulated climate probe. The pin seeds the
// generator so that two probes drift differently.
func NewSimClimate(settings Settings) *SimClimate {
	return &SimClimate{
		rng:         rand.New(rand.NewPCG(uint64(settings.Pin), 0x5eed)), //nolint:gosec // simulation only
		temperature: 22,
		humidity:    55,
	}
}

// SetFailRate makes a fraction of reads fail, like a real probe missing
// its timing window.
func (s *SimClimate) SetFailRate(rate float64) {
	s.mu.Lock()
	s.failRate = rate
	s.mu.Unlock()
}

// Acquire returns the next point of the random walk.
func (s *SimClimate) Acquire(ctx context.Context) (device.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRate > 0 && s.rng.Float64() < s.failRate {
		return nil, ErrSimulatedFault
	}

	s.temperature = clamp(s.temperature+s.rng.NormFloat64()*0.2, -40, 80)
	s.humidity = clamp(s.humidity+s.rng.NormFloat64()*0.5, 0, 100)
	return device.Reading{
		device.QuantityTemperature: round1(s.temperature),
		device.QuantityHumidity:    round1(s.humidity),
	}, nil
}

// SimMoisture simulates a soil probe drying out slowly and being
// rewetted when it gets too dry.
type SimMoisture struct {
	mu    sync.Mutex
	rng   *rand.Rand
	gain  float64
	level float64
}

// NewSimMoisture creates a simulated moisture probe scaled by the gain.
func NewSimMoisture(settings Settings) *SimMoisture {
	gain := settings.Gain
	if gain <= 0 {
		gain = DefaultMoistureGain
	}
	return &SimMoisture{
		rng:   rand.New(rand.NewPCG(uint64(settings.Pin), 0xd1a7)), //nolint:gosec // simulation only
		gain:  float64(gain),
		level: 60,
	}
}

// Acquire returns the current moisture level.
func (s *SimMoisture) Acquire(ctx context.Context) (device.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level -= s.rng.Float64()
	if s.level < 20 {
		s.level = 80
	}
	return device.Reading{device.QuantityMoisture: s.level * s.gain}, nil
}

// SimRelay logs the state it is asked to apply.
type SimRelay struct {
	pin    int
	logger Logger

	mu      sync.Mutex
	current device.Status
	changes int
}

// NewSimRelay creates a simulated relay on the configured pin.
func NewSimRelay(settings Settings) *SimRelay {
	return &SimRelay{pin: settings.Pin, logger: noopLogger{}}
}

// SetLogger sets the logger for the relay.
func (r *SimRelay) SetLogger(logger Logger) {
	r.logger = logger
}

// Apply records status and logs changes.
func (r *SimRelay) Apply(ctx context.Context, status device.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if status != r.current {
		r.changes++
		r.logger.Info("relay switched", "pin", r.pin, "status", string(status))
	}
	r.current = status
	return nil
}

// Status returns the last applied state.
func (r *SimRelay) Status() device.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Changes returns how many times the state changed.
func (r *SimRelay) Changes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
