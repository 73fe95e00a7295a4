package device

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Kind tags the device variants driven by a Runtime.
type Kind string

// Device kinds.
const (
	KindPeriodicSensor   Kind = "periodic_sensor"
	KindBistableActuator Kind = "bistable_actuator"
)

// Status is the state of a bistable actuator.
type Status string

// Actuator states.
const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOn, StatusOff:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: status %q is neither on nor off", ErrConfig, s)
	}
}

// Flip returns the opposite state.
func (s Status) Flip() Status {
	if s == StatusOn {
		return StatusOff
	}
	return StatusOn
}

// Measured quantities reported by sensors.
const (
	QuantityTemperature = "temperature"
	QuantityHumidity    = "humidity"
	QuantityMoisture    = "moisture"
)

// Reading maps a measured quantity to its value.
type Reading map[string]float64

// clone returns a copy safe to hand to another goroutine.
func (r Reading) clone() Reading {
	if r == nil {
		return nil
	}
	c := make(Reading, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Same allowlists as the configuration loader: ids are table names and
// store key prefixes, keys only appear in topics.
var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{0,63}$`)
	keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)
)

// Identity is the id, API key and derived topics of one device.
// Topics follow the IoT agent convention, keyed by API key and id:
//
//	/json/{key}/{id}/attrs   attributes and acknowledgements out
//	/{key}/{id}/cmd          commands in
type Identity struct {
	ID         string
	Key        string
	AttrsTopic string
	CmdTopic   string
}

// NewIdentity validates id and key and derives the device topics.
func NewIdentity(id, key string) (Identity, error) {
	if !idPattern.MatchString(id) {
		return Identity{}, fmt.Errorf("%w: id %q", ErrInvalidIdentity, id)
	}
	if !keyPattern.MatchString(key) {
		return Identity{}, fmt.Errorf("%w: key %q", ErrInvalidIdentity, key)
	}

	return Identity{
		ID:         id,
		Key:        key,
		AttrsTopic: fmt.Sprintf("/json/%s/%s/attrs", key, id),
		CmdTopic:   fmt.Sprintf("/%s/%s/cmd", key, id),
	}, nil
}

// storeKey returns the ConfigStore key of a device parameter.
func (id Identity) storeKey(field string) string {
	return id.ID + "_" + field
}

// MessageHandler processes a message received on a subscribed topic.
type MessageHandler = func(topic string, payload []byte) error

// CommandChannel is the publish/subscribe transport shared by all devices.
// Handlers run on a goroutine owned by the transport.
type CommandChannel interface {
	Subscribe(topic string) error
	RegisterHandler(topic string, handler MessageHandler) error
	Publish(topic string, payload []byte) error
}

// ConfigStore is the durable KEY=VALUE store holding device settings.
type ConfigStore interface {
	Get(key, def string) string
	GetInt(key string, def int) (int, error)
	Set(key, value string) error
}

// Sensor is the hardware side of a periodic sensor.
type Sensor interface {
	Acquire(ctx context.Context) (Reading, error)
}

// Actuator is the hardware side of a bistable actuator.
type Actuator interface {
	Apply(ctx context.Context, status Status) error
}

// Sleeper suspends the caller for d, returning early with ctx.Err()
// when ctx is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Logger defines the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
