package device

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// Device is the capability set a Runtime drives through its cycle.
// PeriodicSensor and BistableActuator implement it.
type Device interface {
	Identity() Identity
	Kind() Kind

	// Profile is the device profile: climate, moisture or pump.
	Profile() string

	// Schema describes the telemetry table of the device.
	Schema() telemetry.Schema

	// Step acquires a reading or applies the current status.
	Step(ctx context.Context) error

	// Row returns the telemetry row of the current cycle.
	Row() telemetry.Row

	// Payload returns the attrs message of the current cycle, or false
	// when there is nothing to publish yet.
	Payload(now time.Time) (map[string]any, bool)

	// Interval is the sleep that ends the current cycle.
	Interval() time.Duration

	// Advance runs after the sleep.
	Advance()

	// Parameters lists the command-settable intervals in priority order.
	Parameters() []*Parameter

	// Describe returns a snapshot of the device for logging.
	Describe() map[string]any
}

// unixSeconds renders t as fractional Unix seconds.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
