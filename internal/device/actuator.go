package device

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// BistableActuator alternates between on and off, holding each state for
// its own interval. The cycle is Apply(status), persist, publish, sleep
// for the interval of that status, flip.
type BistableActuator struct {
	identity Identity
	profile  string
	hw       Actuator
	on       *Parameter
	off      *Parameter
	status   atomic.Value // Status
}

// NewPumpActuator creates a pump relay. Intervals come from
// {id}_onInterval (default 5) and {id}_offInterval (default 10), the
// initial state from {id}_status (default off).
func NewPumpActuator(id Identity, hw Actuator, st ConfigStore) (*BistableActuator, error) {
	on, err := loadParameter(st, id, "setOnInterval", "onInterval", "on", DefaultOnInterval)
	if err != nil {
		return nil, err
	}
	off, err := loadParameter(st, id, "setOffInterval", "offInterval", "off", DefaultOffInterval)
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(st.Get(id.storeKey("status"), string(StatusOff)))
	if err != nil {
		return nil, err
	}

	a := &BistableActuator{
		identity: id,
		profile:  ProfilePump,
		hw:       hw,
		on:       on,
		off:      off,
	}
	a.status.Store(status)
	return a, nil
}

// Identity returns the device identity.
func (a *BistableActuator) Identity() Identity { return a.identity }

// Kind returns KindBistableActuator.
func (a *BistableActuator) Kind() Kind { return KindBistableActuator }

// Profile returns the actuator profile name.
func (a *BistableActuator) Profile() string { return a.profile }

// Schema returns the single status column.
func (a *BistableActuator) Schema() telemetry.Schema {
	return telemetry.Schema{
		DeviceID: a.identity.ID,
		Kind:     a.profile,
		Columns:  []telemetry.Column{{Name: "status", Type: telemetry.TypeText}},
	}
}

// Status returns the current state.
func (a *BistableActuator) Status() Status {
	return a.status.Load().(Status) //nolint:errcheck,forcetypeassert // only Status is stored
}

// OnInterval returns how long the actuator stays on.
func (a *BistableActuator) OnInterval() time.Duration { return a.on.Duration() }

// OffInterval returns how long the actuator stays off.
func (a *BistableActuator) OffInterval() time.Duration { return a.off.Duration() }

// Step applies the current status to the hardware.
func (a *BistableActuator) Step(ctx context.Context) error {
	return a.hw.Apply(ctx, a.Status())
}

// Row records the current status.
func (a *BistableActuator) Row() telemetry.Row {
	return telemetry.Row{"status": string(a.Status())}
}

// Payload returns the status and both intervals. The state is always
// known, so there is always something to publish.
func (a *BistableActuator) Payload(now time.Time) (map[string]any, bool) {
	return map[string]any{
		"s":         string(a.Status()),
		"on":        a.on.Seconds(),
		"off":       a.off.Seconds(),
		"timestamp": unixSeconds(now),
	}, true
}

// Interval returns the on interval while on, the off interval while off.
func (a *BistableActuator) Interval() time.Duration {
	if a.Status() == StatusOn {
		return a.on.Duration()
	}
	return a.off.Duration()
}

// Advance flips the status for the next cycle.
func (a *BistableActuator) Advance() {
	a.status.Store(a.Status().Flip())
}

// Parameters returns the on interval then the off interval; a command
// carrying both only changes the on interval.
func (a *BistableActuator) Parameters() []*Parameter {
	return []*Parameter{a.on, a.off}
}

// Describe returns the id, intervals and status.
func (a *BistableActuator) Describe() map[string]any {
	return map[string]any{
		"id":          a.identity.ID,
		"profile":     a.profile,
		"onInterval":  a.on.Seconds(),
		"offInterval": a.off.Seconds(),
		"status":      string(a.Status()),
	}
}
