package hardware

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fieldnode/internal/device"
)

// Default wiring per profile.
const (
	DefaultClimatePin   = 4
	DefaultMoisturePin  = 3
	DefaultMoistureGain = 1
	DefaultPumpPin      = 17
)

// SettingsStore is the part of the settings store read by this package.
type SettingsStore interface {
	GetInt(key string, def int) (int, error)
}

// Settings is the wiring of one device.
type Settings struct {
	Pin  int
	Gain int
}

// LoadSettings reads {id}_PIN and, for moisture probes, {id}_GAIN.
func LoadSettings(st SettingsStore, id, profile string) (Settings, error) {
	var s Settings
	pinDefault := DefaultClimatePin
	switch profile {
	case device.ProfileClimate:
	case device.ProfileMoisture:
		pinDefault = DefaultMoisturePin
	case device.ProfilePump:
		pinDefault = DefaultPumpPin
	default:
		return s, fmt.Errorf("%w: unknown profile %q", device.ErrConfig, profile)
	}

	pin, err := st.GetInt(id+"_PIN", pinDefault)
	if err != nil {
		return s, fmt.Errorf("%w: %s_PIN: %w", device.ErrConfig, id, err)
	}
	if pin < 0 {
		return s, fmt.Errorf("%w: %s_PIN must not be negative", device.ErrConfig, id)
	}
	s.Pin = pin

	if profile == device.ProfileMoisture {
		gain, err := st.GetInt(id+"_GAIN", DefaultMoistureGain)
		if err != nil {
			return s, fmt.Errorf("%w: %s_GAIN: %w", device.ErrConfig, id, err)
		}
		if gain <= 0 {
			return s, fmt.Errorf("%w: %s_GAIN must be positive", device.ErrConfig, id)
		}
		s.Gain = gain
	}
	return s, nil
}
