package hardware

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-fieldnode/internal/device"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
)

// Drivers opens the hardware of configured devices. Devices on the same
// serial port share one SerialProbe.
type Drivers struct {
	mu     sync.Mutex
	probes map[string]*SerialProbe
	open   func(cfg config.SerialConfig) (*SerialProbe, error)
	logger Logger
}

// NewDrivers creates an empty driver set.
func NewDrivers() *Drivers {
	return &Drivers{
		probes: make(map[string]*SerialProbe),
		open:   OpenSerial,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger passed to simulated relays.
func (d *Drivers) SetLogger(logger Logger) {
	d.logger = logger
}

// Sensor returns the sensor driver of a climate or moisture device.
func (d *Drivers) Sensor(dc config.DeviceConfig, settings Settings) (device.Sensor, error) {
	switch dc.Driver {
	case config.DriverSim:
		switch dc.Profile {
		case config.ProfileClimate:
			return NewSimClimate(settings), nil
		case config.ProfileMoisture:
			return NewSimMoisture(settings), nil
		}
		return nil, fmt.Errorf("%w: %s is not a sensor profile", device.ErrConfig, dc.Profile)
	case config.DriverSerial:
		probe, err := d.probe(dc.Serial)
		if err != nil {
			return nil, err
		}
		return NewSerialSensor(probe, settings), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", device.ErrConfig, dc.Driver)
	}
}

// Actuator returns the relay driver of a pump device.
func (d *Drivers) Actuator(dc config.DeviceConfig, settings Settings) (device.Actuator, error) {
	switch dc.Driver {
	case config.DriverSim:
		relay := NewSimRelay(settings)
		relay.SetLogger(d.logger)
		return relay, nil
	case config.DriverSerial:
		probe, err := d.probe(dc.Serial)
		if err != nil {
			return nil, err
		}
		return NewSerialRelay(probe, settings), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", device.ErrConfig, dc.Driver)
	}
}

func (d *Drivers) probe(cfg config.SerialConfig) (*SerialProbe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.probes[cfg.Port]; ok {
		return p, nil
	}
	p, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	d.probes[cfg.Port] = p
	return p, nil
}

// Ports returns the serial ports opened so far.
func (d *Drivers) Ports() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ports := make([]string, 0, len(d.probes))
	for port := range d.probes {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	return ports
}

// Close closes every opened serial port.
func (d *Drivers) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for port, p := range d.probes {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", port, err))
		}
		delete(d.probes, port)
	}
	return errors.Join(errs...)
}
