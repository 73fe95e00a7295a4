package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/gray-logic-fieldnode/internal/device"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
)

// Serial protocol errors.
var (
	// ErrTimeout is returned when the board does not answer in time.
	ErrTimeout = errors.New("hardware: serial read timeout")

	// ErrBoard is returned when the board answers ERR.
	ErrBoard = errors.New("hardware: board error")

	// ErrProtocol is returned for responses that cannot be parsed.
	ErrProtocol = errors.New("hardware: protocol error")
)

// maxLineLength bounds a response line.
const maxLineLength = 256

// Port is the part of serial.Port used by SerialProbe. A read that times
// out returns 0 bytes and no error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var _ Port = serial.Port(nil)

// OpenSerial opens the port described by cfg at 8N1.
func OpenSerial(cfg config.SerialConfig) (*SerialProbe, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	probe, err := NewSerialProbe(port, cfg.ReadTimeout())
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return probe, nil
}

// SerialProbe talks to a probe board over a serial port. Requests are
// serialised, so several devices can share one board.
type SerialProbe struct {
	mu      sync.Mutex
	port    Port
	pending []byte
}

// NewSerialProbe wraps an open port and sets its read timeout.
func NewSerialProbe(port Port, timeout time.Duration) (*SerialProbe, error) {
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialProbe{port: port}, nil
}

// Read asks the board for the values measured on pin.
func (p *SerialProbe) Read(ctx context.Context, pin, gain int) (device.Reading, error) {
	line, err := p.request(ctx, fmt.Sprintf("READ %d %d", pin, gain))
	if err != nil {
		return nil, err
	}
	return parseReading(line)
}

// Set drives pin high (on) or low (off).
func (p *SerialProbe) Set(ctx context.Context, pin int, status device.Status) error {
	line, err := p.request(ctx, fmt.Sprintf("SET %d %s", pin, strings.ToUpper(string(status))))
	if err != nil {
		return err
	}
	if line != "OK" {
		return fmt.Errorf("%w: unexpected answer %q to SET", ErrProtocol, line)
	}
	return nil
}

// Close closes the port.
func (p *SerialProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}

// request writes one command line and returns the answer line.
func (p *SerialProbe) request(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A late answer to an earlier request must not be taken for this one.
	p.pending = p.pending[:0]

	if _, err := p.port.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("writing %q: %w", cmd, err)
	}

	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if reason, ok := strings.CutPrefix(line, "ERR"); ok {
		return "", fmt.Errorf("%w: %s", ErrBoard, strings.TrimSpace(reason))
	}
	return line, nil
}

// readLine reads up to the next newline. Caller holds p.mu.
func (p *SerialProbe) readLine() (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(p.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(p.pending[:i]))
			p.pending = append(p.pending[:0], p.pending[i+1:]...)
			return line, nil
		}
		if len(p.pending) > maxLineLength {
			return "", fmt.Errorf("%w: line longer than %d bytes", ErrProtocol, maxLineLength)
		}

		n, err := p.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("reading answer: %w", err)
		}
		if n == 0 {
			return "", ErrTimeout
		}
		p.pending = append(p.pending, buf[:n]...)
	}
}

// parseReading parses "name=value name=value".
func parseReading(line string) (device.Reading, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty reading", ErrProtocol)
	}

	r := make(device.Reading, len(fields))
	for _, f := range fields {
		name, raw, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: malformed field %q", ErrProtocol, f)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %w", ErrProtocol, name, err)
		}
		r[name] = v
	}
	return r, nil
}

// SerialSensor reads one pin of a SerialProbe.
type SerialSensor struct {
	probe    *SerialProbe
	settings Settings
}

// NewSerialSensor creates a sensor on probe.
func NewSerialSensor(probe *SerialProbe, settings Settings) *SerialSensor {
	return &SerialSensor{probe: probe, settings: settings}
}

// Acquire reads the configured pin.
func (s *SerialSensor) Acquire(ctx context.Context) (device.Reading, error) {
	return s.probe.Read(ctx, s.settings.Pin, s.settings.Gain)
}

// SerialRelay drives one pin of a SerialProbe.
type SerialRelay struct {
	probe *SerialProbe
	pin   int
}

// NewSerialRelay creates a relay on probe.
func NewSerialRelay(probe *SerialProbe, settings Settings) *SerialRelay {
	return &SerialRelay{probe: probe, pin: settings.Pin}
}

// Apply sets the configured pin.
func (r *SerialRelay) Apply(ctx context.Context, status device.Status) error {
	return r.probe.Set(ctx, r.pin, status)
}
