package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/influxdb"
)

// PointWriter is the part of influxdb.Client used by InfluxMirror.
type PointWriter interface {
	WriteTelemetry(deviceID, kind string, fields map[string]any, timestamp time.Time)
}

var _ PointWriter = (*influxdb.Client)(nil)

// InfluxMirror copies rows to InfluxDB as telemetry points tagged with the
// device id and kind. Writes are batched by the client and never block.
type InfluxMirror struct {
	writer PointWriter
	now    func() time.Time

	mu    sync.RWMutex
	kinds map[string]string
}

// NewInfluxMirror creates a mirror writing through w.
func NewInfluxMirror(w PointWriter) *InfluxMirror {
	return &InfluxMirror{
		writer: w,
		now:    time.Now,
		kinds:  make(map[string]string),
	}
}

// EnsureSchema remembers the device kind used to tag its points.
func (m *InfluxMirror) EnsureSchema(_ context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.kinds[schema.DeviceID] = schema.Kind
	m.mu.Unlock()
	return nil
}

// Insert writes the non-nil values of row as one point. A row with no
// values (a failed first acquisition) produces no point.
func (m *InfluxMirror) Insert(_ context.Context, deviceID string, row Row) error {
	m.mu.RLock()
	kind, ok := m.kinds[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	fields := make(map[string]any, len(row))
	for k, v := range row {
		if v != nil {
			fields[k] = v
		}
	}
	m.writer.WriteTelemetry(deviceID, kind, fields, m.now())
	return nil
}
