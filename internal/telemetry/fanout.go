package telemetry

import "context"

// Fanout writes to a primary sink and copies to any number of mirrors.
// Only the primary's errors are returned; mirror errors are logged.
type Fanout struct {
	primary Sink
	mirrors []Sink
	logger  Logger
}

// NewFanout creates a Fanout around primary.
func NewFanout(primary Sink, mirrors ...Sink) *Fanout {
	return &Fanout{
		primary: primary,
		mirrors: mirrors,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for mirror failures.
func (f *Fanout) SetLogger(logger Logger) {
	f.logger = logger
}

// EnsureSchema ensures the schema on the primary, then on every mirror.
func (f *Fanout) EnsureSchema(ctx context.Context, schema Schema) error {
	if err := f.primary.EnsureSchema(ctx, schema); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.EnsureSchema(ctx, schema); err != nil {
			f.logger.Warn("telemetry mirror rejected schema", "device_id", schema.DeviceID, "error", err)
		}
	}
	return nil
}

// Insert writes row to the primary, then to every mirror. Mirrors receive
// the row even when the primary fails.
func (f *Fanout) Insert(ctx context.Context, deviceID string, row Row) error {
	err := f.primary.Insert(ctx, deviceID, row)
	for _, m := range f.mirrors {
		if mErr := m.Insert(ctx, deviceID, row); mErr != nil {
			f.logger.Warn("telemetry mirror insert failed", "device_id", deviceID, "error", mErr)
		}
	}
	return err
}
