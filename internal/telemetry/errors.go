package telemetry

import "errors"

var (
	// ErrInvalidIdentifier is returned for device ids or column names that
	// cannot be used as SQL identifiers.
	ErrInvalidIdentifier = errors.New("telemetry: invalid identifier")

	// ErrInvalidColumnType is returned for column types other than REAL, INTEGER and TEXT.
	ErrInvalidColumnType = errors.New("telemetry: invalid column type")

	// ErrSchemaMismatch is returned when a device's schema is ensured with
	// a column set different from the one already recorded.
	ErrSchemaMismatch = errors.New("telemetry: schema mismatch")

	// ErrDeviceConflict is returned when a device id differs from a
	// catalogued one only by letter case. SQLite table names ignore case,
	// so both would share one table.
	ErrDeviceConflict = errors.New("telemetry: device id conflict")

	// ErrUnknownDevice is returned by Insert for devices whose schema was never ensured.
	ErrUnknownDevice = errors.New("telemetry: unknown device")

	// ErrUnknownColumn is returned by Insert for row keys outside the schema.
	ErrUnknownColumn = errors.New("telemetry: unknown column")
)
