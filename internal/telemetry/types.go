package telemetry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ColumnType is the SQL type of a telemetry column.
type ColumnType string

// Supported column types.
const (
	TypeReal    ColumnType = "REAL"
	TypeInteger ColumnType = "INTEGER"
	TypeText    ColumnType = "TEXT"
)

// reservedColumns are created for every table and cannot be redeclared.
var reservedColumns = map[string]bool{"id": true, "timestamp": true}

// reservedTables belong to the node itself.
var reservedTables = map[string]bool{"telemetry_devices": true, "schema_migrations": true}

// identifierPattern admits names that need no escaping inside double quotes.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{0,63}$`)

// Column is one kind-specific column of a device table.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes the table of one device.
type Schema struct {
	DeviceID string
	Kind     string
	Columns  []Column
}

// Row maps column names to values. A nil or missing value is stored as NULL.
type Row map[string]any

// Record is one row read back from a device table.
type Record struct {
	ID        int64
	Timestamp time.Time
	Values    Row
}

// Sink persists device readings.
type Sink interface {
	// EnsureSchema creates the device's table if needed. Calling it again
	// with the same columns is a no-op.
	EnsureSchema(ctx context.Context, schema Schema) error

	// Insert appends one row to the device's table.
	Insert(ctx context.Context, deviceID string, row Row) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Validate checks the device id, column names and column types.
func (s Schema) Validate() error {
	if !validTableName(s.DeviceID) {
		return fmt.Errorf("%w: device id %q", ErrInvalidIdentifier, s.DeviceID)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: device %s has no columns", ErrInvalidIdentifier, s.DeviceID)
	}

	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if !identifierPattern.MatchString(c.Name) || reservedColumns[strings.ToLower(c.Name)] {
			return fmt.Errorf("%w: column %q", ErrInvalidIdentifier, c.Name)
		}
		if seen[strings.ToLower(c.Name)] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidIdentifier, c.Name)
		}
		seen[strings.ToLower(c.Name)] = true

		switch c.Type {
		case TypeReal, TypeInteger, TypeText:
		default:
			return fmt.Errorf("%w: %q for column %s", ErrInvalidColumnType, c.Type, c.Name)
		}
	}
	return nil
}

// signature renders the column set in a canonical form for comparison
// and for the catalog, e.g. "temperature REAL,humidity REAL".
func (s Schema) signature() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + " " + string(c.Type)
	}
	return strings.Join(parts, ",")
}

// validTableName reports whether a device id can name its table.
func validTableName(id string) bool {
	lower := strings.ToLower(id)
	return identifierPattern.MatchString(id) && !reservedTables[lower] && !strings.HasPrefix(lower, "sqlite_")
}

// quoteIdent double-quotes a validated identifier.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
