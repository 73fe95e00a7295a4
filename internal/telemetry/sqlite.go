package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/database"
)

// SQLiteSink stores each device's readings in its own table:
//
//	CREATE TABLE "<device_id>" (
//	    id INTEGER PRIMARY KEY AUTOINCREMENT,
//	    timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
//	    "<column>" <TYPE>, ...
//	)
//
// Every table is recorded in the telemetry_devices catalog, which must
// exist (it is created by the node's migrations).
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SQLiteSink struct {
	db *database.DB

	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewSQLiteSink creates a sink writing to db.
func NewSQLiteSink(db *database.DB) *SQLiteSink {
	return &SQLiteSink{
		db:      db,
		schemas: make(map[string]Schema),
	}
}

// EnsureSchema creates the device table and its catalog entry once per
// process. A device already in the catalog with a different column set
// yields ErrSchemaMismatch, and an id matching a catalogued one only when
// case is ignored yields ErrDeviceConflict. Existing tables are never altered.
func (s *SQLiteSink) EnsureSchema(ctx context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.schemas[schema.DeviceID]; ok {
		if cached.signature() != schema.signature() {
			return fmt.Errorf("%w: device %s has columns %q, not %q",
				ErrSchemaMismatch, schema.DeviceID, cached.signature(), schema.signature())
		}
		return nil
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var recordedID, recorded string
		err := tx.QueryRowContext(ctx,
			"SELECT device_id, columns FROM telemetry_devices WHERE device_id = ? COLLATE NOCASE", schema.DeviceID,
		).Scan(&recordedID, &recorded)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, createTableSQL(schema)); err != nil {
				return fmt.Errorf("creating table for %s: %w", schema.DeviceID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO telemetry_devices (device_id, table_name, kind, columns, first_seen)
				 VALUES (?, ?, ?, ?, ?)`,
				schema.DeviceID, schema.DeviceID, schema.Kind, schema.signature(),
				time.Now().UTC().Format(time.RFC3339),
			); err != nil {
				return fmt.Errorf("recording %s in catalog: %w", schema.DeviceID, err)
			}
		case err != nil:
			return fmt.Errorf("reading catalog for %s: %w", schema.DeviceID, err)
		case recordedID != schema.DeviceID:
			return fmt.Errorf("%w: %s would share the table of %s", ErrDeviceConflict, schema.DeviceID, recordedID)
		case recorded != schema.signature():
			return fmt.Errorf("%w: device %s has columns %q, not %q",
				ErrSchemaMismatch, schema.DeviceID, recorded, schema.signature())
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.schemas[schema.DeviceID] = schema
	return nil
}

// createTableSQL renders the CREATE TABLE statement of a validated schema.
func createTableSQL(schema Schema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(schema.DeviceID))
	b.WriteString(" (id INTEGER PRIMARY KEY AUTOINCREMENT, timestamp DATETIME DEFAULT CURRENT_TIMESTAMP")
	for _, c := range schema.Columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(string(c.Type))
	}
	b.WriteString(")")
	return b.String()
}

// schemaFor returns the ensured schema of a device.
func (s *SQLiteSink) schemaFor(deviceID string) (Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[deviceID]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return schema, nil
}

// Insert appends row to the device table. Columns missing from row, or
// set to nil, are stored as NULL.
func (s *SQLiteSink) Insert(ctx context.Context, deviceID string, row Row) error {
	schema, err := s.schemaFor(deviceID)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(schema.Columns))
	names := make([]string, len(schema.Columns))
	placeholders := make([]string, len(schema.Columns))
	args := make([]any, len(schema.Columns))
	for i, c := range schema.Columns {
		known[c.Name] = true
		names[i] = quoteIdent(c.Name)
		placeholders[i] = "?"
		args[i] = row[c.Name]
	}
	for name := range row {
		if !known[name] {
			return fmt.Errorf("%w: %s has no column %q", ErrUnknownColumn, deviceID, name)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(deviceID), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", deviceID, err)
	}
	return nil
}

// Recent returns up to limit rows of the device table, newest first.
// Devices known only from the catalog of an earlier run can be read too.
func (s *SQLiteSink) Recent(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	schema, err := s.schemaFor(deviceID)
	if errors.Is(err, ErrUnknownDevice) {
		schema, err = s.catalogSchema(ctx, deviceID)
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT id, timestamp, %s FROM %s ORDER BY id DESC LIMIT ?",
		strings.Join(names, ", "), quoteIdent(deviceID))

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", deviceID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		values := make([]any, len(schema.Columns))
		dest := []any{&rec.ID, &rec.Timestamp}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", deviceID, err)
		}

		rec.Values = make(Row, len(schema.Columns))
		for i, c := range schema.Columns {
			rec.Values[c.Name] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", deviceID, err)
	}
	return records, nil
}

// catalogSchema rebuilds a schema from its telemetry_devices entry.
func (s *SQLiteSink) catalogSchema(ctx context.Context, deviceID string) (Schema, error) {
	if !validTableName(deviceID) {
		return Schema{}, fmt.Errorf("%w: device id %q", ErrInvalidIdentifier, deviceID)
	}

	schema := Schema{DeviceID: deviceID}
	var signature string
	err := s.db.QueryRowContext(ctx,
		"SELECT kind, columns FROM telemetry_devices WHERE device_id = ?", deviceID,
	).Scan(&schema.Kind, &signature)
	if errors.Is(err, sql.ErrNoRows) {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if err != nil {
		return Schema{}, fmt.Errorf("reading catalog for %s: %w", deviceID, err)
	}

	for _, part := range strings.Split(signature, ",") {
		name, typ, ok := strings.Cut(part, " ")
		if !ok {
			return Schema{}, fmt.Errorf("%w: catalog entry %q for %s", ErrSchemaMismatch, signature, deviceID)
		}
		schema.Columns = append(schema.Columns, Column{Name: name, Type: ColumnType(typ)})
	}
	if err := schema.Validate(); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// Devices lists the device ids recorded in the catalog.
func (s *SQLiteSink) Devices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT device_id FROM telemetry_devices ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
