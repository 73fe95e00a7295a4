package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-fieldnode/migrations"
)

var climateSchema = Schema{
	DeviceID: "dht22_01",
	Kind:     "climate",
	Columns: []Column{
		{Name: "temperature", Type: TypeReal},
		{Name: "humidity", Type: TypeReal},
	},
}

// openTestDB opens a migrated database in a temp dir.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "data.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Schema)
		wantErr error
	}{
		{"valid", func(*Schema) {}, nil},
		{"quote in id", func(s *Schema) { s.DeviceID = `x"; DROP TABLE t; --` }, ErrInvalidIdentifier},
		{"hyphen in id", func(s *Schema) { s.DeviceID = "dht22-01" }, ErrInvalidIdentifier},
		{"catalog table", func(s *Schema) { s.DeviceID = "telemetry_devices" }, ErrInvalidIdentifier},
		{"sqlite table", func(s *Schema) { s.DeviceID = "sqlite_master" }, ErrInvalidIdentifier},
		{"no columns", func(s *Schema) { s.Columns = nil }, ErrInvalidIdentifier},
		{"reserved column", func(s *Schema) { s.Columns = []Column{{Name: "timestamp", Type: TypeText}} }, ErrInvalidIdentifier},
		{"duplicate column", func(s *Schema) {
			s.Columns = []Column{{Name: "t", Type: TypeReal}, {Name: "T", Type: TypeReal}}
		}, ErrInvalidIdentifier},
		{"blob type", func(s *Schema) { s.Columns = []Column{{Name: "raw", Type: "BLOB"}} }, ErrInvalidColumnType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := climateSchema
			schema.Columns = append([]Column(nil), climateSchema.Columns...)
			tt.mutate(&schema)

			err := schema.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "dht22_01" (id INTEGER PRIMARY KEY AUTOINCREMENT, timestamp DATETIME DEFAULT CURRENT_TIMESTAMP, "temperature" REAL, "humidity" REAL)`,
		createTableSQL(climateSchema))
}

func TestSQLiteSink_EnsureSchema(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sink := NewSQLiteSink(db)

	require.NoError(t, sink.EnsureSchema(ctx, climateSchema))
	require.NoError(t, sink.EnsureSchema(ctx, climateSchema), "second call is a no-op")

	var kind, columns string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT kind, columns FROM telemetry_devices WHERE device_id = ?", "dht22_01",
	).Scan(&kind, &columns))
	assert.Equal(t, "climate", kind)
	assert.Equal(t, "temperature REAL,humidity REAL", columns)

	ids, err := sink.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dht22_01"}, ids)
}

func TestSQLiteSink_SchemaMismatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	changed := climateSchema
	changed.Columns = []Column{{Name: "temperature", Type: TypeReal}}

	sink := NewSQLiteSink(db)
	require.NoError(t, sink.EnsureSchema(ctx, climateSchema))
	assert.ErrorIs(t, sink.EnsureSchema(ctx, changed), ErrSchemaMismatch)

	// A later process sees the catalog entry.
	restarted := NewSQLiteSink(db)
	assert.ErrorIs(t, restarted.EnsureSchema(ctx, changed), ErrSchemaMismatch)
	assert.NoError(t, restarted.EnsureSchema(ctx, climateSchema))
}

func TestSQLiteSink_CaseOnlyIDConflict(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	upper := climateSchema
	upper.DeviceID = "Dht22_01"

	sink := NewSQLiteSink(db)
	require.NoError(t, sink.EnsureSchema(ctx, upper))
	require.NoError(t, sink.Insert(ctx, "Dht22_01", Row{"temperature": 21.5, "humidity": 40.0}))

	assert.ErrorIs(t, sink.EnsureSchema(ctx, climateSchema), ErrDeviceConflict)
	assert.ErrorIs(t, sink.Insert(ctx, "dht22_01", Row{"temperature": 19.0}), ErrUnknownDevice)

	restarted := NewSQLiteSink(db)
	assert.ErrorIs(t, restarted.EnsureSchema(ctx, climateSchema), ErrDeviceConflict)
	assert.NoError(t, restarted.EnsureSchema(ctx, upper))

	rows, err := sink.Recent(ctx, "Dht22_01", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteSink_InsertAndRecent(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(openTestDB(t))
	require.NoError(t, sink.EnsureSchema(ctx, climateSchema))

	require.NoError(t, sink.Insert(ctx, "dht22_01", Row{"temperature": 21.5, "humidity": 40.0}))
	require.NoError(t, sink.Insert(ctx, "dht22_01", Row{"temperature": nil, "humidity": nil}))
	require.NoError(t, sink.Insert(ctx, "dht22_01", Row{"temperature": 22.0, "humidity": 41.0}))

	records, err := sink.Recent(ctx, "dht22_01", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, 22.0, records[0].Values["temperature"])
	assert.False(t, records[0].Timestamp.IsZero())

	assert.Nil(t, records[1].Values["temperature"], "empty entry stored as NULL")
	assert.Nil(t, records[1].Values["humidity"])

	assert.Equal(t, 21.5, records[2].Values["temperature"])

	limited, err := sink.Recent(ctx, "dht22_01", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSink_TextColumn(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(openTestDB(t))
	require.NoError(t, sink.EnsureSchema(ctx, Schema{
		DeviceID: "pump_01",
		Kind:     "pump",
		Columns:  []Column{{Name: "status", Type: TypeText}},
	}))

	require.NoError(t, sink.Insert(ctx, "pump_01", Row{"status": "on"}))

	records, err := sink.Recent(ctx, "pump_01", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, "on", records[0].Values["status"])
}

func TestSQLiteSink_InsertErrors(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(openTestDB(t))

	assert.ErrorIs(t, sink.Insert(ctx, "dht22_01", Row{"temperature": 1.0}), ErrUnknownDevice)

	require.NoError(t, sink.EnsureSchema(ctx, climateSchema))
	assert.ErrorIs(t, sink.Insert(ctx, "dht22_01", Row{`x") VALUES (1); --`: 1.0}), ErrUnknownColumn)
}

func TestSQLiteSink_RecentFromCatalog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	writer := NewSQLiteSink(db)
	require.NoError(t, writer.EnsureSchema(ctx, climateSchema))
	require.NoError(t, writer.Insert(ctx, "dht22_01", Row{"temperature": 19.0, "humidity": 55.0}))

	reader := NewSQLiteSink(db)
	records, err := reader.Recent(ctx, "dht22_01", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 55.0, records[0].Values["humidity"])

	_, err = reader.Recent(ctx, "nobody", 5)
	assert.ErrorIs(t, err, ErrUnknownDevice)

	_, err = reader.Recent(ctx, `x"--`, 5)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}
