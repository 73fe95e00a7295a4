package device

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity("dht22_01", "4jggokgpepnvsb2uv4s40d59ov")
	require.NoError(t, err)

	assert.Equal(t, "/json/4jggokgpepnvsb2uv4s40d59ov/dht22_01/attrs", id.AttrsTopic)
	assert.Equal(t, "/4jggokgpepnvsb2uv4s40d59ov/dht22_01/cmd", id.CmdTopic)
	assert.Equal(t, "dht22_01_collectInterval", id.storeKey("collectInterval"))
}

func TestNewIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
		key  string
	}{
		{"empty id", "", "key"},
		{"hyphen in id", "dht22-01", "key"},
		{"wildcard in id", "dht22/#", "key"},
		{"quote in id", `x"--`, "key"},
		{"empty key", "dht22_01", ""},
		{"slash in key", "dht22_01", "a/b"},
		{"plus in key", "dht22_01", "a+b"},
		{"space in key", "dht22_01", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIdentity(tt.id, tt.key)
			assert.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
}

func TestParseStatus(t *testing.T) {
	on, err := ParseStatus("on")
	require.NoError(t, err)
	assert.Equal(t, StatusOn, on)
	assert.Equal(t, StatusOff, on.Flip())
	assert.Equal(t, StatusOn, on.Flip().Flip())

	_, err = ParseStatus("ON")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{`5`, 5, false},
		{` 60 `, 60, false},
		{`"15"`, 15, false},
		{`"0"`, 0, true},
		{`0`, 0, true},
		{`-1`, 0, true},
		{`1.5`, 0, true},
		{`1e3`, 0, true},
		{`"ten"`, 0, true},
		{`null`, 0, true},
		{`[5]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseInterval(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstruction_StoredSettings(t *testing.T) {
	id, err := NewIdentity("dht22_01", "key")
	require.NoError(t, err)

	sensor, err := NewClimateSensor(id, steadySensor(), newMemStore(map[string]string{
		"dht22_01_collectInterval": "30",
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(30), sensor.Parameters()[0].Seconds())

	for _, bad := range []string{"abc", "0", "-4"} {
		_, err := NewClimateSensor(id, steadySensor(), newMemStore(map[string]string{
			"dht22_01_collectInterval": bad,
		}))
		assert.ErrorIs(t, err, ErrConfig, "stored value %q", bad)
	}

	pumpID, err := NewIdentity("pump_01", "key")
	require.NoError(t, err)
	_, err = NewPumpActuator(pumpID, &recordingActuator{}, newMemStore(map[string]string{
		"pump_01_status": "maybe",
	}))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSchemas(t *testing.T) {
	id, err := NewIdentity("dht22_01", "key")
	require.NoError(t, err)
	sensor, err := NewClimateSensor(id, steadySensor(), newMemStore(nil))
	require.NoError(t, err)

	schema := sensor.Schema()
	assert.NoError(t, schema.Validate())
	assert.Equal(t, "climate", schema.Kind)
	assert.Len(t, schema.Columns, 2)

	pumpID, err := NewIdentity("pump_01", "key")
	require.NoError(t, err)
	pump, err := NewPumpActuator(pumpID, &recordingActuator{}, newMemStore(nil))
	require.NoError(t, err)
	assert.NoError(t, pump.Schema().Validate())
	assert.Equal(t, KindBistableActuator, pump.Kind())
}
