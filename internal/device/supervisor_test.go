package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_RunsAllUntilCancelled(t *testing.T) {
	ch := newMockChannel()
	st := newMemStore(map[string]string{
		"dht22_01_collectInterval": "3600",
		"pump_01_offInterval":      "3600",
	})
	sensorSink := &recordingSink{}
	pumpSink := &recordingSink{}

	sensor, err := NewClimateSensor(testIdentity(t, "dht22_01"), steadySensor(), st)
	require.NoError(t, err)
	pump, err := NewPumpActuator(testIdentity(t, "pump_01"), &recordingActuator{}, st)
	require.NoError(t, err)

	sup := NewSupervisor(NewRuntime(sensor, ch, sensorSink, st))
	sup.Add(NewRuntime(pump, ch, pumpSink, st))
	sup.SetLogger(&recordingLogger{})
	assert.Equal(t, 2, sup.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(sensorSink.Rows()) == 1 && len(pumpSink.Rows()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, ch.Subscriptions(), 2)

	// Commands reach the right device while the loops run.
	require.NoError(t, ch.SimulateMessage(pump.Identity().CmdTopic, `{"setOnInterval": 7}`))
	assert.Equal(t, 7*time.Second, pump.OnInterval())
	assert.Equal(t, time.Hour, sensor.CollectInterval())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor.Run did not return after cancellation")
	}
}

func TestSupervisor_SubscriptionFailure(t *testing.T) {
	ch := newMockChannel()
	ch.subscribeErr = errors.New("not connected")
	sink := &recordingSink{}

	sensor, err := NewClimateSensor(testIdentity(t, "dht22_01"), steadySensor(), newMemStore(nil))
	require.NoError(t, err)

	err = NewSupervisor(NewRuntime(sensor, ch, sink, newMemStore(nil))).Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sink.Rows(), "no loop started")
}
