package device

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// =============================================================================
// Command channel
// =============================================================================

type publishedMessage struct {
	Topic   string
	Payload []byte
}

// mockChannel records subscriptions and publications and lets tests
// deliver messages to registered handlers.
type mockChannel struct {
	mu            sync.Mutex
	subscriptions []string
	handlers      map[string]MessageHandler
	published     []publishedMessage
	publishErr    error
	subscribeErr  error
}

func newMockChannel() *mockChannel {
	return &mockChannel{handlers: make(map[string]MessageHandler)}
}

func (m *mockChannel) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, topic)
	return nil
}

func (m *mockChannel) RegisterHandler(topic string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockChannel) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

// SimulateMessage delivers payload to the handler registered for topic.
func (m *mockChannel) SimulateMessage(topic string, payload string) error {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()
	if handler == nil {
		return errors.New("no handler for " + topic)
	}
	return handler(topic, []byte(payload))
}

func (m *mockChannel) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscriptions...)
}

// Messages decodes every published payload.
func (m *mockChannel) Messages(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, 0, len(m.published))
	for _, p := range m.published {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(p.Payload, &msg))
		out = append(out, msg)
	}
	return out
}

// =============================================================================
// Config store
// =============================================================================

// memStore is an in-memory ConfigStore.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
	setErr error
}

func newMemStore(values map[string]string) *memStore {
	if values == nil {
		values = make(map[string]string)
	}
	return &memStore{values: values}
}

func (s *memStore) Get(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *memStore) GetInt(key string, def int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.values[key] = value
	return nil
}

func (s *memStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// =============================================================================
// Telemetry sink
// =============================================================================

type recordingSink struct {
	mu        sync.Mutex
	schemas   []telemetry.Schema
	rows      []telemetry.Row
	insertErr error
}

func (s *recordingSink) EnsureSchema(_ context.Context, schema telemetry.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas = append(s.schemas, schema)
	return nil
}

func (s *recordingSink) Insert(_ context.Context, _ string, row telemetry.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingSink) Rows() []telemetry.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Row(nil), s.rows...)
}

// =============================================================================
// Hardware
// =============================================================================

type acquisition struct {
	reading Reading
	err     error
}

// scriptedSensor returns its script in order, then repeats the last entry.
type scriptedSensor struct {
	mu     sync.Mutex
	script []acquisition
	calls  int
}

func (s *scriptedSensor) Acquire(context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.script)-1)
	s.calls++
	return s.script[i].reading, s.script[i].err
}

// recordingActuator records every applied status.
type recordingActuator struct {
	mu      sync.Mutex
	applied []Status
}

func (a *recordingActuator) Apply(_ context.Context, status Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, status)
	return nil
}

// =============================================================================
// Sleeper
// =============================================================================

// recordingSleeper records requested durations without sleeping. After
// limit sleeps it cancels the run. onSleep, when set, runs inside the
// n-th sleep (1-based).
type recordingSleeper struct {
	mu        sync.Mutex
	durations []time.Duration
	limit     int
	cancel    context.CancelFunc
	onSleep   func(n int)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	n := len(s.durations)
	s.mu.Unlock()

	if s.onSleep != nil {
		s.onSleep(n)
	}
	if n >= s.limit {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

func (s *recordingSleeper) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations...)
}

// =============================================================================
// Logger
// =============================================================================

type logEntry struct {
	level string
	msg   string
	args  []any
}

// attr returns the value following key in the entry's args.
func (e logEntry) attr(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// stepErrors returns the errors logged for step.
func (l *recordingLogger) stepErrors(step string) []error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, e := range l.entries {
		if e.attr("step") != step {
			continue
		}
		if err, ok := e.attr("error").(error); ok {
			errs = append(errs, err)
		}
	}
	return errs
}

// =============================================================================
// Helpers
// =============================================================================

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func testIdentity(t *testing.T, id string) Identity {
	t.Helper()
	identity, err := NewIdentity(id, "4jggokgpepnvsb2uv4s40d59ov")
	require.NoError(t, err)
	return identity
}

// runCycles runs rt until the sleeper has been called limit times.
func runCycles(t *testing.T, rt *Runtime, limit int, onSleep func(n int)) *recordingSleeper {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := &recordingSleeper{limit: limit, cancel: cancel, onSleep: onSleep}
	rt.sleep = sleeper.Sleep
	rt.now = func() time.Time { return fixedNow }

	require.NoError(t, rt.Run(ctx))
	return sleeper
}

var climateReading = Reading{QuantityTemperature: 21.5, QuantityHumidity: 40.2}
