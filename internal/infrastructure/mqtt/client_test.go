package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker tests need a running Mosquitto at 127.0.0.1:1883 and are skipped otherwise.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fieldnode-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay:   1,
			MaxDelay:       5,
			ConnectTimeout: 1,
		},
	}
}

// connectOrSkip dials the test broker and skips the test when it is absent.
func connectOrSkip(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	client, err := Connect(cfg, "test-node")
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	return client
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ pahomqtt.Message = fakeMessage{}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warnings = append(l.warnings, msg)
	l.mu.Unlock()
}

func TestNodeStatusTopic(t *testing.T) {
	if got := (Topics{}).NodeStatus("greenhouse-01"); got != "fieldnode/greenhouse-01/status" {
		t.Errorf("NodeStatus() = %q, want %q", got, "fieldnode/greenhouse-01/status")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "node"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "fieldnode-test" {
		t.Errorf("ClientID = %q, want fieldnode-test", opts.ClientID)
	}
	if opts.Username != "node" {
		t.Errorf("Username = %q, want node", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, want false (first dial is retried by Session)")
	}
	if !opts.Order {
		t.Error("Order = false, want ordered delivery")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("Scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want TLS settings")
	}
}

func TestStatusPayload(t *testing.T) {
	tests := []struct {
		name   string
		status string
		reason string
	}{
		{"online", statusOnline, ""},
		{"graceful offline", statusOffline, reasonShutdown},
		{"will", statusOffline, reasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got NodeStatus
			if err := json.Unmarshal(statusPayload("c1", tt.status, tt.reason), &got); err != nil {
				t.Fatalf("statusPayload() is not JSON: %v", err)
			}
			if got.Status != tt.status || got.ClientID != "c1" || got.Reason != tt.reason {
				t.Errorf("statusPayload() = %+v", got)
			}
			if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
				t.Errorf("Timestamp = %q, want RFC 3339", got.Timestamp)
			}
		})
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	callback := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	callback(nil, fakeMessage{topic: "/k/d/cmd", payload: []byte("{}")})

	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want one panic entry", logger.errors)
	}
}

func TestWrapHandler_LogsHandlerError(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	var gotTopic string
	var gotPayload []byte
	callback := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("bad payload")
	})
	callback(nil, fakeMessage{topic: "/k/d/cmd", payload: []byte(`{"x":1}`)})

	if gotTopic != "/k/d/cmd" || string(gotPayload) != `{"x":1}` {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
	if len(logger.warnings) != 1 {
		t.Errorf("logged warnings = %v, want one", logger.warnings)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestAddRoute_Validation(t *testing.T) {
	client := &Client{}

	if err := client.AddRoute("", func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("AddRoute(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.AddRoute("/k/d/cmd", nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("AddRoute(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.AddRoute("/k/d/cmd", func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("AddRoute() on unconnected client error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Disconnected(t *testing.T) {
	client := &Client{}

	if err := client.PublishAsync("", nil, 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishAsync(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.PublishAsync("a/b", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("PublishAsync(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.PublishAsync("a/b", make([]byte, maxPayloadSize+1), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishAsync(oversized) error = %v, want ErrPublishFailed", err)
	}
	if err := client.PublishAsync("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishAsync() error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg, "test-node")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.PublishAsync("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishAsync() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]byte)}

	tests := []struct {
		topic string
		qos   byte
		want  error
	}{
		{"", 1, ErrInvalidTopic},
		{"/k/d/cmd", 3, ErrInvalidQoS},
		{"/k/d/cmd", 1, ErrNotConnected},
	}
	for _, tt := range tests {
		if err := client.Subscribe(tt.topic, tt.qos); !errors.Is(err, tt.want) {
			t.Errorf("Subscribe(%q, %d) error = %v, want %v", tt.topic, tt.qos, err, tt.want)
		}
	}
	if got := client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none after failures", got)
	}
}

func TestSubscribeTracking(t *testing.T) {
	client := connectOrSkip(t, testConfig())
	defer client.Close()

	for _, topic := range []string{"/k/pump_01/cmd", "/k/dht22_01/cmd"} {
		if err := client.Subscribe(topic, 1); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}
	got := client.Subscriptions()
	if len(got) != 2 || got[0] != "/k/dht22_01/cmd" || got[1] != "/k/pump_01/cmd" {
		t.Errorf("Subscriptions() = %v, want both topics sorted", got)
	}
}

func TestChannelRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "fieldnode-test-sub"
	sub := connectOrSkip(t, cfg)
	defer sub.Close()

	cfg.Broker.ClientID = "fieldnode-test-pub"
	pub := connectOrSkip(t, cfg)
	defer pub.Close()

	topic := "/testkey/dht22_rt/cmd"
	received := make(chan string, 1)

	ch := NewChannel(sub)
	if err := ch.RegisterHandler(topic, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	}); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}
	if err := ch.Subscribe(topic); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := NewChannel(pub).Publish(topic, []byte(`{"setCollectInterval":10}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != `{"setCollectInterval":10}` {
			t.Errorf("received %q", payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for routed message")
	}
}
