package mqtt

// Channel adapts a Client to the command channel used by device runtimes:
// subscribe to a topic, route its messages to a handler, publish
// without blocking the caller on broker acknowledgments.
type Channel struct {
	client *Client
	qos    byte
}

// NewChannel creates a Channel publishing and subscribing at the client's
// configured QoS.
func NewChannel(client *Client) *Channel {
	return &Channel{client: client, qos: client.QoS()}
}

// Subscribe subscribes to topic without a callback. Messages reach the
// handler registered for the same topic with RegisterHandler.
func (ch *Channel) Subscribe(topic string) error {
	return ch.client.Subscribe(topic, ch.qos)
}

// RegisterHandler routes messages on topic to handler.
func (ch *Channel) RegisterHandler(topic string, handler func(topic string, payload []byte) error) error {
	return ch.client.AddRoute(topic, handler)
}

// Publish sends payload to topic. Acks are published from inside routed
// handlers, so Publish never waits for the broker.
func (ch *Channel) Publish(topic string, payload []byte) error {
	return ch.client.PublishAsync(topic, payload, ch.qos, false)
}
