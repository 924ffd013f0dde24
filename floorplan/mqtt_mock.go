package floorplan

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishedMessage is one message recorded by MockClient.Publish
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockClient is an in-memory mqtt.Client. Subscriptions are kept per topic
// and SimulateMessage delivers to them synchronously.
type MockClient struct {
	mu        sync.Mutex
	connected bool
	onConnect mqtt.OnConnectHandler

	connectErr   error
	publishErr   error
	subscribeErr error

	routes    map[string]mqtt.MessageHandler
	published []PublishedMessage
}

// NewMockClient returns a disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{routes: make(map[string]mqtt.MessageHandler)}
}

func (c *MockClient) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// SetConnected forces the connection state without running OnConnect
func (c *MockClient) SetConnected(connected bool) {
	c.locked(func() { c.connected = connected })
}

// SetConnectError makes Connect fail with err
func (c *MockClient) SetConnectError(err error) { c.locked(func() { c.connectErr = err }) }

// SetPublishError makes Publish fail with err
func (c *MockClient) SetPublishError(err error) { c.locked(func() { c.publishErr = err }) }

// SetSubscribeError makes Subscribe fail with err
func (c *MockClient) SetSubscribeError(err error) { c.locked(func() { c.subscribeErr = err }) }

// SetOnConnect registers the handler Connect runs once connected
func (c *MockClient) SetOnConnect(handler mqtt.OnConnectHandler) {
	c.locked(func() { c.onConnect = handler })
}

// Subscribed reports whether topic has a handler
func (c *MockClient) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routes[topic] != nil
}

// GetPublishedMessages returns a copy of everything published so far
func (c *MockClient) GetPublishedMessages() []PublishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PublishedMessage(nil), c.published...)
}

// SimulateMessage hands payload to the handler on topic, if any
func (c *MockClient) SimulateMessage(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.routes[topic]
	c.mu.Unlock()
	if handler != nil {
		handler(c, inboundMessage{topic: topic, payload: payload})
	}
}

func (c *MockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

// Connect succeeds unless a connect error is set. The OnConnect handler runs
// in its own goroutine like paho's.
func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	err := c.connectErr
	handler := c.onConnect
	if err == nil {
		c.connected = true
	}
	c.mu.Unlock()

	if err == nil && handler != nil {
		go handler(c)
	}
	return doneToken{err}
}

func (c *MockClient) Disconnect(uint) { c.SetConnected(false) }

// Publish records the message. string and []byte payloads are kept as bytes.
func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readyLocked(c.publishErr); err != nil {
		return doneToken{err}
	}

	msg := PublishedMessage{Topic: topic, QoS: qos, Retain: retained}
	switch p := payload.(type) {
	case []byte:
		msg.Payload = p
	case string:
		msg.Payload = []byte(p)
	}
	c.published = append(c.published, msg)
	return doneToken{}
}

func (c *MockClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: 0}, callback)
}

func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readyLocked(c.subscribeErr); err != nil {
		return doneToken{err}
	}
	for topic := range filters {
		c.routes[topic] = callback
	}
	return doneToken{}
}

func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.routes, topic)
	}
	return doneToken{}
}

func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.locked(func() { c.routes[topic] = callback })
}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (c *MockClient) readyLocked(injected error) error {
	if !c.connected {
		return mqtt.ErrNotConnected
	}
	return injected
}

// doneToken is an already completed mqtt.Token
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// inboundMessage is what SimulateMessage delivers
type inboundMessage struct {
	topic   string
	payload []byte
}

func (m inboundMessage) Duplicate() bool   { return false }
func (m inboundMessage) Qos() byte         { return 0 }
func (m inboundMessage) Retained() bool    { return false }
func (m inboundMessage) Topic() string     { return m.topic }
func (m inboundMessage) MessageID() uint16 { return 0 }
func (m inboundMessage) Payload() []byte   { return m.payload }
func (m inboundMessage) Ack()              {}
