package floorplan

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// UpdateHandler is called for every message on the update topic. payload is
// nil when decoding failed; raw is the undecoded message body.
type UpdateHandler func(raw []byte, payload *UpdatePayload, err error)

// MQTTClient manages the MQTT connection and the host update subscription
type MQTTClient struct {
	client        mqtt.Client
	config        *Config
	updateHandler UpdateHandler
	isConnected   bool
	mu            sync.RWMutex
}

// InitMQTT creates and connects the MQTT client. If neither MQTT_BROKER nor
// mqtt.broker is set, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, handler UpdateHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		config = DefaultConfig()
	}

	client := &MQTTClient{
		config:        config,
		updateHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "planbind"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Updates must be rendered in arrival order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// UpdateTopic returns the topic host updates arrive on
func (c *MQTTClient) UpdateTopic() string {
	if c.config != nil && c.config.MQTT.UpdateTopic != "" {
		return c.config.MQTT.UpdateTopic
	}
	return DefaultUpdateTopic
}

// onConnect subscribes to the update topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if err := subscribeUpdates(client, c.UpdateTopic(), c.createUpdateHandler()); err != nil {
		log.Printf("[MQTT] %v", err)
	}
}

// Subscribe registers the update handler on the current connection
func (c *MQTTClient) Subscribe() error {
	if c.client == nil || !c.client.IsConnected() {
		return ErrNotConnected
	}
	return subscribeUpdates(c.client, c.UpdateTopic(), c.createUpdateHandler())
}

func subscribeUpdates(client mqtt.Client, topic string, handler mqtt.MessageHandler) error {
	log.Printf("[MQTT] subscribing to %s", topic)
	token := client.Subscribe(topic, 0, handler)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("error subscribing to %s: %w", topic, token.Error())
	}
	log.Printf("[MQTT] subscribed to %s", topic)
	return nil
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// createUpdateHandler decodes each update message and hands it on
func (c *MQTTClient) createUpdateHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		raw := msg.Payload()
		log.Printf("[MQTT] received update (topic: %s, size: %d bytes)", msg.Topic(), len(raw))

		payload, err := DecodeUpdatePayload(raw)
		if err != nil {
			log.Printf("[MQTT] Warning: could not decode update: %v", err)
		}
		if c.updateHandler != nil {
			c.updateHandler(raw, payload, err)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithMock wraps an existing mqtt.Client, for tests
func NewMQTTClientWithMock(client mqtt.Client, config *Config, handler UpdateHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		config:        config,
		updateHandler: handler,
	}
}
