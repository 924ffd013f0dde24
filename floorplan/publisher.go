package floorplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 2 * time.Second

// ErrNotConnected is returned when publishing without a live MQTT connection
var ErrNotConnected = errors.New("MQTT client not connected")

// SelectionMessage is published whenever the user selects a bound entity
type SelectionMessage struct {
	SelectionID string `json:"selectionId"`
	Timestamp   int64  `json:"timestamp"`
}

// Publisher publishes selection events to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *SelectionMessage
	mu            sync.RWMutex
}

// NewPublisher creates a selection publisher. MQTT_PUBLISH_PREFIX overrides
// prefix; an empty prefix falls back to the default. A nil client disables
// publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        false,
	}
}

// SelectionTopic returns the topic selections are published on
func (p *Publisher) SelectionTopic() string {
	return p.publishPrefix + "/selection"
}

// PublishSelection publishes one selection identity
func (p *Publisher) PublishSelection(ctx context.Context, id SelectionID) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	msg := &SelectionMessage{
		SelectionID: fmt.Sprint(id),
		Timestamp:   time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling selection: %w", err)
	}

	p.mu.RLock()
	qos, retain := p.qos, p.retain
	p.mu.RUnlock()

	topic := p.SelectionTopic()
	token := p.client.Publish(topic, qos, retain, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("publishing to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	log.Printf("[MQTT] published selection %s", msg.SelectionID)
	return nil
}

// LastSelection returns the most recently published selection
func (p *Publisher) LastSelection() (SelectionMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return SelectionMessage{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.mu.Lock()
		p.qos = qos
		p.mu.Unlock()
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	p.retain = retain
	p.mu.Unlock()
}

// MQTTHost is the selection host used when the visual runs as a service:
// identities are deterministic UUIDs and selections go out over MQTT.
type MQTTHost struct {
	publisher *Publisher
}

// NewMQTTHost creates a host that publishes through p. A nil publisher still
// issues identities but every Select fails.
func NewMQTTHost(p *Publisher) *MQTTHost {
	return &MQTTHost{publisher: p}
}

// NewSelectionIDBuilder returns the UUID identity builder
func (h *MQTTHost) NewSelectionIDBuilder() SelectionIDBuilder {
	return uuidBuilder{}
}

// Select publishes the identity
func (h *MQTTHost) Select(ctx context.Context, id SelectionID) error {
	if h.publisher == nil {
		return ErrNotConnected
	}
	return h.publisher.PublishSelection(ctx, id)
}

// uuidBuilder derives name-based UUIDs so the same row or category always
// yields the same identity.
type uuidBuilder struct{}

// ForTableRow needs a snapshot id to anchor the row identity
func (uuidBuilder) ForTableRow(snap *Snapshot, row int) (SelectionID, error) {
	if snap == nil || snap.ID == "" {
		return nil, errors.New("table row identity needs a snapshot id")
	}
	if row < 0 || row >= len(snap.Rows) {
		return nil, fmt.Errorf("row %d out of range", row)
	}
	name := fmt.Sprintf("%s/row/%d", snap.ID, row)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(), nil
}

// ForCategory builds an identity from the category value in column
func (uuidBuilder) ForCategory(snap *Snapshot, column, row int) (SelectionID, error) {
	if snap == nil || column < 0 || column >= len(snap.Columns) {
		return nil, fmt.Errorf("column %d out of range", column)
	}
	value := snap.Cell(row, column).Text()
	if value == "" {
		return nil, fmt.Errorf("row %d has no category value", row)
	}
	col := snap.Columns[column]
	name := col.QueryName
	if name == "" {
		name = col.DisplayName
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("category/"+name+"/"+value)).String(), nil
}
