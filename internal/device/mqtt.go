package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errBusClosed = errors.New("device bus closed")

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration
}

// MQTTBus publishes device commands over MQTT and records every state
// report published under the topic prefix.
type MQTTBus struct {
	client mqtt.Client
	prefix string

	mu     sync.RWMutex
	states map[string]State
	now    func() time.Time
}

// NewMQTTBus connects to the broker and subscribes to "<prefix>/#".
func NewMQTTBus(cfg MQTTConfig) (*MQTTBus, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "home"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	b := &MQTTBus{
		prefix: cfg.TopicPrefix,
		states: make(map[string]State),
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("device bus connection lost", "broker", cfg.Broker, "error", err)
		})

	b.client = mqtt.NewClient(opts)
	tok := b.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connecting to device broker %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connecting to device broker %s: %w", cfg.Broker, err)
	}
	slog.Info("device bus connected", "broker", cfg.Broker, "prefix", b.prefix)
	return b, nil
}

// onConnect (re)subscribes after every connect so reconnects keep receiving state.
func (b *MQTTBus) onConnect(c mqtt.Client) {
	topic := b.prefix + "/#"
	tok := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		b.record(msg.Topic(), msg.Payload())
	})
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			slog.Error("device bus subscribe failed", "topic", topic, "error", err)
		}
	}()
}

// record stores a state report. The device id is the last topic segment;
// command topics ending in "/set" are ignored.
func (b *MQTTBus) record(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	id := parts[len(parts)-1]
	if id == "" || id == "set" {
		return
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		slog.Debug("ignoring non-JSON device report", "topic", topic, "error", err)
		return
	}
	b.mu.Lock()
	b.states[id] = State{Values: values, UpdatedAt: b.now()}
	b.mu.Unlock()
}

// Publish sends payload to topic with QoS 1.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	tok := b.client.Publish(topic, 1, false, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	}
}

// State returns the last state reported by id.
func (b *MQTTBus) State(id string) (State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[id]
	return st, ok
}

// Close disconnects from the broker.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(250)
	return nil
}
