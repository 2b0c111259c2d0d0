package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// MQTTEmitter publishes events under <topic>/<event type>.
type MQTTEmitter struct {
	p      config.EventsParameters
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTT(p config.EventsParameters) *MQTTEmitter {
	return &MQTTEmitter{p: p}
}

func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.p.Broker))
	opts.SetClientID(e.p.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		lgr.Logger.Info(
			"mqtt connection established",
			slog.String("broker", e.p.Broker),
			slog.String("clientId", e.p.ClientID),
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		lgr.Logger.Warn(
			"mqtt connection lost, will auto-reconnect",
			slog.String("broker", e.p.Broker),
			slog.Any("error", err),
		)
	}

	e.client = mqtt.NewClient(opts)

	lgr.Logger.Info(
		"connecting to mqtt broker",
		slog.String("broker", e.p.Broker),
	)

	token := e.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) Publish(event model.Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", e.p.Topic, event.Type)
	token := e.client.Publish(topic, qos(event.Type), false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	lgr.Logger.Debug(
		"event published",
		slog.String("topic", topic),
		slog.Int("size", len(payload)),
	)
	return nil
}

func (e *MQTTEmitter) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		lgr.Logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Counts reports published and failed events.
func (e *MQTTEmitter) Counts() (published, errors uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Face recognitions are delivered at least once; counts are best effort.
func qos(t model.EventType) byte {
	if t == model.EventFace {
		return 1
	}
	return 0
}
