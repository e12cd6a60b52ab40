package telemetrypub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// MQTTClient publishes each telemetry record and periodic health record
// to an MQTT broker, with a retained availability topic driven by a will
// message.
type MQTTClient struct {
	config    domain.MQTTConfig
	client    pahomqtt.Client
	mu        sync.RWMutex
	connected atomic.Bool
	msgSent   atomic.Int64
	msgErrors atomic.Int64
}

// NewMQTTClient creates an MQTT client from the resolved configuration.
func NewMQTTClient(config domain.MQTTConfig) *MQTTClient {
	return &MQTTClient{config: config}
}

// Connect establishes the broker connection, publishing an "offline" will
// message on the availability topic and "online" on success.
func (c *MQTTClient) Connect(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opts := pahomqtt.NewClientOptions()
	scheme := "tcp"
	if c.config.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
	}
	if c.config.Password != "" {
		opts.SetPassword(c.config.Password)
	}

	availabilityTopic := c.buildTopic("availability")
	opts.SetWill(availabilityTopic, "offline", byte(c.config.QoS), true)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logger.Debug("mqtt: attempting to reconnect...")
	})

	c.client = pahomqtt.NewClient(opts)
	logger.Info("mqtt: connecting to broker %s:%d...", c.config.Broker, c.config.Port)

	token := c.client.Connect()
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt: connect cancelled: %w", ctx.Err())
	case <-done:
		if token.Error() != nil {
			return fmt.Errorf("mqtt: failed to connect: %w", token.Error())
		}
	}
	return nil
}

func (c *MQTTClient) handleConnect() {
	c.connected.Store(true)
	logger.Success("mqtt: connected to broker %s:%d", c.config.Broker, c.config.Port)
	c.publish(c.buildTopic("availability"), "online", true)
}

func (c *MQTTClient) handleDisconnect(err error) {
	c.connected.Store(false)
	if err != nil {
		logger.Warning("mqtt: connection lost: %v", err)
	}
}

// Disconnect publishes "offline" and tears down the client.
func (c *MQTTClient) Disconnect() {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}
	c.publish(c.buildTopic("availability"), "offline", true)
	client.Disconnect(250)
	c.connected.Store(false)
}

// IsConnected reports the current connection state.
func (c *MQTTClient) IsConnected() bool { return c.connected.Load() }

// PublishTelemetry publishes one telemetry record as JSON to
// "<prefix>/telemetry".
func (c *MQTTClient) PublishTelemetry(t pack.Telemetry) {
	c.publishJSON(c.buildTopic("telemetry"), t)
}

// PublishHealth publishes a periodic health record, carrying the
// dropped-input counters, to "<prefix>/health".
func (c *MQTTClient) PublishHealth(h pack.HealthRecord) {
	c.publishJSON(c.buildTopic("health"), h)
}

func (c *MQTTClient) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Error("mqtt: marshaling payload for %s: %v", topic, err)
		return
	}
	c.publish(topic, string(payload), c.config.Retain)
}

func (c *MQTTClient) shouldPublish() bool {
	return c.config.Enabled && c.client != nil && c.client.IsConnected()
}

func (c *MQTTClient) publish(topic, payload string, retain bool) {
	if !c.shouldPublish() {
		return
	}
	token := c.client.Publish(topic, byte(c.config.QoS), retain, payload)
	go func() {
		token.Wait()
		if token.Error() != nil {
			c.msgErrors.Add(1)
			logger.Error("mqtt: publishing to %s: %v", topic, token.Error())
			return
		}
		c.msgSent.Add(1)
	}()
}

func (c *MQTTClient) buildTopic(suffix string) string {
	prefix := c.config.TopicPrefix
	if prefix == "" {
		prefix = "battcorrelate"
	}
	return prefix + "/" + suffix
}
