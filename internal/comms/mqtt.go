// Package comms publishes alerts, telemetry, and status over MQTT and
// receives signed operator commands.
package comms

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/logging"
)

const connectTimeout = 10 * time.Second

// AlertPayload is the wire shape of a published detection alert.
type AlertPayload struct {
	FindingID  string  `json:"finding_id"`
	MissionID  string  `json:"mission_id"`
	DroneID    string  `json:"drone_id"`
	Timestamp  string  `json:"timestamp"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	ImageHash  string  `json:"image_hash"`
	Signature  string  `json:"signature"`
}

// TelemetryPayload is the wire shape of a telemetry sample.
type TelemetryPayload struct {
	DroneID    string  `json:"drone_id"`
	Timestamp  string  `json:"timestamp"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	Heading    float64 `json:"heading"`
	Speed      float64 `json:"speed"`
	BatteryPct float64 `json:"battery_pct"`
	Mode       string  `json:"mode"`
	Armed      bool    `json:"armed"`
}

// Command is a received operator command, verified downstream.
type Command struct {
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	OperatorID string         `json:"operator_id"`
	Secret     string         `json:"secret"`
	Timestamp  string         `json:"timestamp"`
	MAC        string         `json:"mac"`
}

// CommandHandler receives decoded commands from the command topic.
type CommandHandler func(cmd Command)

// Config describes the broker connection and topic namespace.
type Config struct {
	Broker      string
	Port        int
	TopicPrefix string
	DroneID     string
	UseTLS      bool
	QoS         byte
}

// Client wraps an MQTT session scoped to one drone's topic namespace.
type Client struct {
	cfg  Config
	log  *zap.Logger
	conn mqtt.Client
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log.With(logging.Component("comms"), logging.DroneID(cfg.DroneID))}
}

// Connect establishes the broker session.
func (c *Client) Connect() error {
	scheme := "tcp"
	if c.cfg.UseTLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Broker, c.cfg.Port)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("skywarden-" + c.cfg.DroneID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			c.log.Info("broker connected", logging.Conn(broker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn("broker connection lost", zap.Error(err))
		})

	c.conn = mqtt.NewClient(opts)
	tok := c.conn.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", broker, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(250)
	}
}

// PublishAlert publishes a detection alert.
func (c *Client) PublishAlert(a AlertPayload) error {
	return c.publish(c.topic("alerts"), a)
}

// PublishTelemetry publishes a telemetry sample.
func (c *Client) PublishTelemetry(t TelemetryPayload) error {
	return c.publish(c.topic("telemetry"), t)
}

// PublishStatus publishes a free-form status event.
func (c *Client) PublishStatus(status map[string]any) error {
	return c.publish(c.topic("status"), status)
}

// OnCommand subscribes to the drone's command topic. Malformed
// payloads are logged and dropped.
func (c *Client) OnCommand(h CommandHandler) error {
	topic := c.topic("commands")
	tok := c.conn.Subscribe(topic, c.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(m.Payload(), &cmd); err != nil {
			c.log.Warn("undecodable command payload", logging.Topic(topic), zap.Error(err))
			return
		}
		h(cmd)
	})
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.log.Info("command topic subscribed", logging.Topic(topic))
	return nil
}

func (c *Client) publish(topic string, v any) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return fmt.Errorf("not connected")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	tok := c.conn.Publish(topic, c.cfg.QoS, false, b)
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return tok.Error()
}

// topic builds a drone-scoped topic: {prefix}/{kind}/{drone_id}.
func (c *Client) topic(kind string) string {
	return c.cfg.TopicPrefix + "/" + kind + "/" + c.cfg.DroneID
}
