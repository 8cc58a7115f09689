// Package bridge mirrors port sessions onto an MQTT broker. Drained text is
// published per port, and lines published to a port's tx topic are written
// to that port.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"uartviewer/config"
	"uartviewer/session"
)

const (
	// queueDepth bounds the publications waiting for the broker
	queueDepth = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second
)

// RxMessage is published on <prefix>/<port>/rx for every drained chunk
type RxMessage struct {
	ID     string    `json:"id"`
	Device string    `json:"device"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// TxMessage is accepted on <prefix>/<port>/tx. A payload that is not a JSON
// object is taken as the line itself.
type TxMessage struct {
	ID   string `json:"id,omitempty"`
	Line string `json:"line"`
}

type outbound struct {
	topic   string
	payload []byte
}

// Bridge implements session.Sink
type Bridge struct {
	client   paho.Client
	prefix   string
	qos      byte
	registry *session.Registry
	logger   *slog.Logger

	publish func(topic string, payload []byte) error

	queue   chan outbound
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// Connect dials the broker and subscribes to the tx topics of every port.
// The subscription is renewed after each reconnect.
func Connect(cfg config.MQTTConfig, registry *session.Registry, logger *slog.Logger) (*Bridge, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker not configured")
	}
	logger = logger.With("component", "mqtt", "broker", cfg.Broker)

	var b *Bridge
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(keepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c paho.Client) {
			b.subscribe(c)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("MQTT connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	b = newBridge(cfg.TopicPrefix, cfg.QoS, registry, logger, nil)
	b.client = client
	b.publish = b.publishPaho

	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		b.Close()
		return nil, fmt.Errorf("mqtt connect timeout after %s", connectTimeout)
	}
	if err := tok.Error(); err != nil {
		b.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	logger.Info("MQTT bridge connected", "prefix", cfg.TopicPrefix)
	return b, nil
}

func newBridge(prefix string, qos byte, registry *session.Registry, logger *slog.Logger, publish func(string, []byte) error) *Bridge {
	b := &Bridge{
		prefix:   prefix,
		qos:      qos,
		registry: registry,
		logger:   logger,
		publish:  publish,
		queue:    make(chan outbound, queueDepth),
		stop:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// PortToken is the topic segment for a port: its base name with MQTT
// wildcards replaced
func PortToken(device string) string {
	token := path.Base(strings.ReplaceAll(device, `\`, "/"))
	return strings.NewReplacer("+", "_", "#", "_").Replace(token)
}

// RxTopic returns the topic drained text of device is published on
func RxTopic(prefix, device string) string {
	return prefix + "/" + PortToken(device) + "/rx"
}

// TxTopic returns the topic whose messages are sent to device
func TxTopic(prefix, device string) string {
	return prefix + "/" + PortToken(device) + "/tx"
}

// Append implements session.Sink. It never blocks; when the broker falls
// behind the chunk is dropped.
func (b *Bridge) Append(id, text string) {
	payload, err := json.Marshal(RxMessage{
		ID:     uuid.NewString(),
		Device: id,
		Text:   text,
		Time:   time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("Failed to encode MQTT message", "device", id, "error", err)
		return
	}

	select {
	case <-b.stop:
	case b.queue <- outbound{topic: RxTopic(b.prefix, id), payload: payload}:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of chunks discarded because the queue was full
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops publishing and disconnects from the broker
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.stop)
		b.wg.Wait()
		if b.client != nil {
			b.client.Disconnect(250)
		}
		b.logger.Info("MQTT bridge closed", "dropped", b.dropped.Load())
	})
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case msg := <-b.queue:
			if err := b.publish(msg.topic, msg.payload); err != nil {
				b.logger.Warn("MQTT publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

func (b *Bridge) publishPaho(topic string, payload []byte) error {
	tok := b.client.Publish(topic, b.qos, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout after %s", publishTimeout)
	}
	return tok.Error()
}

func (b *Bridge) subscribe(c paho.Client) {
	topic := b.prefix + "/+/tx"
	tok := c.Subscribe(topic, b.qos, func(_ paho.Client, m paho.Message) {
		b.handleTx(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(connectTimeout) || tok.Error() != nil {
		b.logger.Error("MQTT subscribe failed", "topic", topic, "error", tok.Error())
		return
	}
	b.logger.Info("MQTT subscribed", "topic", topic)
}

// handleTx writes the line carried by a tx message to the matching session
func (b *Bridge) handleTx(topic string, payload []byte) {
	token, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return
	}
	token, ok = strings.CutSuffix(token, "/tx")
	if !ok || strings.Contains(token, "/") {
		return
	}

	sess := b.lookup(token)
	if sess == nil {
		b.logger.Warn("MQTT send to unknown port", "port", token)
		return
	}

	line := decodeTx(payload)
	if err := sess.Send(line); err != nil {
		b.logger.Warn("MQTT send failed", "device", sess.ID(), "error", err)
		return
	}
	b.logger.Debug("MQTT line sent", "device", sess.ID(), "bytes", len(line))
}

func (b *Bridge) lookup(token string) *session.Session {
	for _, s := range b.registry.Sessions() {
		if PortToken(s.ID()) == token {
			return s
		}
	}
	return nil
}

func decodeTx(payload []byte) string {
	var msg TxMessage
	if len(payload) > 0 && payload[0] == '{' && json.Unmarshal(payload, &msg) == nil {
		return msg.Line
	}
	return strings.TrimRight(string(payload), "\r\n")
}
