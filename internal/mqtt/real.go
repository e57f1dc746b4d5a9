package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/easybutton/internal/button"
)

// outboxSize is the number of messages kept while disconnected.
const outboxSize = 256

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string
	logger *zap.SugaredLogger

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	// replaying keeps new messages in the outbox until the backlog is sent.
	replaying bool
	everUp    bool
}

// NewRealPublisher starts connecting to broker. It waits briefly for the
// first connection; if the broker is unreachable the client keeps retrying
// in the background and messages are buffered meanwhile.
func NewRealPublisher(broker, clientID, prefix string, logger *zap.SugaredLogger) (*RealPublisher, error) {
	logger = logger.Named("mqtt")
	p := &RealPublisher{
		prefix: prefix,
		logger: logger,
		outbox: newOutbox(outboxSize, logger),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(prefix), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warnw("broker not reachable yet, retrying in background", "broker", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.replaying = true
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	replayed := 0
	for {
		p.mu.Lock()
		var backlog []pending
		// A lost connection leaves the rest for the next connect.
		if p.connected {
			backlog = p.outbox.take()
		}
		if len(backlog) == 0 {
			p.replaying = false
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, msg := range backlog {
			if err := p.send(msg); err != nil {
				p.logger.Warnw("replay failed", "topic", msg.topic, "error", err)
			}
		}
		replayed += len(backlog)
	}

	p.logger.Infow("connected", "replayed", replayed)
	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			p.logger.Warnw("publish reconnected event", "error", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warnw("connection lost", "error", err)
}

// publish sends msg now, or buffers it if the connection is down.
func (p *RealPublisher) publish(msg pending) error {
	p.mu.Lock()
	if !p.connected || p.replaying {
		p.outbox.add(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(msg)
}

func (p *RealPublisher) send(msg pending) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a button event. QoS 1: a missed press is visible to users.
func (p *RealPublisher) Publish(event button.Event, ts time.Time) error {
	payload, err := FormatPayload(event, ts)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(pending{topic: EventsTopic(p.prefix), payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
