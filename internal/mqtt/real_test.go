package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/easybutton/internal/button"
)

// doneToken is a paho.Token that has already completed successfully.
type doneToken struct{ paho.Token }

func (doneToken) Wait() bool { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error { return nil }

type sent struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes. If hold is set, the first Publish signals
// holding and then waits for hold to be closed.
type fakeClient struct {
	paho.Client

	mu      sync.Mutex
	sent    []sent
	hold    chan struct{}
	holding chan struct{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.sent = append(c.sent, sent{topic: topic, retained: retained, payload: payload.([]byte)})
	first := len(c.sent) == 1
	c.mu.Unlock()
	if first && c.hold != nil {
		close(c.holding)
		<-c.hold
	}
	return doneToken{}
}

func (c *fakeClient) messages() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

func newTestPublisher(c *fakeClient) *RealPublisher {
	logger := zap.NewNop().Sugar()
	return &RealPublisher{
		client: c,
		prefix: DefaultTopicPrefix,
		logger: logger,
		outbox: newOutbox(outboxSize, logger),
	}
}

func publishPress(t *testing.T, p *RealPublisher, name string) {
	t.Helper()
	e := button.Event{Button: name, Line: 26, Type: button.EventPress}
	if err := p.Publish(e, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish(%s): %v", name, err)
	}
}

func buttonName(t *testing.T, m sent) string {
	t.Helper()
	var p Payload
	if err := json.Unmarshal(m.payload, &p); err != nil {
		t.Fatalf("invalid payload %s: %v", m.payload, err)
	}
	return p.Button.Name
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	publishPress(t, p, "a")
	publishPress(t, p, "b")

	if p.IsConnected() {
		t.Error("expected disconnected before first connect")
	}
	if got := p.Buffered(); got != 2 {
		t.Errorf("Buffered: got %d, want 2", got)
	}
	if len(c.messages()) != 0 {
		t.Errorf("expected nothing sent, got %d", len(c.messages()))
	}

	p.onConnect(c)

	msgs := c.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(msgs))
	}
	for i, want := range []string{"a", "b"} {
		if msgs[i].topic != EventsTopic(DefaultTopicPrefix) {
			t.Errorf("message %d topic: got %q", i, msgs[i].topic)
		}
		if got := buttonName(t, msgs[i]); got != want {
			t.Errorf("message %d: got %q, want %q", i, got, want)
		}
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered after replay: got %d, want 0", p.Buffered())
	}
	if !p.IsConnected() {
		t.Error("expected connected after onConnect")
	}
}

func TestRealPublisherReplayKeepsOrder(t *testing.T) {
	c := &fakeClient{hold: make(chan struct{}), holding: make(chan struct{})}
	p := newTestPublisher(c)

	publishPress(t, p, "old1")
	publishPress(t, p, "old2")

	done := make(chan struct{})
	go func() {
		p.onConnect(c)
		close(done)
	}()

	// Publish while the first replayed message is still in flight.
	<-c.holding
	publishPress(t, p, "new")
	close(c.hold)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("onConnect did not return")
	}

	msgs := c.messages()
	want := []string{"old1", "old2", "new"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i := range want {
		if got := buttonName(t, msgs[i]); got != want[i] {
			t.Errorf("message %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestRealPublisherSendsDirectlyWhenConnected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)
	p.onConnect(c)

	publishPress(t, p, "a")

	if len(c.messages()) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(c.messages()))
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered: got %d, want 0", p.Buffered())
	}
}

func TestRealPublisherReconnectedOnlyAfterFirstConnect(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	p.onConnect(c)
	if n := len(c.messages()); n != 0 {
		t.Fatalf("first connect: expected no messages, got %d", n)
	}

	p.onConnectionLost(c, errors.New("broker gone"))
	if p.IsConnected() {
		t.Error("expected disconnected after connection lost")
	}
	publishPress(t, p, "during-outage")
	if p.Buffered() != 1 {
		t.Errorf("Buffered: got %d, want 1", p.Buffered())
	}

	p.onConnect(c)
	if !p.IsConnected() {
		t.Error("expected connected after reconnect")
	}

	msgs := c.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected replayed event and RECONNECTED, got %d messages", len(msgs))
	}
	if got := buttonName(t, msgs[0]); got != "during-outage" {
		t.Errorf("message 0: got %q, want during-outage", got)
	}
	if msgs[1].topic != SystemTopic(DefaultTopicPrefix) {
		t.Errorf("message 1 topic: got %q", msgs[1].topic)
	}
	var sp SystemPayload
	if err := json.Unmarshal(msgs[1].payload, &sp); err != nil {
		t.Fatalf("invalid system payload: %v", err)
	}
	if sp.System.Event != "RECONNECTED" {
		t.Errorf("system event: got %q, want RECONNECTED", sp.System.Event)
	}
}

func TestRealPublisherRetainsSystemEvents(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)
	p.onConnect(c)

	if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	msgs := c.messages()
	if len(msgs) != 1 || !msgs[0].retained {
		t.Errorf("expected one retained message, got %+v", msgs)
	}
}
