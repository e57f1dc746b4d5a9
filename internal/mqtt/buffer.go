package mqtt

import "go.uber.org/zap"

// pending is a serialized message waiting for the connection to return.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages while disconnected. When full the oldest message is
// overwritten. Not safe for concurrent use; RealPublisher holds its lock.
type outbox struct {
	slots   []pending
	next    int // index of the next write
	n       int
	dropped int // messages overwritten since the last drain
	logger  *zap.SugaredLogger
}

func newOutbox(capacity int, logger *zap.SugaredLogger) *outbox {
	return &outbox{slots: make([]pending, capacity), logger: logger}
}

func (o *outbox) add(msg pending) {
	o.slots[o.next] = msg
	o.next = (o.next + 1) % len(o.slots)
	if o.n < len(o.slots) {
		o.n++
		return
	}
	if o.dropped == 0 {
		o.logger.Warnw("outbox full, dropping oldest", "capacity", len(o.slots))
	}
	o.dropped++
}

// take returns the buffered messages oldest first and empties the outbox.
func (o *outbox) take() []pending {
	if o.n == 0 {
		return nil
	}
	out := make([]pending, 0, o.n)
	first := (o.next - o.n + len(o.slots)) % len(o.slots)
	for i := 0; i < o.n; i++ {
		out = append(out, o.slots[(first+i)%len(o.slots)])
	}
	if o.dropped > 0 {
		o.logger.Warnw("outbox overflowed while disconnected", "dropped", o.dropped)
	}
	o.next, o.n, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.n
}
